// Package generators provides test data generation utilities: ISMN style
// archives with station attribute files and sensor files in every dialect.
package generators

import (
	"archive/zip"
	"fmt"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/soilnet/ismn/pkg/meta"
)

// Dialect selects the layout of a generated sensor file.
type Dialect int

const (
	// CeopSep writes 15-token rows and encodes network, station, variable,
	// depth and instrument in the file name.
	CeopSep Dialect = iota
	// HeaderValues writes a station header line followed by 5-token rows.
	HeaderValues
	// Ceop writes 16-token rows with a 5-token file name.
	Ceop
)

// StaticHeader is the column row of a station attribute file.
const StaticHeader = "quantity_name;unit;depth_from[m];depth_to[m];value;description;" +
	"quantity_source_name;quantity_source_description;quantity_source_provider;" +
	"quantity_source_version;quantity_source_resolution;quantity_source_timerange;" +
	"quantity_source_url"

// StaticRow is one row of a station attribute file. A nil depth writes
// blank depth cells.
type StaticRow struct {
	Quantity string
	Unit     string
	Depth    *meta.Depth
	Value    string
	Source   string
}

// SensorSpec describes one sensor file.
type SensorSpec struct {
	Dialect    Dialect
	Variable   string // filename token, e.g. "sm"
	Instrument string
	Depth      meta.Depth
	Start      time.Time
	Step       time.Duration
	Rows       int
	// FileName overrides the generated base name.
	FileName string
	// Content overrides the generated file content.
	Content []byte
}

// StationSpec describes one station folder.
type StationSpec struct {
	Network   string
	Name      string
	Latitude  float64
	Longitude float64
	Elevation float64

	Static []StaticRow
	// NoStatic omits the attribute file.
	NoStatic bool
	// NoStaticHeader writes the attribute rows without the column row.
	NoStaticHeader bool
	// ExtraStatic writes a second attribute file sorting after the first.
	ExtraStatic bool

	Sensors []SensorSpec
}

// Folder returns the station folder relative to the archive root.
func (s StationSpec) Folder() string {
	return path.Join(s.Network, s.Name)
}

// ArchiveGenerator generates random archives.
type ArchiveGenerator struct {
	rng *rand.Rand

	// Depth intervals sensors are placed at.
	Depths []meta.Depth
	// Variables is the set of filename variable tokens.
	Variables []string
	// Instruments names the instruments, some containing underscores.
	Instruments []string
	// HeaderValuesRate is the probability of a header_values sensor file.
	HeaderValuesRate float64
}

// NewArchiveGenerator creates an archive generator with default settings.
func NewArchiveGenerator(seed int64) *ArchiveGenerator {
	return &ArchiveGenerator{
		rng: rand.New(rand.NewSource(seed)),
		Depths: []meta.Depth{
			{Start: 0, End: 0.05},
			{Start: 0.05, End: 0.1},
			{Start: 0.1, End: 0.1},
			{Start: 0.2, End: 0.5},
			{Start: 0.5, End: 0.5},
			{Start: 1, End: 1.5},
		},
		Variables:        []string{"sm", "ts", "p", "ta"},
		Instruments:      []string{"Stevens-Hydra-Probe", "CS655", "Hydraprobe-II_Sdi-12", "TDR"},
		HeaderValuesRate: 0.3,
	}
}

// Stations generates networks*perNetwork stations with sensors sensors each.
func (g *ArchiveGenerator) Stations(networks, perNetwork, sensors int) []StationSpec {
	start := time.Date(2017, 8, 10, 0, 0, 0, 0, time.UTC)
	var out []StationSpec
	for n := 0; n < networks; n++ {
		net := fmt.Sprintf("NET%c", 'A'+n)
		for s := 0; s < perNetwork; s++ {
			st := StationSpec{
				Network:   net,
				Name:      fmt.Sprintf("Station-%02d", s),
				Latitude:  float64(g.rng.Intn(18000)-9000) / 100,
				Longitude: float64(g.rng.Intn(36000)-18000) / 100,
				Elevation: float64(g.rng.Intn(3000)),
				Static:    g.staticRows(),
			}
			for i := 0; i < sensors; i++ {
				dialect := CeopSep
				if g.rng.Float64() < g.HeaderValuesRate {
					dialect = HeaderValues
				}
				st.Sensors = append(st.Sensors, SensorSpec{
					Dialect:    dialect,
					Variable:   g.Variables[g.rng.Intn(len(g.Variables))],
					Instrument: fmt.Sprintf("%s-%d", g.Instruments[g.rng.Intn(len(g.Instruments))], i),
					Depth:      g.Depths[g.rng.Intn(len(g.Depths))],
					Start:      start.Add(time.Duration(g.rng.Intn(48)) * time.Hour),
					Step:       time.Hour,
					Rows:       2 + g.rng.Intn(5),
				})
			}
			out = append(out, st)
		}
	}
	return out
}

func (g *ArchiveGenerator) staticRows() []StaticRow {
	lc := []string{"10", "11", "30", "130", "190"}
	clay := fmt.Sprintf("%d", 5+g.rng.Intn(40))
	return []StaticRow{
		{Quantity: "land cover classification", Value: lc[g.rng.Intn(len(lc))], Source: "CCI_landcover_2000"},
		{Quantity: "land cover classification", Value: lc[g.rng.Intn(len(lc))], Source: "CCI_landcover_2010"},
		{Quantity: "climate classification", Value: "Dfc", Source: "koeppen_geiger_2007"},
		{Quantity: "clay fraction", Unit: "% weight", Depth: &meta.Depth{Start: 0, End: 0.3}, Value: clay, Source: "HWSD"},
		{Quantity: "clay fraction", Unit: "% weight", Depth: &meta.Depth{Start: 0.3, End: 1}, Value: "12", Source: "HWSD"},
		{Quantity: "saturation", Unit: "m^3*m^-3", Depth: &meta.Depth{Start: 0, End: 0.3}, Value: "0.45", Source: "HWSD"},
	}
}

// SensorFileName returns the base name of a sensor file.
func SensorFileName(st StationSpec, s SensorSpec) string {
	if s.FileName != "" {
		return s.FileName
	}
	end := s.Start.Add(time.Duration(max(s.Rows-1, 0)) * s.Step)
	if s.Dialect == Ceop {
		return fmt.Sprintf("%s_%s_%s_%s_%s.stm", st.Network, st.Name, s.Variable,
			s.Start.Format("20060102"), end.Format("20060102"))
	}
	return fmt.Sprintf("%s_%s_%s_%s_%.6f_%.6f_%s_%s_%s.stm",
		st.Network, st.Network, st.Name, s.Variable, s.Depth.Start, s.Depth.End,
		s.Instrument, s.Start.Format("20060102"), end.Format("20060102"))
}

// SensorContent renders the sensor file body. Values are a deterministic
// function of the row index.
func SensorContent(st StationSpec, s SensorSpec) []byte {
	if s.Content != nil {
		return s.Content
	}
	var sb strings.Builder
	if s.Dialect == HeaderValues {
		fmt.Fprintf(&sb, "CSE %s %s %g %g %g %g %g %s\n",
			st.Network, st.Name, st.Latitude, st.Longitude, st.Elevation,
			s.Depth.Start, s.Depth.End, s.Instrument)
	}
	for i := 0; i < s.Rows; i++ {
		ts := s.Start.Add(time.Duration(i) * s.Step)
		stamp := ts.Format("2006/01/02 15:04")
		value := RowValue(i)
		switch s.Dialect {
		case HeaderValues:
			fmt.Fprintf(&sb, "%s %g G M\n", stamp, value)
		case Ceop:
			fmt.Fprintf(&sb, "%s %s CSE %s %s %g %g %g %g %g %g G M X\n",
				stamp, stamp, st.Network, st.Name, st.Latitude, st.Longitude, st.Elevation,
				s.Depth.Start, s.Depth.End, value)
		default:
			fmt.Fprintf(&sb, "%s %s CSE %s %s %g %g %g %g %g %g G M\n",
				stamp, stamp, st.Network, st.Name, st.Latitude, st.Longitude, st.Elevation,
				s.Depth.Start, s.Depth.End, value)
		}
	}
	return []byte(sb.String())
}

// RowValue is the measurement written to row i of every generated file.
func RowValue(i int) float64 {
	return 0.125 + float64(i)*0.0625
}

// StaticContent renders a station attribute file.
func StaticContent(st StationSpec) []byte {
	var sb strings.Builder
	if !st.NoStaticHeader {
		sb.WriteString(StaticHeader + "\n")
	}
	for _, r := range st.Static {
		from, to := "", ""
		if r.Depth != nil {
			from, to = fmt.Sprintf("%.2f", r.Depth.Start), fmt.Sprintf("%.2f", r.Depth.End)
		}
		fmt.Fprintf(&sb, "%s;%s;%s;%s;%s;;%s;;;;;;\n", r.Quantity, r.Unit, from, to, r.Value, r.Source)
	}
	return []byte(sb.String())
}

// StaticFileName returns the base name of the station attribute file.
func StaticFileName(st StationSpec) string {
	return fmt.Sprintf("%s_%s_%s_static_variables.csv", st.Network, st.Network, st.Name)
}

// Files renders every station into a map from archive path to content.
func Files(stations []StationSpec) map[string][]byte {
	files := make(map[string][]byte)
	for _, st := range stations {
		folder := st.Folder()
		if !st.NoStatic {
			files[path.Join(folder, StaticFileName(st))] = StaticContent(st)
			if st.ExtraStatic {
				files[path.Join(folder, "zz_"+StaticFileName(st))] = StaticContent(st)
			}
		}
		for _, s := range st.Sensors {
			files[path.Join(folder, SensorFileName(st, s))] = SensorContent(st, s)
		}
	}
	return files
}

// WriteDir writes the archive as a directory tree under dir.
func WriteDir(dir string, stations []StationSpec) error {
	for name, data := range Files(stations) {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// WriteZip writes the archive as a zip file at p.
func WriteZip(p string, stations []StationSpec) error {
	files := Files(stations)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	f, err := os.Create(p)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(files[name]); err != nil {
			f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
