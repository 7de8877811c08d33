package filehandler

import (
	"encoding/csv"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/meta"
)

// StaticColumns is the column order of attribute files written without a
// header row.
var StaticColumns = []string{
	"quantity_name",
	"unit",
	"depth_from[m]",
	"depth_to[m]",
	"value",
	"description",
	"quantity_source_name",
	"quantity_source_description",
	"quantity_source_provider",
	"quantity_source_version",
	"quantity_source_resolution",
	"quantity_source_timerange",
	"quantity_source_url",
}

const (
	quantityLandCover = "land cover classification"
	quantityClimate   = "climate classification"
	providerInsitu    = "insitu"
)

var landCoverSlots = map[string]string{
	"CCI_landcover_2000": meta.LC2000,
	"CCI_landcover_2005": meta.LC2005,
	"CCI_landcover_2010": meta.LC2010,
	providerInsitu:       meta.LCInsitu,
}

var climateSlots = map[string]string{
	"koeppen_geiger_2007": meta.ClimateKG,
	providerInsitu:        meta.ClimateInsitu,
}

// soilQuantities maps attribute file quantity names to metadata names.
var soilQuantities = []struct{ quantity, name string }{
	{"saturation", meta.Saturation},
	{"clay fraction", meta.ClayFraction},
	{"sand fraction", meta.SandFraction},
	{"silt fraction", meta.SiltFraction},
	{"organic carbon", meta.OrganicCarbon},
}

type staticRow struct {
	quantity string
	from, to string
	value    string
	source   string
}

// ParseStaticMeta parses a station attribute file. The result holds every
// static key: classification slots without a provider row and soil
// attributes without rows keep the missing sentinel, soil attributes keep
// all depth candidates.
func ParseStaticMeta(r io.Reader) (meta.MetaData, error) {
	rows, err := readStaticRows(r)
	if err != nil {
		return meta.MetaData{}, err
	}

	slots := make(map[string]meta.MetaVar)
	soil := make(map[string][]meta.MetaVar)

	for _, row := range rows {
		switch row.quantity {
		case quantityLandCover:
			name, ok := landCoverSlots[row.source]
			if !ok || slots[name].Name != "" {
				continue
			}
			v := meta.ParseValue(row.value)
			if name == meta.LCInsitu {
				v = meta.String(row.value)
			}
			slots[name] = meta.NewVar(name, v).WithSource(row.source)
		case quantityClimate:
			name, ok := climateSlots[row.source]
			if !ok || slots[name].Name != "" {
				continue
			}
			slots[name] = meta.NewVar(name, meta.String(row.value)).WithSource(row.source)
		default:
			for _, sq := range soilQuantities {
				if row.quantity != sq.quantity {
					continue
				}
				mv, err := soilVar(sq.name, row)
				if err != nil {
					return meta.MetaData{}, err
				}
				soil[sq.name] = append(soil[sq.name], mv)
			}
		}
	}

	vars := make([]meta.MetaVar, 0, len(meta.StaticKeys))
	for _, name := range []string{meta.LC2000, meta.LC2005, meta.LC2010, meta.LCInsitu, meta.ClimateKG, meta.ClimateInsitu} {
		if mv, ok := slots[name]; ok {
			vars = append(vars, mv)
		} else {
			vars = append(vars, meta.NewVar(name, meta.Null()))
		}
	}
	for _, sq := range soilQuantities {
		if cands := soil[sq.name]; len(cands) > 0 {
			vars = append(vars, cands...)
		} else {
			vars = append(vars, meta.NewVar(sq.name, meta.Null()))
		}
	}
	return meta.New(vars...), nil
}

func soilVar(name string, row staticRow) (meta.MetaVar, error) {
	value := meta.ParseValue(row.value)
	if row.from == "" && row.to == "" {
		return meta.NewVar(name, value).WithSource(row.source), nil
	}

	from, err := strconv.ParseFloat(row.from, 64)
	if err != nil {
		return meta.MetaVar{}, staticMalformed(ismnerr.InvalidNumber("depth_from[m]", row.from))
	}
	to, err := strconv.ParseFloat(row.to, 64)
	if err != nil {
		return meta.MetaVar{}, staticMalformed(ismnerr.InvalidNumber("depth_to[m]", row.to))
	}
	if from == 0 && to == 0 {
		return meta.NewVar(name, value).WithSource(row.source), nil
	}
	d, err := meta.NewDepth(from, to)
	if err != nil {
		return meta.MetaVar{}, staticMalformed(err)
	}
	return meta.NewDepthVar(name, value, d).WithSource(row.source), nil
}

func staticMalformed(err error) error {
	return ismnerr.Wrap(err, ismnerr.CodeStaticMetaMalformed, "malformed station attribute file")
}

// readStaticRows reads the semicolon table. A first row containing a
// quantity_name cell is a header; otherwise StaticColumns applies.
func readStaticRows(r io.Reader) ([]staticRow, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, staticMalformed(err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	columns := StaticColumns
	if indexOf(records[0], "quantity_name") >= 0 {
		columns = records[0]
		records = records[1:]
	}

	idx := func(name string) int { return indexOf(columns, name) }
	iq, iv := idx("quantity_name"), idx("value")
	if iq < 0 || iv < 0 {
		return nil, ismnerr.New(ismnerr.CodeStaticMetaMalformed, "attribute file lacks quantity_name or value column")
	}
	ifrom, ito, isrc := idx("depth_from[m]"), idx("depth_to[m]"), idx("quantity_source_name")

	rows := make([]staticRow, 0, len(records))
	for _, rec := range records {
		q := cell(rec, iq)
		if q == "" {
			continue
		}
		rows = append(rows, staticRow{
			quantity: q,
			from:     cell(rec, ifrom),
			to:       cell(rec, ito),
			value:    cell(rec, iv),
			source:   cell(rec, isrc),
		})
	}
	return rows, nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if strings.TrimSpace(c) == name {
			return i
		}
	}
	return -1
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ReadStaticMeta reads the attribute file at rel.
func ReadStaticMeta(root archive.Root, rel, scratch string) (meta.MetaData, error) {
	var md meta.MetaData
	err := archive.WithLocalFile(root, rel, scratch, func(local string) error {
		f, err := os.Open(local)
		if err != nil {
			return ismnerr.Wrap(err, ismnerr.CodeStaticMetaMalformed, "attribute file unreadable")
		}
		defer f.Close()
		md, err = ParseStaticMeta(f)
		return err
	})
	if err != nil {
		return meta.MetaData{}, err
	}
	return md, nil
}

// StationStatic loads the attribute metadata of a station folder. The
// returned metadata is always usable: when the folder holds no attribute
// file, or the file cannot be read, the template defaults are returned along
// with a structural error. With several attribute files the first in sorted
// order is used and an ambiguity error is returned next to its metadata.
// The second result names the file used, or is empty.
func StationStatic(root archive.Root, folder, scratch string) (meta.MetaData, string, error) {
	csvs, err := root.FindFiles(folder, "*.csv")
	if err != nil {
		return meta.FromTemplate(), "", ismnerr.Wrap(err, ismnerr.CodeStaticMetaMissing, "failed to list station folder").
			WithContext("folder", folder)
	}
	if len(csvs) == 0 {
		return meta.FromTemplate(), "", ismnerr.New(ismnerr.CodeStaticMetaMissing,
			"expected 1 attribute file but got 0, using template defaults").WithContext("folder", folder)
	}

	md, err := ReadStaticMeta(root, csvs[0], scratch)
	if err != nil {
		if !ismnerr.IsStructural(err) && !ismnerr.IsSetup(err) {
			err = staticMalformed(err)
		}
		return meta.FromTemplate(), csvs[0], err
	}
	if len(csvs) > 1 {
		return md, csvs[0], ismnerr.Newf(ismnerr.CodeStaticMetaAmbiguous,
			"expected 1 attribute file but got %d, using %s", len(csvs), path.Base(csvs[0])).
			WithContext("folder", folder)
	}
	return md, csvs[0], nil
}
