package filehandler

import (
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/soilnet/ismn/internal/pool"
	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/meta"
)

// FileType is the dialect of a sensor file.
type FileType string

const (
	// CeopSep files carry 15 tokens per row and encode station details in
	// the file name.
	CeopSep FileType = "ceop_sep"
	// HeaderValues files start with a station header line.
	HeaderValues FileType = "header_values"
	// Ceop is recognised but not supported.
	Ceop FileType = "ceop"
	// Undefined marks a file whose shape matches no dialect.
	Undefined FileType = "undefined"
)

// ParseFileType maps a stored name back to a FileType.
func ParseFileType(s string) FileType {
	switch FileType(s) {
	case CeopSep, HeaderValues, Ceop:
		return FileType(s)
	default:
		return Undefined
	}
}

// Detect classifies a file from the token count of its first line and of its
// underscore-split base name. It depends on nothing else.
func Detect(headerLen, nameLen int) FileType {
	switch {
	case headerLen == 16 && nameLen == 5:
		return Ceop
	case headerLen == 15 && nameLen >= 9:
		return CeopSep
	case headerLen < 14 && nameLen >= 9:
		return HeaderValues
	default:
		return Undefined
	}
}

// sniffSize bounds the bytes read from each end of a file.
const sniffSize = 64 * 1024

// Elements holds what dialect detection and metadata extraction look at.
type Elements struct {
	// Header is the first line split on whitespace.
	Header []string
	// Second is the second non-empty line.
	Second []string
	// Last is the last non-empty line.
	Last []string
	// Name is the base file name split on "_".
	Name []string
}

// ReadElements reads the elements of the sensor file rel.
func ReadElements(root archive.Root, rel, scratch string) (Elements, error) {
	var el Elements
	err := archive.WithLocalFile(root, rel, scratch, func(local string) error {
		var err error
		el, err = sniff(local)
		return err
	})
	if err != nil {
		return Elements{}, err
	}
	el.Name = strings.Split(path.Base(rel), "_")
	return el, nil
}

// ParseElements extracts the elements from a file's base name and content.
func ParseElements(base string, data []byte) (Elements, error) {
	el, err := elementsFrom(pool.Lines(data), nil)
	if err != nil {
		return Elements{}, err
	}
	el.Name = strings.Split(base, "_")
	return el, nil
}

// sniff reads the head of the file and, for large files, its tail.
func sniff(local string) (Elements, error) {
	f, err := os.Open(local)
	if err != nil {
		return Elements{}, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to open sensor file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Elements{}, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to stat sensor file")
	}

	head := pool.Buffers.Get()
	defer pool.Buffers.Put(head)
	if _, err := head.ReadFrom(io.LimitReader(f, sniffSize)); err != nil {
		return Elements{}, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to read sensor file")
	}

	if info.Size() <= sniffSize {
		return elementsFrom(pool.Lines(head.Bytes()), nil)
	}

	tail := pool.Buffers.Get()
	defer pool.Buffers.Put(tail)
	if _, err := f.Seek(info.Size()-sniffSize, io.SeekStart); err != nil {
		return Elements{}, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to seek sensor file")
	}
	if _, err := tail.ReadFrom(f); err != nil {
		return Elements{}, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to read sensor file")
	}
	tailLines := pool.Lines(tail.Bytes())
	// The first tail line is usually cut.
	if len(tailLines) > 0 {
		tailLines = tailLines[1:]
	}
	return elementsFrom(pool.Lines(head.Bytes()), tailLines)
}

func elementsFrom(head, tail [][]byte) (Elements, error) {
	if len(head) == 0 || pool.IsBlank(head[0]) {
		return Elements{}, ismnerr.New(ismnerr.CodeTruncatedFile, "sensor file has no header line")
	}

	var el Elements
	el.Header = pool.StringFields(head[0])
	for _, line := range head[1:] {
		if !pool.IsBlank(line) {
			el.Second = pool.StringFields(line)
			break
		}
	}

	for _, lines := range [][][]byte{tail, head[1:]} {
		for i := len(lines) - 1; i >= 0 && el.Last == nil; i-- {
			if !pool.IsBlank(lines[i]) {
				el.Last = pool.StringFields(lines[i])
			}
		}
	}

	if el.Second == nil || el.Last == nil {
		return Elements{}, ismnerr.New(ismnerr.CodeTruncatedFile, "sensor file has no data lines")
	}
	return el, nil
}

// ExtractMetadata detects the dialect of el and extracts the file-level
// metadata. The returned depth is the sensor depth. ceop files and files of
// unknown shape are errors.
func ExtractMetadata(el Elements) (FileType, meta.MetaData, meta.Depth, error) {
	ft := Detect(len(el.Header), len(el.Name))
	switch ft {
	case Ceop:
		return ft, meta.MetaData{}, meta.Depth{}, ismnerr.New(ismnerr.CodeUnsupportedFormat, "ceop format not supported")
	case CeopSep:
		md, d, err := extractCeopSep(el)
		return ft, md, d, err
	case HeaderValues:
		md, d, err := extractHeaderValues(el)
		return ft, md, d, err
	}

	hl, nl := len(el.Header), len(el.Name)
	if (hl == 15 || hl < 14) && nl < 9 {
		return ft, meta.MetaData{}, meta.Depth{}, ismnerr.Newf(ismnerr.CodeMalformedFilename,
			"file name has %d tokens, expected at least 9", nl)
	}
	return ft, meta.MetaData{}, meta.Depth{}, ismnerr.Newf(ismnerr.CodeUnknownFormat,
		"unknown file format: %d header tokens, %d name tokens", hl, nl)
}

func extractCeopSep(el Elements) (meta.MetaData, meta.Depth, error) {
	name := el.Name
	d, err := depthFrom(name[4], name[5], "file name")
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}

	from, err := stampFrom(el.Header)
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}
	to, err := stampFrom(el.Last)
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}
	coords, err := floats(el.Header, 7, "latitude", "longitude", "elevation")
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}

	return fileMeta(name[1], name[2], variableFrom(name), instrumentFrom(name), d, from, to, coords), d, nil
}

func extractHeaderValues(el Elements) (meta.MetaData, meta.Depth, error) {
	h := el.Header
	if len(h) < 8 {
		return meta.MetaData{}, meta.Depth{}, ismnerr.Newf(ismnerr.CodeTruncatedFile,
			"header line has %d tokens, expected at least 8", len(h))
	}
	d, err := depthFrom(h[6], h[7], "header")
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}

	from, err := stampFrom(el.Second)
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}
	to, err := stampFrom(el.Last)
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}
	coords, err := floats(h, 3, "latitude", "longitude", "elevation")
	if err != nil {
		return meta.MetaData{}, meta.Depth{}, err
	}

	return fileMeta(h[1], h[2], variableFrom(el.Name), instrumentFrom(el.Name), d, from, to, coords), d, nil
}

func fileMeta(network, station, variable, instrument string, d meta.Depth, from, to time.Time, coords []float64) meta.MetaData {
	return meta.New(
		meta.NewVar(string(meta.KeyNetwork), meta.String(network)),
		meta.NewVar(string(meta.KeyStation), meta.String(station)),
		meta.NewDepthVar(string(meta.KeyVariable), meta.String(variable), d),
		meta.NewDepthVar(string(meta.KeyInstrument), meta.String(instrument), d),
		meta.NewVar(string(meta.KeyTimerangeFrom), meta.Time(from)),
		meta.NewVar(string(meta.KeyTimerangeTo), meta.Time(to)),
		meta.NewVar(string(meta.KeyLatitude), meta.Float(coords[0])),
		meta.NewVar(string(meta.KeyLongitude), meta.Float(coords[1])),
		meta.NewVar(string(meta.KeyElevation), meta.Float(coords[2])),
	)
}

func variableFrom(name []string) string {
	return meta.CanonicalVariable(name[3])
}

// instrumentFrom joins the instrument tokens when the instrument name itself
// contains underscores.
func instrumentFrom(name []string) string {
	if len(name) > 9 {
		return strings.Join(name[6:len(name)-2], "_")
	}
	return name[6]
}

func depthFrom(from, to, where string) (meta.Depth, error) {
	start, err := strconv.ParseFloat(from, 64)
	if err != nil {
		return meta.Depth{}, ismnerr.InvalidNumber("depth_from", from).WithContext("in", where)
	}
	end, err := strconv.ParseFloat(to, 64)
	if err != nil {
		return meta.Depth{}, ismnerr.InvalidNumber("depth_to", to).WithContext("in", where)
	}
	d, err := meta.NewDepth(start, end)
	if err != nil {
		return meta.Depth{}, ismnerr.Wrap(err, ismnerr.CodeMalformedFilename, "invalid sensor depth").
			WithContext("in", where)
	}
	return d, nil
}

func stampFrom(fields []string) (time.Time, error) {
	if len(fields) < 2 {
		return time.Time{}, ismnerr.New(ismnerr.CodeTruncatedFile, "line lacks date and time columns")
	}
	t, err := pool.ParseStamp([]byte(fields[0]), []byte(fields[1]))
	if err != nil {
		return time.Time{}, ismnerr.InvalidTimestamp(fields[0] + " " + fields[1])
	}
	return t, nil
}

func floats(fields []string, at int, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, n := range names {
		s := fields[at+i]
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, ismnerr.InvalidNumber(n, s)
		}
		out[i] = f
	}
	return out, nil
}
