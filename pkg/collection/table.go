package collection

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
)

// Flat table column names.
const (
	ColumnFilePath = "file_path"
	ColumnFileType = "file_type"
	FieldValue     = "value"
	FieldDepthFrom = "depth_from"
	FieldDepthTo   = "depth_to"
)

var triple = [3]string{FieldValue, FieldDepthFrom, FieldDepthTo}

// TableKeys returns the metadata names of c in table column order: the
// union over all files, sorted.
func TableKeys(c *FileCollection) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, f := range c.all() {
		for _, k := range f.Metadata().Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// TableHeader returns the two header rows of the flat table for keys.
func TableHeader(keys []string) (names, fields []string) {
	names = make([]string, 0, 1+3*len(keys)+2)
	fields = make([]string, 0, cap(names))
	names = append(names, "")
	fields = append(fields, "")
	for _, k := range keys {
		for _, f := range triple {
			names = append(names, k)
			fields = append(fields, f)
		}
	}
	names = append(names, ColumnFilePath, ColumnFileType)
	fields = append(fields, FieldValue, FieldValue)
	return names, fields
}

// TableRecord returns the cells of one file for keys, without the index
// column. Missing names give empty cells.
func TableRecord(f *filehandler.DataFile, keys []string) []string {
	md := f.Metadata()
	rec := make([]string, 0, 3*len(keys)+2)
	for _, k := range keys {
		mv, err := md.Get(k)
		if err != nil {
			rec = append(rec, "", "", "")
			continue
		}
		rec = append(rec, mv.Value.String())
		if mv.Depth != nil {
			rec = append(rec, formatFloat(mv.Depth.Start), formatFloat(mv.Depth.End))
		} else {
			rec = append(rec, "", "")
		}
	}
	return append(rec, f.Path(), string(f.FileType()))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// WriteTable writes c as a flat table: two header rows, then one row per
// file in index order led by its integer index.
func WriteTable(w io.Writer, c *FileCollection) error {
	keys := TableKeys(c)
	names, fields := TableHeader(keys)

	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return err
	}
	if err := cw.Write(fields); err != nil {
		return err
	}
	for i, f := range c.all() {
		rec := append([]string{strconv.Itoa(i)}, TableRecord(f, keys)...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TableRow is one file read back from a flat table.
type TableRow struct {
	Index    int
	Path     string
	FileType filehandler.FileType
	Metadata meta.MetaData
}

// ReadTable parses a flat table written by WriteTable. Value columns are
// typed per key: keys with a fixed kind use it, other columns are floats
// when every non-empty cell parses as one and strings otherwise. Empty
// depth cells give depth-less variables. A name whose three cells are empty
// is left out unless it is a station attribute or required key, which read
// back as null.
func ReadTable(r io.Reader) ([]TableRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, invalidTable(err, "failed to parse table")
	}
	if len(records) < 2 {
		return nil, ismnerr.New(ismnerr.CodeInvalidTable, "table lacks its two header rows")
	}

	keys, err := parseHeader(records[0], records[1])
	if err != nil {
		return nil, err
	}
	body := records[2:]
	width := len(records[0])

	// Keys without a fixed kind are typed cell by cell, so a column may
	// mix floats and strings.
	kinds := make([]meta.Kind, len(keys))
	for i, k := range keys {
		kinds[i] = meta.KindOf(k)
	}

	rows := make([]TableRow, 0, len(body))
	for n, rec := range body {
		if len(rec) != width {
			return nil, ismnerr.Newf(ismnerr.CodeInvalidTable, "row has %d cells, expected %d", len(rec), width).
				WithContext("row", n+3)
		}
		row, err := parseRow(rec, keys, kinds)
		if err != nil {
			if e, ok := err.(*ismnerr.Error); ok {
				e.WithContext("row", n+3)
			}
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func invalidTable(err error, msg string) *ismnerr.Error {
	return ismnerr.Wrap(err, ismnerr.CodeInvalidTable, msg)
}

func parseHeader(names, fields []string) ([]string, error) {
	n := len(names)
	if n != len(fields) || n < 3 || (n-3)%3 != 0 {
		return nil, ismnerr.Newf(ismnerr.CodeInvalidTable, "malformed header of %d and %d cells", len(names), len(fields))
	}
	if names[n-2] != ColumnFilePath || names[n-1] != ColumnFileType {
		return nil, ismnerr.New(ismnerr.CodeInvalidTable, "header does not end with file_path, file_type")
	}

	keys := make([]string, 0, (n-3)/3)
	for i := 1; i < n-2; i += 3 {
		k := names[i]
		for j, f := range triple {
			if names[i+j] != k || fields[i+j] != f {
				return nil, ismnerr.Newf(ismnerr.CodeInvalidTable, "column %d is %s/%s, expected %s/%s",
					i+j, names[i+j], fields[i+j], k, f)
			}
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseRow(rec []string, keys []string, kinds []meta.Kind) (TableRow, error) {
	idx, err := strconv.Atoi(rec[0])
	if err != nil {
		return TableRow{}, invalidTable(err, "invalid row index")
	}

	vars := make([]meta.MetaVar, 0, len(keys))
	for i, k := range keys {
		c := rec[1+3*i : 4+3*i]
		if c[0] == "" && c[1] == "" && c[2] == "" && !keepEmpty(k) {
			continue
		}
		v, err := meta.ParseKind(kinds[i], c[0])
		if err != nil {
			return TableRow{}, invalidTable(err, "invalid value").WithContext("key", k)
		}
		mv := meta.NewVar(k, v)
		if c[1] != "" || c[2] != "" {
			d, err := parseDepth(c[1], c[2])
			if err != nil {
				return TableRow{}, invalidTable(err, "invalid depth").WithContext("key", k)
			}
			mv = meta.NewDepthVar(k, v, d)
		}
		vars = append(vars, mv)
	}

	n := len(rec)
	return TableRow{
		Index:    idx,
		Path:     rec[n-2],
		FileType: filehandler.ParseFileType(rec[n-1]),
		Metadata: meta.New(vars...),
	}, nil
}

func keepEmpty(key string) bool {
	if meta.IsStaticKey(key) {
		return true
	}
	for _, k := range meta.RequiredKeys {
		if string(k) == key {
			return true
		}
	}
	return false
}

func parseDepth(from, to string) (meta.Depth, error) {
	start, err := strconv.ParseFloat(from, 64)
	if err != nil {
		return meta.Depth{}, err
	}
	end, err := strconv.ParseFloat(to, 64)
	if err != nil {
		return meta.Depth{}, err
	}
	return meta.NewDepth(start, end)
}

// FromTable rebuilds a collection from a flat table without reading the
// raw files. Every row must carry the required keys. When networks are
// given only their files are kept. The files read their data from root and
// extract into the default temporary directory.
func FromTable(root archive.Root, r io.Reader, networks ...string) (*FileCollection, error) {
	rows, err := ReadTable(r)
	if err != nil {
		return nil, err
	}

	var keep map[string]bool
	if len(networks) > 0 {
		keep = make(map[string]bool, len(networks))
		for _, n := range networks {
			keep[n] = true
		}
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		if err := row.Metadata.CheckRequired(); err != nil {
			return nil, invalidTable(err, "table row lacks a required key").
				WithContext("path", row.Path)
		}
		net := row.Metadata.Network()
		if keep != nil && !keep[net] {
			continue
		}
		df := filehandler.FromMetadata(root, row.Path, row.FileType, row.Metadata, "")
		entries = append(entries, Entry{Network: net, Station: row.Metadata.Station(), File: df})
	}
	sortEntries(entries)
	return newCollection(root, entries), nil
}
