// Package export writes an index to columnar and spreadsheet formats and
// queries the exports with DuckDB.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/soilnet/ismn/pkg/collection"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
)

const createdBy = "ismn indexer"

// Column names shared by all exports.
const (
	ColumnIndex     = "idx"
	DepthFromSuffix = "_depth_from"
	DepthToSuffix   = "_depth_to"
)

// Options controls Parquet output.
type Options struct {
	// Compression is snappy, zstd, gzip or none.
	Compression string
	// RowGroupSize caps the rows per row group.
	RowGroupSize int64
	// Metadata is stored in the schema under "ismn." keys.
	Metadata map[string]string
}

// DefaultOptions returns snappy compression with 64k row groups.
func DefaultOptions() Options {
	return Options{Compression: "snappy", RowGroupSize: 64 * 1024}
}

// Result describes a written export.
type Result struct {
	Path     string
	Rows     int64
	Bytes    int64
	Duration time.Duration
}

func getCompression(c string) compress.Compression {
	switch c {
	case "snappy":
		return compress.Codecs.Snappy
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Uncompressed
	}
}

// column is one metadata name laid out as value, depth_from, depth_to.
type column struct {
	key  string
	kind meta.Kind
}

// columns types each key by the values the collection holds: float and time
// columns keep their type when no file disagrees, everything else is text.
func columns(files []*filehandler.DataFile, keys []string) []column {
	cols := make([]column, len(keys))
	for i, k := range keys {
		kind := meta.KindNull
		for _, f := range files {
			mv, err := f.Metadata().Get(k)
			if err != nil || mv.Value.Kind() == meta.KindNull {
				continue
			}
			switch {
			case kind == meta.KindNull:
				kind = mv.Value.Kind()
			case kind != mv.Value.Kind():
				kind = meta.KindString
			}
		}
		if kind == meta.KindNull {
			kind = meta.KindString
		}
		cols[i] = column{key: k, kind: kind}
	}
	return cols
}

// Schema returns the Arrow schema of the export of c.
func Schema(c *collection.FileCollection) *arrow.Schema {
	files, _ := c.Handlers()
	return schemaFor(columns(files, collection.TableKeys(c)), nil)
}

func schemaFor(cols []column, md map[string]string) *arrow.Schema {
	fields := []arrow.Field{{Name: ColumnIndex, Type: arrow.PrimitiveTypes.Int64}}
	for _, col := range cols {
		var typ arrow.DataType
		switch col.kind {
		case meta.KindFloat:
			typ = arrow.PrimitiveTypes.Float64
		case meta.KindTime:
			typ = &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}
		default:
			typ = arrow.BinaryTypes.String
		}
		fields = append(fields,
			arrow.Field{Name: col.key, Type: typ, Nullable: true},
			arrow.Field{Name: col.key + DepthFromSuffix, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			arrow.Field{Name: col.key + DepthToSuffix, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		)
	}
	fields = append(fields,
		arrow.Field{Name: collection.ColumnFilePath, Type: arrow.BinaryTypes.String},
		arrow.Field{Name: collection.ColumnFileType, Type: arrow.BinaryTypes.String},
	)

	var keys, values []string
	for k, v := range md {
		keys = append(keys, "ismn."+k)
		values = append(values, v)
	}
	schemaMeta := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &schemaMeta)
}

// buildRecord converts the files to a single Arrow record in index order.
func buildRecord(mem memory.Allocator, schema *arrow.Schema, cols []column, files []*filehandler.DataFile) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, f := range files {
		md := f.Metadata()
		b.Field(0).(*array.Int64Builder).Append(int64(i))
		for j, col := range cols {
			vb := b.Field(1 + 3*j)
			from := b.Field(2 + 3*j).(*array.Float64Builder)
			to := b.Field(3 + 3*j).(*array.Float64Builder)

			mv, err := md.Get(col.key)
			if err != nil {
				vb.AppendNull()
				from.AppendNull()
				to.AppendNull()
				continue
			}
			appendValue(vb, col.kind, mv.Value)
			if mv.Depth != nil {
				from.Append(mv.Depth.Start)
				to.Append(mv.Depth.End)
			} else {
				from.AppendNull()
				to.AppendNull()
			}
		}
		n := len(schema.Fields())
		b.Field(n - 2).(*array.StringBuilder).Append(f.Path())
		b.Field(n - 1).(*array.StringBuilder).Append(string(f.FileType()))
	}
	return b.NewRecord()
}

func appendValue(vb array.Builder, kind meta.Kind, v meta.Value) {
	if v.Kind() == meta.KindNull {
		vb.AppendNull()
		return
	}
	switch kind {
	case meta.KindFloat:
		f, _ := v.AsFloat()
		vb.(*array.Float64Builder).Append(f)
	case meta.KindTime:
		t, _ := v.AsTime()
		vb.(*array.TimestampBuilder).Append(arrow.Timestamp(t.Unix()))
	default:
		vb.(*array.StringBuilder).Append(v.String())
	}
}

// WriteParquet writes c to w as one Parquet file with one row per sensor
// file. It returns the number of rows written.
func WriteParquet(w io.Writer, c *collection.FileCollection, opts Options) (int64, error) {
	files, err := c.Handlers()
	if err != nil {
		return 0, err
	}
	cols := columns(files, collection.TableKeys(c))
	schema := schemaFor(cols, opts.Metadata)

	rowGroup := opts.RowGroupSize
	if rowGroup <= 0 {
		rowGroup = DefaultOptions().RowGroupSize
	}
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(getCompression(opts.Compression)),
		parquet.WithMaxRowGroupLength(rowGroup),
		parquet.WithDictionaryDefault(true),
		parquet.WithStats(true),
		parquet.WithCreatedBy(createdBy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, w, writerProps, arrowProps)
	if err != nil {
		return 0, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	rec := buildRecord(memory.NewGoAllocator(), schema, cols, files)
	defer rec.Release()

	if err := fw.Write(rec); err != nil {
		fw.Close()
		return 0, fmt.Errorf("failed to write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close writer: %w", err)
	}
	return rec.NumRows(), nil
}

// WriteParquetFile writes c to path through a temporary file renamed on
// success.
func WriteParquetFile(path string, c *collection.FileCollection, opts Options) (*Result, error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	// The Parquet writer closes the file on success.
	defer tmp.Close()

	rows, err := WriteParquet(tmp, c, opts)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to rename temp file to final path: %w", err)
	}

	res := &Result{Path: path, Rows: rows, Duration: time.Since(start)}
	if info, err := os.Stat(path); err == nil {
		res.Bytes = info.Size()
	}
	return res, nil
}
