package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/xuri/excelize/v2"

	"github.com/soilnet/ismn/pkg/collection"
	"github.com/soilnet/ismn/pkg/testing/generators"
)

// testIndex builds 2 networks x 2 stations x 2 sensors; the first station
// has no attribute file.
func testIndex(t *testing.T) (*collection.FileCollection, *collection.Report) {
	t.Helper()
	stations := generators.NewArchiveGenerator(7).Stations(2, 2, 2)
	stations[0].NoStatic = true

	dir := filepath.Join(t.TempDir(), "archive")
	if err := generators.WriteDir(dir, stations); err != nil {
		t.Fatal(err)
	}
	c, rep, err := collection.NewBuilder(
		collection.WithScratchRoot(t.TempDir()),
		collection.WithLogDir(t.TempDir()),
	).Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if c.Len() != 8 {
		t.Fatalf("index has %d files, want 8", c.Len())
	}
	return c, rep
}

func readParquet(t *testing.T, data []byte) arrow.Table {
	t.Helper()
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	r, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("parquet reader: %v", err)
	}
	tbl, err := r.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	t.Cleanup(tbl.Release)
	return tbl
}

func TestWriteParquet(t *testing.T) {
	c, _ := testIndex(t)

	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Metadata = map[string]string{"archive": "test"}
	rows, err := WriteParquet(&buf, c, opts)
	if err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	if rows != 8 {
		t.Errorf("rows = %d, want 8", rows)
	}

	tbl := readParquet(t, buf.Bytes())
	if tbl.NumRows() != 8 {
		t.Fatalf("table has %d rows", tbl.NumRows())
	}

	types := map[string]arrow.Type{
		ColumnIndex:                     arrow.INT64,
		"clay_fraction":                 arrow.FLOAT64,
		"clay_fraction" + DepthToSuffix: arrow.FLOAT64,
		"latitude":                      arrow.FLOAT64,
		"timerange_from":                arrow.TIMESTAMP,
		"network":                       arrow.STRING,
		"lc_insitu":                     arrow.STRING,
		collection.ColumnFilePath:       arrow.STRING,
	}
	schema := tbl.Schema()
	for name, want := range types {
		idx := schema.FieldIndices(name)
		if len(idx) != 1 {
			t.Errorf("column %s missing", name)
			continue
		}
		if got := schema.Field(idx[0]).Type.ID(); got != want {
			t.Errorf("column %s has type %v, want %v", name, got, want)
		}
	}

	paths := tbl.Column(schema.FieldIndices(collection.ColumnFilePath)[0]).Data()
	row := 0
	for _, chunk := range paths.Chunks() {
		s := chunk.(*array.String)
		for i := 0; i < s.Len(); i++ {
			h, _ := c.Handler(row)
			if s.Value(i) != h.Path() {
				t.Errorf("row %d path = %s, want %s", row, s.Value(i), h.Path())
			}
			row++
		}
	}

	// The station without attribute file exports null land cover.
	lc := tbl.Column(schema.FieldIndices("lc_2010")[0]).Data().Chunk(0)
	h, _ := c.Handler(0)
	if h.Metadata().Value("lc_2010").IsEmpty() != lc.IsNull(0) {
		t.Errorf("lc_2010 null mismatch for %s", h.Path())
	}
}

func TestWriteParquetFile(t *testing.T) {
	c, _ := testIndex(t)
	p := filepath.Join(t.TempDir(), "out", "index.parquet")

	for _, compression := range []string{"snappy", "zstd", "gzip", "none"} {
		t.Run(compression, func(t *testing.T) {
			opts := Options{Compression: compression, RowGroupSize: 3}
			res, err := WriteParquetFile(p, c, opts)
			if err != nil {
				t.Fatalf("WriteParquetFile: %v", err)
			}
			if res.Rows != 8 || res.Bytes == 0 || res.Path != p {
				t.Errorf("result = %+v", res)
			}
			matches, _ := filepath.Glob(filepath.Join(filepath.Dir(p), "*.tmp"))
			if len(matches) != 0 {
				t.Errorf("temp files left: %v", matches)
			}
		})
	}
}

func TestWriteXLSX(t *testing.T) {
	c, rep := testIndex(t)

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, c, rep); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetIndex)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2+c.Len() {
		t.Fatalf("index sheet has %d rows, want %d", len(rows), 2+c.Len())
	}
	names, _ := collection.TableHeader(collection.TableKeys(c))
	if got := rows[0][len(rows[0])-2]; got != collection.ColumnFilePath || len(rows[0]) != len(names) {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != collection.FieldValue || rows[2][0] != "0" {
		t.Errorf("second header row %v, first row %v", rows[1][:4], rows[2][:1])
	}

	errRows, err := f.GetRows(SheetErrors)
	if err != nil {
		t.Fatal(err)
	}
	want := 1 + len(rep.Warnings) + len(rep.Errors)
	if len(errRows) != want || want < 2 {
		t.Fatalf("errors sheet has %d rows, want %d", len(errRows), want)
	}
	if errRows[1][0] != "warning" || errRows[1][1] != "structural" || errRows[1][2] != "E101" {
		t.Errorf("first record = %v", errRows[1])
	}
}

func TestWriteXLSX_NoReport(t *testing.T) {
	c, _ := testIndex(t)

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, c, nil); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 1 || got[0] != SheetIndex {
		t.Errorf("sheets = %v", got)
	}
}

func TestEngine(t *testing.T) {
	c, _ := testIndex(t)
	p := filepath.Join(t.TempDir(), "index.parquet")
	if _, err := WriteParquetFile(p, c, DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	res, err := QueryParquet(ctx, p, "SELECT COUNT(*) AS n FROM ismn")
	if err != nil {
		t.Fatalf("QueryParquet: %v", err)
	}
	if len(res.Rows) != 1 || res.Columns[0] != "n" {
		t.Fatalf("result = %+v", res)
	}
	if n, ok := res.Rows[0][0].(int64); !ok || n != 8 {
		t.Errorf("count = %v (%T)", res.Rows[0][0], res.Rows[0][0])
	}

	e, err := NewEngine(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	counts, err := e.CountBy(ctx, "network")
	if err != nil {
		t.Fatalf("CountBy: %v", err)
	}
	if counts["NETA"] != 4 || counts["NETB"] != 4 {
		t.Errorf("counts = %v", counts)
	}

	if _, err := e.Query(ctx, "SELECT missing_column FROM ismn"); err == nil {
		t.Error("query on an unknown column succeeded")
	}
	if _, err := NewEngine(ctx, filepath.Join(t.TempDir(), "absent.parquet")); err == nil {
		t.Error("NewEngine on a missing file succeeded")
	}
}
