package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/soilnet/ismn/pkg/collection"
	"github.com/soilnet/ismn/pkg/meta"
)

// Sheet names of the workbook export.
const (
	SheetIndex  = "index"
	SheetErrors = "errors"
)

// WriteXLSX writes c as a workbook. The index sheet mirrors the flat table:
// two header rows, then one row per file led by its index. When rep is
// given its error and warning records go to a second sheet.
func WriteXLSX(w io.Writer, c *collection.FileCollection, rep *collection.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetIndex); err != nil {
		return err
	}
	if err := writeIndexSheet(f, c); err != nil {
		return err
	}
	if rep != nil {
		if err := writeErrorSheet(f, rep); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteXLSXFile writes the workbook to path.
func WriteXLSXFile(path string, c *collection.FileCollection, rep *collection.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteXLSX(out, c, rep); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

func writeIndexSheet(f *excelize.File, c *collection.FileCollection) error {
	sw, err := f.NewStreamWriter(SheetIndex)
	if err != nil {
		return err
	}

	keys := collection.TableKeys(c)
	names, fields := collection.TableHeader(keys)
	if err := sw.SetRow("A1", cells(names)); err != nil {
		return err
	}
	if err := sw.SetRow("A2", cells(fields)); err != nil {
		return err
	}

	files, err := c.Handlers()
	if err != nil {
		return err
	}
	for i, df := range files {
		md := df.Metadata()
		row := make([]interface{}, 0, len(names))
		row = append(row, i)
		for _, k := range keys {
			mv, err := md.Get(k)
			if err != nil {
				row = append(row, nil, nil, nil)
				continue
			}
			row = append(row, cellValue(mv.Value))
			if mv.Depth != nil {
				row = append(row, mv.Depth.Start, mv.Depth.End)
			} else {
				row = append(row, nil, nil)
			}
		}
		row = append(row, df.Path(), string(df.FileType()))

		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func writeErrorSheet(f *excelize.File, rep *collection.Report) error {
	if _, err := f.NewSheet(SheetErrors); err != nil {
		return err
	}
	header := []interface{}{"severity", "kind", "code", "path", "message"}
	if err := f.SetSheetRow(SheetErrors, "A1", &header); err != nil {
		return err
	}

	row := 2
	put := func(severity string, recs []collection.ErrorRecord) error {
		for _, r := range recs {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			vals := []interface{}{severity, r.Kind.String(), string(r.Code), r.Path, r.Message}
			if err := f.SetSheetRow(SheetErrors, cell, &vals); err != nil {
				return err
			}
			row++
		}
		return nil
	}
	if err := put("warning", rep.Warnings); err != nil {
		return err
	}
	return put("error", rep.Errors)
}

func cells(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func cellValue(v meta.Value) interface{} {
	switch v.Kind() {
	case meta.KindFloat:
		f, _ := v.AsFloat()
		return f
	case meta.KindTime:
		t, _ := v.AsTime()
		return t
	case meta.KindString:
		return v.String()
	default:
		return nil
	}
}
