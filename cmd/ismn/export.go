package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/pkg/collection"
	"github.com/soilnet/ismn/pkg/export"
	"github.com/soilnet/ismn/pkg/tui"
)

var (
	exportOutput      string
	exportCompression string
)

var exportCmd = &cobra.Command{
	Use:   "export <archive>",
	Short: "Export the index as Parquet, Excel or CSV",
	Long: `Writes the index, or the files matching the selection flags, to the
output file. The format follows the output extension: .parquet, .xlsx or
.csv.

Examples:
  ismn export archive.zip -o index.parquet
  ismn export archive.zip -o moisture.xlsx --variable soil_moisture`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file")
	exportCmd.Flags().StringVar(&exportCompression, "compression", "", "Parquet compression (snappy, zstd, gzip, none)")
	addFilterFlags(exportCmd.Flags())
	_ = exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) error {
	ext := strings.ToLower(filepath.Ext(exportOutput))
	switch ext {
	case ".parquet", ".xlsx", ".csv":
	default:
		return fmt.Errorf("unsupported output format %q (use .parquet, .xlsx or .csv)", ext)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	c, rep, err := a.loadIndex(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer c.Close()

	out := c
	idx, err := selectFiles(c)
	if err != nil {
		return err
	}
	if idx != nil {
		if out, err = c.Subset(idx); err != nil {
			return err
		}
	}

	switch ext {
	case ".parquet":
		opts := export.Options{
			Compression:  cfg.Export.Compression,
			RowGroupSize: cfg.Export.RowGroupSize,
			Metadata:     map[string]string{"archive": c.Root().Name(), "version": version},
		}
		if exportCompression != "" {
			opts.Compression = exportCompression
		}
		res, err := export.WriteParquetFile(exportOutput, out, opts)
		if err != nil {
			return err
		}
		log.Info("parquet written", zap.String("path", res.Path), zap.Int64("rows", res.Rows),
			zap.Duration("duration", res.Duration))
		fmt.Printf("%d rows, %s -> %s\n", res.Rows, tui.FormatBytes(res.Bytes), res.Path)
	case ".xlsx":
		if err := export.WriteXLSXFile(exportOutput, out, rep); err != nil {
			return err
		}
		fmt.Printf("%d rows -> %s\n", out.Len(), exportOutput)
	case ".csv":
		if err := collection.WriteTableFile(exportOutput, out); err != nil {
			return err
		}
		fmt.Printf("%d rows -> %s\n", out.Len(), exportOutput)
	}
	return nil
}
