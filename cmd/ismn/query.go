package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soilnet/ismn/pkg/export"
	"github.com/soilnet/ismn/pkg/tui"
)

var queryCountBy string

var queryCmd = &cobra.Command{
	Use:   "query <index.parquet> [sql]",
	Short: "Run SQL over a Parquet export",
	Long: `Runs a query with DuckDB. The export is available as the view "ismn".

Examples:
  ismn query index.parquet "SELECT network, count(*) FROM ismn GROUP BY 1"
  ismn query index.parquet --count-by climate_KG`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryCountBy, "count-by", "", "Count files per value of a column")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	if queryCountBy != "" {
		e, err := export.NewEngine(ctx, args[0])
		if err != nil {
			return err
		}
		defer e.Close()
		counts, err := e.CountBy(ctx, queryCountBy)
		if err != nil {
			return err
		}
		rows := make([][]interface{}, 0, len(counts))
		for _, k := range sortedKeys(counts) {
			rows = append(rows, []interface{}{k, counts[k]})
		}
		fmt.Println(tui.RenderRows([]string{queryCountBy, "files"}, rows))
		return nil
	}

	if len(args) < 2 {
		return fmt.Errorf("query needs a SQL statement or --count-by")
	}
	res, err := export.QueryParquet(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderRows(res.Columns, res.Rows))
	fmt.Printf("%d rows\n", len(res.Rows))
	return nil
}
