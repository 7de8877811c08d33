package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/pkg/tui"
)

var (
	buildForce      bool
	buildMaxRecords int
	buildQuiet      bool
)

var buildCmd = &cobra.Command{
	Use:   "build <archive>",
	Short: "Build or reuse the index of an archive",
	Long: `Scans every station folder of the archive and writes the index table next
to it. An existing table is reused unless --force is given.

Examples:
  ismn build Data_separate_files_20200101_20201231.zip
  ismn build ./Data_separate_files --force -w 8`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "Rebuild even if the index table exists")
	buildCmd.Flags().IntVar(&buildMaxRecords, "max-records", 20, "Error records to print")
	buildCmd.Flags().BoolVarP(&buildQuiet, "quiet", "q", false, "No progress bar")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, !buildQuiet)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	c, rep, err := a.loadIndex(ctx, args[0], buildForce)
	if err != nil {
		return err
	}
	defer c.Close()

	if rep == nil {
		log.Info("index table reused", zap.String("table", tablePath(args[0])), zap.Int("files", c.Len()))
		cmd.Printf("%d files in %d networks (from %s)\n", c.Len(), len(c.Networks()), tablePath(args[0]))
		return nil
	}
	tui.PrintReport(os.Stdout, rep, buildMaxRecords)
	return nil
}
