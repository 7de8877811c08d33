package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/soilnet/ismn/pkg/meta"
)

var (
	readHead     int
	readMetadata bool
)

var readCmd = &cobra.Command{
	Use:   "read <archive> <index>",
	Short: "Print the metadata and observations of one indexed file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRead,
}

func init() {
	readCmd.Flags().IntVarP(&readHead, "head", "n", 10, "Observations to print (0 = all)")
	readCmd.Flags().BoolVarP(&readMetadata, "metadata", "m", false, "Print every metadata variable")
}

func runRead(cmd *cobra.Command, args []string) error {
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[1], err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	c, _, err := a.loadIndex(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := c.Handler(idx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", f.Path(), f.FileType())
	if readMetadata {
		for _, v := range f.Metadata().Vars() {
			fmt.Printf("  %s\n", v)
		}
	}

	ts, err := f.ReadData(ctx)
	if err != nil {
		return err
	}
	n := ts.Len()
	if readHead > 0 && readHead < n {
		n = readHead
	}
	fmt.Printf("\n%s: %d observations\n", ts.Variable, ts.Len())
	for _, o := range ts.Observations[:n] {
		fmt.Printf("  %s  %10g  %-4s %s\n", o.Time.Format(meta.TimeLayout), o.Value, o.Flag, o.OrigFlag)
	}
	return nil
}
