package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/tui"
)

var infoFiles bool

var infoCmd = &cobra.Command{
	Use:   "info <archive>",
	Short: "Show the networks and stations of an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoFiles, "files", false, "List every indexed file")
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	tui.PrintHeader(os.Stdout, version)
	fmt.Printf("  %s: %d files\n\n", c.Root().Name(), c.Len())
	for _, n := range c.Networks() {
		files, err := c.Handlers(n)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %4d stations %6d files\n", n, countStations(files), len(files))
	}
	fmt.Println()

	if infoFiles {
		files, err := c.Handlers()
		if err != nil {
			return err
		}
		fmt.Println(tui.RenderFiles(files, nil))
	}
	return nil
}

func countStations(files []*filehandler.DataFile) int {
	seen := make(map[string]bool)
	for _, f := range files {
		seen[f.Metadata().Station()] = true
	}
	return len(seen)
}

// sortedKeys is used by commands printing maps.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
