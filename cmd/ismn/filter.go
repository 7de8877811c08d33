package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/pkg/collection"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
	"github.com/soilnet/ismn/pkg/tui"
)

var (
	filterVariables []string
	filterNetworks  []string
	filterMeta      []string
	filterMinDepth  float64
	filterMaxDepth  float64
	filterDepthFrom bool
	filterIDsOnly   bool
)

var filterCmd = &cobra.Command{
	Use:   "filter <archive>",
	Short: "Select indexed files by variable, depth and metadata",
	Long: `Prints the files matching every given condition. Repeated values of one
condition are alternatives.

Examples:
  ismn filter archive.zip --variable soil_moisture --max-depth 0.1
  ismn filter archive.zip --meta lc_2010=130 --meta climate_KG=Dfb
  ismn filter archive.zip --network SCAN --ids`,
	Args: cobra.ExactArgs(1),
	RunE: runFilter,
}

func init() {
	addFilterFlags(filterCmd.Flags())
	filterCmd.Flags().BoolVar(&filterIDsOnly, "ids", false, "Print only the matching indices")
}

// addFilterFlags registers the selection flags shared by filter and export.
func addFilterFlags(f *pflag.FlagSet) {
	f.StringSliceVar(&filterVariables, "variable", nil, "Measured variable, e.g. soil_moisture")
	f.StringSliceVar(&filterNetworks, "network", nil, "Network name")
	f.StringArrayVar(&filterMeta, "meta", nil, "Metadata condition key=value")
	f.Float64Var(&filterMinDepth, "min-depth", math.NaN(), "Shallowest sensor depth in metres")
	f.Float64Var(&filterMaxDepth, "max-depth", math.NaN(), "Deepest sensor depth in metres")
	f.BoolVar(&filterDepthFrom, "only-depth-from", false, "Compare only the upper sensor depth")
}

// parseMetaFilter turns key=value conditions into a metadata filter. Values
// are typed by the key's known kind.
func parseMetaFilter(conds []string) (map[string][]meta.Value, error) {
	out := make(map[string][]meta.Value)
	for _, c := range conds {
		k, v, ok := strings.Cut(c, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, ismnerr.New(ismnerr.CodeInvalidFilter, "metadata condition must be key=value").
				WithContext("condition", c)
		}
		val, err := meta.ParseKind(meta.KindOf(k), v)
		if err != nil {
			return nil, ismnerr.Wrapf(err, ismnerr.CodeInvalidFilter, "invalid %s value %q", k, strings.TrimSpace(v))
		}
		out[k] = append(out[k], val)
	}
	return out, nil
}

func stringValues(ss []string) []meta.Value {
	out := make([]meta.Value, len(ss))
	for i, s := range ss {
		out[i] = meta.String(s)
	}
	return out
}

// intersect keeps the indices present in every set. A nil set is no
// condition.
func intersect(sets ...[]int) []int {
	var (
		out    []int
		counts = make(map[int]int)
		active int
	)
	for _, s := range sets {
		if s == nil {
			continue
		}
		active++
		for _, i := range s {
			counts[i]++
		}
	}
	for i, n := range counts {
		if n == active {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// selectFiles applies the filter flags to c. nil means every file.
func selectFiles(c *collection.FileCollection) ([]int, error) {
	var sets [][]int

	nonNil := func(s []int) []int {
		if s == nil {
			return []int{}
		}
		return s
	}

	if len(filterVariables) > 0 {
		s, err := c.FilterColumnValue(string(meta.KeyVariable), stringValues(filterVariables)...)
		if err != nil {
			return nil, err
		}
		sets = append(sets, nonNil(s))
	}
	if len(filterNetworks) > 0 {
		s, err := c.FilterColumnValue(string(meta.KeyNetwork), stringValues(filterNetworks)...)
		if err != nil {
			return nil, err
		}
		sets = append(sets, nonNil(s))
	}
	if !math.IsNaN(filterMinDepth) || !math.IsNaN(filterMaxDepth) {
		sets = append(sets, nonNil(c.FilterDepth(filterMinDepth, filterMaxDepth, filterDepthFrom)))
	}
	if len(filterMeta) > 0 {
		mf, err := parseMetaFilter(filterMeta)
		if err != nil {
			return nil, err
		}
		s, err := c.FilterMetadata(mf)
		if err != nil {
			return nil, err
		}
		sets = append(sets, nonNil(s))
	}
	if len(sets) == 0 {
		return nil, nil
	}
	return intersect(sets...), nil
}

func runFilter(cmd *cobra.Command, args []string) error {
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

	idx, err := selectFiles(c)
	if err != nil {
		return err
	}
	if idx == nil {
		idx = make([]int, c.Len())
		for i := range idx {
			idx[i] = i
		}
	}
	log.Debug("filter applied", zap.Int("matches", len(idx)), zap.Int("files", c.Len()))

	if filterIDsOnly {
		for _, i := range idx {
			fmt.Println(i)
		}
		return nil
	}

	files := make([]*filehandler.DataFile, len(idx))
	for n, i := range idx {
		if files[n], err = c.Handler(i); err != nil {
			return err
		}
	}
	fmt.Println(tui.RenderFiles(files, idx))
	fmt.Printf("%d of %d files\n", len(idx), c.Len())
	return nil
}
