package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/pkg/tui"
	"github.com/soilnet/ismn/pkg/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <archive>",
	Short: "Rebuild the index whenever the archive changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a rebuild")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	rebuild := func(ctx context.Context, path string) error {
		c, rep, err := a.loadIndex(ctx, path, true)
		if err != nil {
			return err
		}
		defer c.Close()
		log.Info("index rebuilt", zap.String("summary", rep.Summary()))
		tui.PrintReport(os.Stdout, rep, 5)
		return nil
	}

	if err := rebuild(ctx, args[0]); err != nil {
		return err
	}

	w, err := watch.NewWatcher(args[0], watch.WithDebounce(watchDebounce), watch.WithLogger(log))
	if err != nil {
		return err
	}
	defer w.Close()
	w.OnChange = rebuild

	log.Info("watching archive", zap.String("path", w.Root()))
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
