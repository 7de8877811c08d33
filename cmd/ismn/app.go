package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/pkg/checkpoint"
	"github.com/soilnet/ismn/pkg/collection"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/telemetry"
	"github.com/soilnet/ismn/pkg/tui"
)

// app wires the builder to the configured checkpoint store, telemetry and
// progress output.
type app struct {
	builder *collection.Builder
	closers []func(context.Context) error
}

func newApp(ctx context.Context, progress bool) (*app, error) {
	a := &app{}
	opts := []collection.Option{
		collection.WithWorkers(cfg.Build.Workers),
		collection.WithScratchRoot(cfg.Build.ScratchDir),
		collection.WithLogDir(cfg.Build.LogDir),
		collection.WithLogger(log),
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, collection.WithCheckpoint(store))
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		log.Debug("checkpoints enabled", zap.String("store", store.Name()))
	}

	if cfg.Telemetry.Enabled {
		ocfg := telemetry.DefaultOTLPConfig()
		ocfg.Endpoint = cfg.Telemetry.Endpoint
		ocfg.SamplingRatio = cfg.Telemetry.SampleRate
		ocfg.ServiceVersion = version
		shutdown, err := telemetry.InitOTLP(ctx, ocfg)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
		opts = append(opts, collection.WithTracer(telemetry.Tracer(nil)))
	}

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	opts = append(opts, collection.WithMetrics(metrics))
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		a.serveMetrics(addr, reg)
	}

	if progress {
		opts = append(opts, collection.WithProgress(tui.ProgressFunc(os.Stderr)))
	}

	a.builder = collection.NewBuilder(opts...)
	return a, nil
}

func openStore(ctx context.Context) (checkpoint.Store, error) {
	c := cfg.Checkpoint

	local := func() (checkpoint.Store, error) {
		fs, err := checkpoint.NewFileStore(c.Dir)
		if err != nil {
			return nil, err
		}
		if n, err := fs.Cleanup(c.MaxAge); err != nil {
			log.Warn("checkpoint cleanup failed", zap.Error(err))
		} else if n > 0 {
			log.Debug("expired checkpoints removed", zap.Int("count", n))
		}
		return fs, nil
	}
	shared := func() (checkpoint.Store, error) {
		rc := checkpoint.DefaultRedisConfig(c.Redis.Addr)
		rc.Password = c.Redis.Password
		rc.Database = c.Redis.DB
		if c.Redis.Prefix != "" {
			rc.Prefix = c.Redis.Prefix
		}
		rc.TTL = c.Redis.TTL
		return checkpoint.NewRedisStore(ctx, rc)
	}

	switch c.Backend {
	case "local":
		return local()
	case "redis":
		return shared()
	case "both":
		l, err := local()
		if err != nil {
			return nil, err
		}
		r, err := shared()
		if err != nil {
			return nil, err
		}
		return checkpoint.NewMultiStore(l, r), nil
	default:
		return nil, nil
	}
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	a.closers = append(a.closers, srv.Shutdown)
}

// Close releases everything newApp opened. Failures are logged only.
func (a *app) Close(ctx context.Context) {
	if err := a.shutdown(ctx); err != nil {
		log.Warn("shutdown failed", zap.Error(err))
	}
}

// shutdown runs every closer, newest first, and combines their failures.
func (a *app) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	var errs ismnerr.MultiError
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs.Add(a.closers[i](ctx))
	}
	a.closers = nil
	return errs.Combined()
}

// archiveStem is the archive file name without its extension.
func archiveStem(archivePath string) string {
	base := filepath.Base(filepath.Clean(archivePath))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// tablePath is the index table of archivePath: --table, or
// <archive><suffix> next to the archive.
func tablePath(archivePath string) string {
	if tableFlag != "" {
		return tableFlag
	}
	dir := filepath.Dir(filepath.Clean(archivePath))
	return filepath.Join(dir, archiveStem(archivePath)+cfg.Build.TableSuffix)
}

// loadIndex reuses the index table unless rebuild is set. The report is
// nil when the table was reused.
func (a *app) loadIndex(ctx context.Context, archivePath string, rebuild bool) (*collection.FileCollection, *collection.Report, error) {
	table := tablePath(archivePath)
	if !rebuild {
		return a.builder.BuildOrLoad(ctx, archivePath, table)
	}

	c, rep, err := a.builder.Build(ctx, archivePath)
	if err != nil {
		return nil, nil, err
	}
	if err := collection.WriteTableFile(table, c); err != nil {
		c.Close()
		return nil, nil, err
	}
	log.Info("index table written", zap.String("table", table))
	return c, rep, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
