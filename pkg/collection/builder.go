package collection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soilnet/ismn/internal/logger"
	"github.com/soilnet/ismn/pkg/archive"
	"github.com/soilnet/ismn/pkg/checkpoint"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/telemetry"
)

// Builder indexes archives.
type Builder struct {
	workers     int
	scratchRoot string
	logDir      string
	readers     []MetaReader
	store       checkpoint.Store
	progress    func(done, total int)
	logger      *zap.Logger
	tracer      trace.Tracer
	metrics     *telemetry.Metrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers sets the number of parallel station scans. Values below 1
// select one worker per CPU.
func WithWorkers(n int) Option { return func(b *Builder) { b.workers = n } }

// WithScratchRoot sets the directory temporary extractions go to.
func WithScratchRoot(dir string) Option { return func(b *Builder) { b.scratchRoot = dir } }

// WithLogDir sets the directory of the error log. It defaults to the
// directory holding the archive.
func WithLogDir(dir string) Option { return func(b *Builder) { b.logDir = dir } }

// WithMetaReaders adds custom metadata readers applied to every file.
func WithMetaReaders(r ...MetaReader) Option {
	return func(b *Builder) { b.readers = append(b.readers, r...) }
}

// WithCheckpoint stores finished station scans in s and reuses them.
func WithCheckpoint(s checkpoint.Store) Option { return func(b *Builder) { b.store = s } }

// WithProgress calls fn after every station scan. Calls are serialized.
func WithProgress(fn func(done, total int)) Option { return func(b *Builder) { b.progress = fn } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *Builder) { b.logger = l } }

// WithTracer records a span per station scan.
func WithTracer(t trace.Tracer) Option { return func(b *Builder) { b.tracer = t } }

// WithMetrics records build metrics.
func WithMetrics(m *telemetry.Metrics) Option { return func(b *Builder) { b.metrics = m } }

// NewBuilder creates a builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers < 1 {
		b.workers = runtime.NumCPU()
	}
	if b.workers < 1 {
		b.workers = 1
	}
	b.logger = logger.OrNop(b.logger)
	return b
}

// Workers returns the configured concurrency.
func (b *Builder) Workers() int { return b.workers }

// Build indexes the archive at archivePath. Only setup errors and context
// cancellation are returned; every other problem is recorded in the report
// and the error log. The returned collection owns the opened archive.
func (b *Builder) Build(ctx context.Context, archivePath string) (*FileCollection, *Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Archive: archivePath, Started: start}
	log := b.logger.With(zap.String("run_id", report.RunID), zap.String("archive", archivePath))

	root, scratch, logDir, err := b.setup(archivePath)
	if err != nil {
		return nil, nil, err
	}

	networks, err := root.Cont()
	if err != nil {
		root.Close()
		return nil, nil, ismnerr.Wrap(err, ismnerr.CodeArchiveOpen, "failed to list station folders").
			WithContext("archive", archivePath)
	}

	var tasks []StationTask
	for _, n := range networks {
		for _, st := range n.Stations {
			tasks = append(tasks, StationTask{ArchivePath: root.Path(), Folder: st, ScratchRoot: scratch})
		}
	}
	log.Info("indexing archive", zap.Int("networks", len(networks)), zap.Int("stations", len(tasks)),
		zap.Int("workers", b.workers))

	modTime := archiveModTime(root.Path())
	results := make([]StationResult, len(tasks))

	var (
		mu   sync.Mutex
		done int
		hits int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, task := range tasks {
		g.Go(func() error {
			res, hit := b.scan(gctx, root, task, modTime)
			results[i] = res

			mu.Lock()
			done++
			if hit {
				hits++
			}
			if b.progress != nil {
				b.progress(done, len(tasks))
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		root.Close()
		return nil, nil, err
	}

	var entries []Entry
	for _, res := range results {
		entries = append(entries, res.Entries...)
		report.Errors = append(report.Errors, res.Errors...)
		report.Warnings = append(report.Warnings, res.Warnings...)
	}
	sortEntries(entries)
	c := newCollection(root, entries)

	report.Networks = len(c.networks)
	report.Stations = len(tasks)
	report.Files = len(entries)
	report.CheckpointHits = hits
	report.Duration = time.Since(start)
	b.metrics.ObserveBuild(report.Duration)

	if len(report.Errors)+len(report.Warnings) > 0 {
		p, err := report.AppendLog(logDir, root.Name())
		if err != nil {
			log.Warn("failed to write error log", zap.Error(err))
		}
		report.LogPath = p
	}

	log.Info("index built",
		zap.Int("files", report.Files),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("checkpoint_hits", hits),
		zap.Duration("duration", report.Duration))
	return c, report, nil
}

// setup opens the archive and creates the scratch and log directories.
func (b *Builder) setup(archivePath string) (archive.Root, string, string, error) {
	root, err := archive.Open(archivePath)
	if err != nil {
		return nil, "", "", err
	}

	scratch := b.scratchRoot
	if scratch == "" {
		scratch = os.TempDir()
	}
	if err := os.MkdirAll(scratch, 0755); err != nil {
		root.Close()
		return nil, "", "", ismnerr.Wrap(err, ismnerr.CodeScratchDir, "failed to create scratch directory").
			WithContext("dir", scratch)
	}

	logDir := b.logDir
	if logDir == "" {
		logDir = filepath.Dir(root.Path())
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		root.Close()
		return nil, "", "", ismnerr.Wrap(err, ismnerr.CodeOutputDir, "failed to create log directory").
			WithContext("dir", logDir)
	}
	return root, scratch, logDir, nil
}

// scan runs one station task, going through the checkpoint store when one
// is configured. The second result reports a checkpoint hit.
func (b *Builder) scan(ctx context.Context, root archive.Root, task StationTask, modTime time.Time) (StationResult, bool) {
	ctx, span := telemetry.StartStationSpan(ctx, b.tracer, task.Folder)
	started := time.Now()

	var key string
	store := b.store
	if store != nil {
		stamps, err := folderStamps(root, task.Folder)
		if err != nil {
			b.logger.Warn("checkpoint skipped", zap.String("folder", task.Folder), zap.Error(err))
			store = nil
		}
		key = checkpoint.Key(task.ArchivePath, modTime, task.Folder, stamps...)
	}
	if store != nil {
		if res, ok := b.loadCheckpoint(ctx, key, root, task); ok {
			b.metrics.CheckpointHit()
			telemetry.EndStationSpan(span, len(res.Entries), len(res.Errors), len(res.Warnings))
			return res, true
		}
	}

	res := ScanStation(ctx, task, ScanOptions{Readers: b.readers, Logger: b.logger})

	if store != nil && ctx.Err() == nil {
		if data, err := encodeResult(res); err != nil {
			b.logger.Warn("failed to encode checkpoint", zap.String("folder", task.Folder), zap.Error(err))
		} else if err := store.Save(ctx, key, data); err != nil {
			b.logger.Warn("failed to save checkpoint", zap.String("folder", task.Folder),
				zap.String("store", store.Name()), zap.Error(err))
		}
	}

	kinds := make([]string, len(res.Errors))
	for i, e := range res.Errors {
		kinds[i] = e.Kind.String()
	}
	b.metrics.ObserveStation(time.Since(started), len(res.Entries), len(res.Warnings), kinds)
	telemetry.EndStationSpan(span, len(res.Entries), len(res.Errors), len(res.Warnings))
	return res, false
}

func (b *Builder) loadCheckpoint(ctx context.Context, key string, root archive.Root, task StationTask) (StationResult, bool) {
	data, ok, err := b.store.Load(ctx, key)
	if err != nil {
		b.logger.Warn("failed to load checkpoint", zap.String("folder", task.Folder),
			zap.String("store", b.store.Name()), zap.Error(err))
		return StationResult{}, false
	}
	if !ok {
		return StationResult{}, false
	}
	res, err := decodeResult(data, root, task.ScratchRoot)
	if err != nil {
		b.logger.Warn("discarding checkpoint", zap.String("folder", task.Folder), zap.Error(err))
		return StationResult{}, false
	}
	b.logger.Debug("station served from checkpoint", zap.String("folder", task.Folder))
	return res, true
}

// folderStamps lists name, size and modification time of every file in a
// station folder of a directory archive. Editing files there leaves the
// archive root time unchanged. Zip members are covered by the zip file
// time and give no stamps.
func folderStamps(root archive.Root, folder string) ([]string, error) {
	if root.IsZip() {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(root.Path(), filepath.FromSlash(folder)))
	if err != nil {
		return nil, err
	}
	stamps := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		stamps = append(stamps, fmt.Sprintf("%s:%d:%d", e.Name(), info.Size(), info.ModTime().UnixNano()))
	}
	return stamps, nil
}

func archiveModTime(p string) time.Time {
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// BuildOrLoad returns the index stored in the flat table at tablePath when
// it exists, and otherwise builds the index and writes the table. The
// report is nil when the table was loaded.
func (b *Builder) BuildOrLoad(ctx context.Context, archivePath, tablePath string) (*FileCollection, *Report, error) {
	if f, err := os.Open(tablePath); err == nil {
		defer f.Close()
		root, err := archive.Open(archivePath)
		if err != nil {
			return nil, nil, err
		}
		c, err := FromTable(root, f)
		if err != nil {
			root.Close()
			return nil, nil, fmt.Errorf("failed to load index table %s: %w", tablePath, err)
		}
		b.logger.Info("index loaded from table", zap.String("table", tablePath), zap.Int("files", c.Len()))
		return c, nil, nil
	}

	c, report, err := b.Build(ctx, archivePath)
	if err != nil {
		return nil, nil, err
	}
	if err := WriteTableFile(tablePath, c); err != nil {
		c.Close()
		return nil, nil, ismnerr.Wrap(err, ismnerr.CodeOutputDir, "failed to write index table").
			WithContext("table", tablePath)
	}
	return c, report, nil
}

// WriteTableFile writes the flat table of c to path atomically.
func WriteTableFile(path string, c *FileCollection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if err := WriteTable(tmp, c); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadTableFile loads the collection stored at path, reading data from
// root.
func ReadTableFile(path string, root archive.Root, networks ...string) (*FileCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromTable(root, f, networks...)
}
