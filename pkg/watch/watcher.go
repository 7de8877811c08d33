// Package watch rebuilds an index when its archive changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/internal/logger"
)

// DefaultDebounce is the quiet period before a change triggers a rebuild.
const DefaultDebounce = 2 * time.Second

// Watcher monitors an archive, a zip file or a directory tree, and calls
// OnChange once the archive has been quiet for the debounce period.
// Changes arriving during a rebuild cause exactly one further rebuild.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	isDir    bool
	debounce time.Duration
	logger   *zap.Logger

	// OnChange is called with the archive path.
	OnChange func(ctx context.Context, root string) error
	// OnError receives watch errors and OnChange failures.
	OnError func(path string, err error)

	mu         sync.Mutex
	timer      *time.Timer
	processing bool
	pending    bool
	wg         sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(w *Watcher) { w.logger = l } }

// NewWatcher creates a watcher for the archive at path.
func NewWatcher(path string, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	stat, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsWatcher,
		root:     absPath,
		isDir:    stat.IsDir(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.OrNop(w.logger)

	if err := w.addWatches(); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the watched archive path.
func (w *Watcher) Root() string { return w.root }

// addWatches watches the directory holding a zip archive, or every
// directory of a directory archive since fsnotify is not recursive.
func (w *Watcher) addWatches() error {
	if !w.isDir {
		if err := w.watcher.Add(filepath.Dir(w.root)); err != nil {
			return fmt.Errorf("failed to watch directory: %w", err)
		}
		return nil
	}
	return w.addTree(w.root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// relevant reports whether an event touches the archive.
func (w *Watcher) relevant(name string) bool {
	if !w.isDir {
		return name == w.root
	}
	return name == w.root || strings.HasPrefix(name, w.root+string(filepath.Separator))
}

// Run starts the watch loop. Blocks until ctx is cancelled, then waits for
// a running rebuild to return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil || !w.relevant(absPath) {
				continue
			}

			if w.isDir && event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(absPath); err == nil && info.IsDir() {
					if err := w.addTree(absPath); err != nil {
						w.reportError(absPath, err)
					}
				}
			}

			w.logger.Debug("archive changed", zap.String("path", absPath), zap.Stringer("op", event.Op))
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError(w.root, err)
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.handleChange(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) handleChange(ctx context.Context) {
	w.mu.Lock()
	if w.processing {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.processing = true
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			break
		}
		if w.OnChange != nil {
			if err := w.OnChange(ctx, w.root); err != nil {
				w.reportError(w.root, err)
			}
		}

		w.mu.Lock()
		again := w.pending
		w.pending = false
		if !again {
			w.processing = false
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.processing = false
	w.pending = false
	w.mu.Unlock()
}

func (w *Watcher) reportError(path string, err error) {
	w.logger.Warn("watch error", zap.String("path", path), zap.Error(err))
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
