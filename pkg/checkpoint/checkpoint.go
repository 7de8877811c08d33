// Package checkpoint stores the results of finished station scans so an
// interrupted or repeated build can skip them.
package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store persists opaque scan results by key.
type Store interface {
	// Load returns the data stored under key. ok is false when nothing is
	// stored.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Save stores data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name returns the backend name for logging.
	Name() string

	Close() error
}

// Key derives the checkpoint key of a station folder. The archive
// modification time is part of the key so a changed archive misses. stamps
// describe the folder content where the archive time does not cover it,
// as for the files of an unpacked archive.
func Key(archivePath string, modTime time.Time, folder string, stamps ...string) string {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		abs = archivePath
	}
	name := fmt.Sprintf("%s\x00%d\x00%s", abs, modTime.UnixNano(), folder)
	for _, s := range stamps {
		name += "\x00" + s
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// FileStore keeps one file per key in a directory.
type FileStore struct {
	dir string
}

const fileExt = ".checkpoint"

// NewFileStore creates the store, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Load reads the file of key.
func (s *FileStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Save writes the file of key.
func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	// Write to temp file first, then rename (atomic)
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

// Delete removes the file of key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Name returns "local".
func (s *FileStore) Name() string { return "local" }

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// Cleanup removes checkpoints older than maxAge and returns how many were
// removed.
func (s *FileStore) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// MultiStore writes to a primary and a best-effort secondary store and reads
// from the primary first.
type MultiStore struct {
	primary   Store
	secondary Store
}

// NewMultiStore creates a store backed by primary and secondary.
func NewMultiStore(primary, secondary Store) *MultiStore {
	return &MultiStore{primary: primary, secondary: secondary}
}

// Load reads from primary, falls back to secondary.
func (m *MultiStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := m.primary.Load(ctx, key)
	if err == nil && ok {
		return data, true, nil
	}
	data2, ok2, err2 := m.secondary.Load(ctx, key)
	if err2 == nil && ok2 {
		return data2, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Save writes to both stores (primary first).
func (m *MultiStore) Save(ctx context.Context, key string, data []byte) error {
	if err := m.primary.Save(ctx, key, data); err != nil {
		return err
	}
	_ = m.secondary.Save(ctx, key, data)
	return nil
}

// Delete removes key from both stores.
func (m *MultiStore) Delete(ctx context.Context, key string) error {
	err1 := m.primary.Delete(ctx, key)
	err2 := m.secondary.Delete(ctx, key)
	if err1 != nil {
		return err1
	}
	return err2
}

// Name returns the combined backend names.
func (m *MultiStore) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// Close closes both stores.
func (m *MultiStore) Close() error {
	err1 := m.primary.Close()
	err2 := m.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
