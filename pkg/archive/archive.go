// Package archive gives uniform read-only access to an ISMN archive stored
// either as a directory tree or as a single zip file. Both layouts hold
// network folders containing station folders containing sensor files.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// NetworkDir lists the station folders of one network. Station folders are
// slash-separated paths relative to the archive root ("NET/STATION").
type NetworkDir struct {
	Name     string
	Stations []string
}

// Root is a read-only view over an archive. Paths passed to and returned by
// a Root are slash-separated and relative to the archive root.
type Root interface {
	// Path is the location of the archive on disk.
	Path() string
	// Name is the archive base name without extension.
	Name() string
	IsZip() bool

	Open() error
	Close() error
	IsOpen() bool

	// Cont returns networks in name order with their station folders.
	Cont() ([]NetworkDir, error)
	// FindFiles returns the files directly inside folder whose base name
	// matches the glob pattern, sorted.
	FindFiles(folder, pattern string) ([]string, error)
	// OpenFile opens a file for reading.
	OpenFile(rel string) (io.ReadCloser, error)
	// Extract copies a file into dir and returns the local path.
	Extract(rel, dir string) (string, error)
}

// Open returns a Root for p: a DirRoot when p is a directory, a ZipRoot when
// p is a zip file. Zip roots are opened lazily.
func Open(p string) (Root, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, ismnerr.Wrap(err, ismnerr.CodeArchiveOpen, "archive not accessible").
			WithContext("path", p)
	}
	if info.IsDir() {
		return NewDirRoot(p), nil
	}
	if !strings.EqualFold(filepath.Ext(p), ".zip") {
		return nil, ismnerr.New(ismnerr.CodeArchiveOpen, "archive must be a directory or a .zip file").
			WithContext("path", p)
	}
	root := NewZipRoot(p)
	if err := root.Open(); err != nil {
		return nil, err
	}
	return root, nil
}

// WithLocalFile calls fn with a path on the local file system holding the
// content of rel. Directory roots pass the file in place. Zip roots extract
// into a fresh directory under scratch that is removed when fn returns.
func WithLocalFile(r Root, rel, scratch string, fn func(local string) error) error {
	if !r.IsZip() {
		return fn(filepath.Join(r.Path(), filepath.FromSlash(rel)))
	}

	dir, err := os.MkdirTemp(scratch, "ismn")
	if err != nil {
		return ismnerr.Wrap(err, ismnerr.CodeScratchDir, "failed to create extraction directory").
			WithContext("scratch", scratch)
	}
	defer os.RemoveAll(dir)

	local, err := r.Extract(rel, dir)
	if err != nil {
		return err
	}
	return fn(local)
}

// ReadFile reads the whole content of rel.
func ReadFile(r Root, rel string) ([]byte, error) {
	rc, err := r.OpenFile(rel)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to read archive file").
			WithContext("path", rel)
	}
	return data, nil
}

func rootName(p string) string {
	base := filepath.Base(filepath.Clean(p))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func matchBase(pattern, rel string) (bool, error) {
	ok, err := path.Match(pattern, path.Base(rel))
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return ok, nil
}

func extractTo(r Root, rel, dir string) (string, error) {
	rc, err := r.OpenFile(rel)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	local := filepath.Join(dir, path.Base(rel))
	f, err := os.Create(local)
	if err != nil {
		return "", ismnerr.Wrap(err, ismnerr.CodeScratchDir, "failed to create extracted file").
			WithContext("path", local)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to extract file").
			WithContext("path", rel)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", local, err)
	}
	return local, nil
}

func notFound(rel string) error {
	return ismnerr.New(ismnerr.CodeNotFound, "archive entry not found").WithContext("path", rel)
}
