package archive

import (
	"archive/zip"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// ZipRoot is an archive stored as a zip file. The zip is opened on first
// access and may be closed and reopened. A ZipRoot is safe for concurrent
// reads; workers that need isolation open their own root from the path.
type ZipRoot struct {
	path string

	mu     sync.Mutex
	reader *zip.ReadCloser
	files  map[string]*zip.File
}

// NewZipRoot creates an unopened root over the zip file p.
func NewZipRoot(p string) *ZipRoot {
	return &ZipRoot{path: filepath.Clean(p)}
}

func (r *ZipRoot) Path() string { return r.path }
func (r *ZipRoot) Name() string { return rootName(r.path) }
func (r *ZipRoot) IsZip() bool  { return true }

// Open opens the zip and indexes its entries. Opening an open root is a no-op.
func (r *ZipRoot) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked()
}

func (r *ZipRoot) openLocked() error {
	if r.reader != nil {
		return nil
	}
	zr, err := zip.OpenReader(r.path)
	if err != nil {
		return ismnerr.Wrap(err, ismnerr.CodeArchiveOpen, "failed to open zip archive").
			WithContext("path", r.path)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "./")
		if strings.HasSuffix(name, "/") {
			continue
		}
		files[name] = f
	}
	r.reader, r.files = zr, files
	return nil
}

// Close releases the zip handle.
func (r *ZipRoot) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader, r.files = nil, nil
	return err
}

func (r *ZipRoot) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reader != nil
}

func (r *ZipRoot) entries() (map[string]*zip.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(); err != nil {
		return nil, err
	}
	return r.files, nil
}

// Cont derives networks and stations from the entry names. A station is any
// second-level folder holding at least one file.
func (r *ZipRoot) Cont() ([]NetworkDir, error) {
	files, err := r.entries()
	if err != nil {
		return nil, err
	}

	stations := make(map[string]map[string]bool)
	for name := range files {
		parts := strings.Split(name, "/")
		if len(parts) < 3 {
			continue
		}
		net, st := parts[0], parts[1]
		if stations[net] == nil {
			stations[net] = make(map[string]bool)
		}
		stations[net][st] = true
	}

	nets := make([]string, 0, len(stations))
	for net := range stations {
		nets = append(nets, net)
	}
	sort.Strings(nets)

	out := make([]NetworkDir, 0, len(nets))
	for _, net := range nets {
		nd := NetworkDir{Name: net}
		for st := range stations[net] {
			nd.Stations = append(nd.Stations, path.Join(net, st))
		}
		sort.Strings(nd.Stations)
		out = append(out, nd)
	}
	return out, nil
}

func (r *ZipRoot) FindFiles(folder, pattern string) ([]string, error) {
	files, err := r.entries()
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(folder, "/") + "/"
	var out []string
	for name := range files {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		match, err := matchBase(pattern, rest)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *ZipRoot) OpenFile(rel string) (io.ReadCloser, error) {
	files, err := r.entries()
	if err != nil {
		return nil, err
	}
	f, ok := files[rel]
	if !ok {
		return nil, notFound(rel)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to open zip entry").
			WithContext("path", rel)
	}
	return rc, nil
}

func (r *ZipRoot) Extract(rel, dir string) (string, error) {
	return extractTo(r, rel, dir)
}
