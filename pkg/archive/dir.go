package archive

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// DirRoot is an archive unpacked into a directory tree.
type DirRoot struct {
	path string
}

// NewDirRoot creates a root over the directory p.
func NewDirRoot(p string) *DirRoot {
	return &DirRoot{path: filepath.Clean(p)}
}

func (r *DirRoot) Path() string { return r.path }
func (r *DirRoot) Name() string { return rootName(r.path) }
func (r *DirRoot) IsZip() bool  { return false }
func (r *DirRoot) Open() error  { return nil }
func (r *DirRoot) Close() error { return nil }
func (r *DirRoot) IsOpen() bool { return true }

func (r *DirRoot) abs(rel string) string {
	return filepath.Join(r.path, filepath.FromSlash(rel))
}

// Cont walks two directory levels below the root.
func (r *DirRoot) Cont() ([]NetworkDir, error) {
	nets, err := subdirs(r.path)
	if err != nil {
		return nil, ismnerr.Wrap(err, ismnerr.CodeArchiveOpen, "failed to list networks").
			WithContext("path", r.path)
	}

	out := make([]NetworkDir, 0, len(nets))
	for _, net := range nets {
		stations, err := subdirs(filepath.Join(r.path, net))
		if err != nil {
			return nil, ismnerr.Wrap(err, ismnerr.CodeArchiveOpen, "failed to list stations").
				WithContext("network", net)
		}
		nd := NetworkDir{Name: net, Stations: make([]string, 0, len(stations))}
		for _, st := range stations {
			nd.Stations = append(nd.Stations, path.Join(net, st))
		}
		out = append(out, nd)
	}
	return out, nil
}

func (r *DirRoot) FindFiles(folder, pattern string) ([]string, error) {
	entries, err := os.ReadDir(r.abs(folder))
	if err != nil {
		return nil, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to list folder").
			WithContext("folder", folder)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := matchBase(pattern, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, path.Join(folder, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *DirRoot) OpenFile(rel string) (io.ReadCloser, error) {
	f, err := os.Open(r.abs(rel))
	if os.IsNotExist(err) {
		return nil, notFound(rel)
	}
	if err != nil {
		return nil, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to open file").
			WithContext("path", rel)
	}
	return f, nil
}

func (r *DirRoot) Extract(rel, dir string) (string, error) {
	return extractTo(r, rel, dir)
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
