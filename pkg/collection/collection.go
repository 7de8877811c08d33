// Package collection builds and queries the index of an ISMN archive. A
// build scans every station folder in parallel, reconciles the metadata of
// each sensor file and groups the files by network. The index can be
// written to a flat table and rebuilt from it without the raw files.
package collection

import (
	"math"
	"sort"

	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
)

// FileCollection is the index of an archive: sensor files grouped by
// network, networks in ascending order. It is not modified after
// construction.
type FileCollection struct {
	root     archive.Root
	networks []string
	files    map[string][]*filehandler.DataFile
}

// newCollection groups entries, which must be sorted by network, and binds
// every file to root.
func newCollection(root archive.Root, entries []Entry) *FileCollection {
	c := &FileCollection{root: root, files: make(map[string][]*filehandler.DataFile)}
	for _, e := range entries {
		if _, ok := c.files[e.Network]; !ok {
			c.networks = append(c.networks, e.Network)
		}
		c.files[e.Network] = append(c.files[e.Network], e.File.WithRoot(root))
	}
	return c
}

// sortEntries orders entries by (network, station), keeping the scan order
// within a station.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Network != entries[j].Network {
			return entries[i].Network < entries[j].Network
		}
		return entries[i].Station < entries[j].Station
	})
}

// Root returns the archive the files are read from.
func (c *FileCollection) Root() archive.Root { return c.root }

// Networks returns the network names in index order.
func (c *FileCollection) Networks() []string {
	out := make([]string, len(c.networks))
	copy(out, c.networks)
	return out
}

// Len returns the number of indexed files.
func (c *FileCollection) Len() int {
	n := 0
	for _, fs := range c.files {
		n += len(fs)
	}
	return n
}

// Handler returns the idx-th file in global order.
func (c *FileCollection) Handler(idx int) (*filehandler.DataFile, error) {
	if idx >= 0 {
		for _, net := range c.networks {
			fs := c.files[net]
			if idx < len(fs) {
				return fs[idx], nil
			}
			idx -= len(fs)
		}
	}
	return nil, ismnerr.Newf(ismnerr.CodeNotFound, "no file at index %d", idx)
}

// Handlers returns the files of the given networks in index order, or all
// files when no network is given.
func (c *FileCollection) Handlers(networks ...string) ([]*filehandler.DataFile, error) {
	if len(networks) == 0 {
		networks = c.networks
	}
	want := make(map[string]bool, len(networks))
	for _, n := range networks {
		if _, ok := c.files[n]; !ok {
			return nil, ismnerr.New(ismnerr.CodeNotFound, "network not in index").WithContext("network", n)
		}
		want[n] = true
	}

	var out []*filehandler.DataFile
	for _, net := range c.networks {
		if want[net] {
			out = append(out, c.files[net]...)
		}
	}
	return out, nil
}

// all returns every file in global order.
func (c *FileCollection) all() []*filehandler.DataFile {
	out := make([]*filehandler.DataFile, 0, c.Len())
	for _, net := range c.networks {
		out = append(out, c.files[net]...)
	}
	return out
}

// Close releases the archive.
func (c *FileCollection) Close() error {
	if c.root == nil {
		return nil
	}
	return c.root.Close()
}

// FilterColumnValue returns the global indices of files whose value for
// column equals one of values. A column no file carries is an error.
func (c *FileCollection) FilterColumnValue(column string, values ...meta.Value) ([]int, error) {
	files := c.all()
	known := false
	var out []int
	for i, f := range files {
		md := f.Metadata()
		if !md.Has(column) {
			continue
		}
		known = true
		v := md.Value(column)
		for _, want := range values {
			if v.Equal(want) {
				out = append(out, i)
				break
			}
		}
	}
	if !known && len(files) > 0 {
		return nil, ismnerr.New(ismnerr.CodeInvalidFilter, "column not in index").WithContext("column", column)
	}
	return out, nil
}

// FilterDepth returns the global indices of files whose sensor depth lies
// inside [minDepth, maxDepth], bounds inclusive. With onlyDepthFrom the end
// of the sensor depth is ignored. NaN bounds are open.
func (c *FileCollection) FilterDepth(minDepth, maxDepth float64, onlyDepthFrom bool) []int {
	if math.IsNaN(minDepth) {
		minDepth = math.Inf(-1)
	}
	if math.IsNaN(maxDepth) {
		maxDepth = math.Inf(1)
	}

	var out []int
	for i, f := range c.all() {
		d, ok := f.SensorDepth()
		if !ok {
			continue
		}
		end := d.End
		if onlyDepthFrom {
			end = d.Start
		}
		if d.Start >= minDepth && end <= maxDepth {
			out = append(out, i)
		}
	}
	return out
}

// FilterMetadata returns the global indices of files matching every key of
// filter, where a key matches when the file's value equals one of the
// allowed values. A key missing from any file is an error.
func (c *FileCollection) FilterMetadata(filter map[string][]meta.Value) ([]int, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []int
	for i, f := range c.all() {
		md := f.Metadata()
		match := true
		for _, k := range keys {
			if !md.Has(k) {
				return nil, ismnerr.New(ismnerr.CodeInvalidFilter, "metadata key not found").
					WithContext("key", k).
					WithContext("path", f.Path())
			}
			if match && !anyEqual(md.Value(k), filter[k]) {
				match = false
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out, nil
}

func anyEqual(v meta.Value, allowed []meta.Value) bool {
	for _, a := range allowed {
		if v.Equal(a) {
			return true
		}
	}
	return false
}

// Subset returns a collection holding the files at the given global
// indices, in index order, sharing the archive of c. Closing the subset
// closes the archive.
func (c *FileCollection) Subset(indices []int) (*FileCollection, error) {
	files := c.all()
	idx := append([]int(nil), indices...)
	sort.Ints(idx)

	entries := make([]Entry, 0, len(idx))
	for n, i := range idx {
		if i < 0 || i >= len(files) {
			return nil, ismnerr.Newf(ismnerr.CodeNotFound, "no file at index %d", i)
		}
		if n > 0 && idx[n-1] == i {
			continue
		}
		md := files[i].Metadata()
		entries = append(entries, Entry{Network: md.Network(), Station: md.Station(), File: files[i]})
	}
	return newCollection(c.root, entries), nil
}
