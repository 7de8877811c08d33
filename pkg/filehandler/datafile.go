// Package filehandler reads ISMN station attribute files and sensor files.
// A DataFile describes one sensor file: its dialect and its reconciled
// metadata. The time series itself is read on demand.
package filehandler

import (
	"fmt"
	"math"
	"path"

	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/meta"
)

// Options controls how a DataFile is loaded.
type Options struct {
	// ScratchRoot receives temporary extractions from zip archives.
	ScratchRoot string
	// Static is the station metadata merged into the file metadata. When
	// nil it is read from the attribute file next to the sensor file.
	Static *meta.MetaData
}

// DataFile is one sensor file of an archive. Its metadata is fixed at
// construction.
type DataFile struct {
	root     archive.Root
	path     string
	fileType FileType
	metadata meta.MetaData
	scratch  string
}

// Load detects the dialect of the sensor file rel, extracts its metadata,
// merges the station metadata and reconciles the result on the sensor
// depth. Any failure leaves no DataFile behind.
func Load(root archive.Root, rel string, opts Options) (*DataFile, error) {
	el, err := ReadElements(root, rel, opts.ScratchRoot)
	if err != nil {
		return nil, withPath(err, rel)
	}
	ft, fileMD, _, err := ExtractMetadata(el)
	if err != nil {
		return nil, withPath(err, rel)
	}

	var static meta.MetaData
	if opts.Static != nil {
		static = *opts.Static
	} else {
		// Structural problems fall back to the template defaults.
		static, _, _ = StationStatic(root, path.Dir(rel), opts.ScratchRoot)
	}

	md := fileMD.Merge(static, false)
	sensor, ok := md.SensorDepth()
	if !ok {
		return nil, withPath(ismnerr.MissingKey(string(meta.KeyInstrument)), rel)
	}
	md, err = md.Reconcile(sensor)
	if err != nil {
		return nil, withPath(err, rel)
	}

	return &DataFile{
		root:     root,
		path:     rel,
		fileType: ft,
		metadata: md,
		scratch:  opts.ScratchRoot,
	}, nil
}

// FromMetadata creates a DataFile from previously extracted metadata
// without touching the file.
func FromMetadata(root archive.Root, rel string, ft FileType, md meta.MetaData, scratch string) *DataFile {
	return &DataFile{root: root, path: rel, fileType: ft, metadata: md, scratch: scratch}
}

func withPath(err error, rel string) error {
	if e, ok := err.(*ismnerr.Error); ok {
		return e.WithContext("path", rel)
	}
	return fmt.Errorf("%s: %w", rel, err)
}

func (f *DataFile) Root() archive.Root      { return f.root }
func (f *DataFile) Path() string            { return f.path }
func (f *DataFile) FileType() FileType      { return f.fileType }
func (f *DataFile) Metadata() meta.MetaData { return f.metadata }

// WithRoot returns a copy of f bound to root.
func (f *DataFile) WithRoot(root archive.Root) *DataFile {
	cp := *f
	cp.root = root
	return &cp
}

// SensorDepth returns the depth of the instrument.
func (f *DataFile) SensorDepth() (meta.Depth, bool) {
	return f.metadata.SensorDepth()
}

func (f *DataFile) String() string {
	return fmt.Sprintf("%s (%s)", f.path, f.fileType)
}

// CheckMetadata reports whether the file measures variable with a sensor
// depth inside [minDepth, maxDepth] and carries the given static values.
// Use math.Inf for open bounds. Filtering on a key that is not a station
// attribute is an error.
func (f *DataFile) CheckMetadata(variable string, minDepth, maxDepth float64, static map[string]meta.Value) (bool, error) {
	for k := range static {
		if !meta.IsStaticKey(k) {
			return false, ismnerr.Newf(ismnerr.CodeInvalidFilter,
				"%s is not a station attribute, select one of %v", k, meta.StaticKeys)
		}
	}

	if f.metadata.Variable() != variable {
		return false, nil
	}

	sensor, ok := f.SensorDepth()
	if !ok {
		return false, nil
	}
	if math.IsNaN(minDepth) {
		minDepth = math.Inf(-1)
	}
	if math.IsNaN(maxDepth) {
		maxDepth = math.Inf(1)
	}
	if minDepth > maxDepth {
		return false, ismnerr.Newf(ismnerr.CodeInvalidFilter, "min depth %g above max depth %g", minDepth, maxDepth)
	}
	if !(meta.Depth{Start: minDepth, End: maxDepth}).Encloses(sensor) {
		return false, nil
	}

	for k, want := range static {
		if !f.metadata.Value(k).Equal(want) {
			return false, nil
		}
	}
	return true, nil
}
