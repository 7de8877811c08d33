package collection

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/soilnet/ismn/internal/logger"
	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
)

// StationTask is the input of one station scan. It holds values only, so
// tasks can be handed to any worker.
type StationTask struct {
	ArchivePath string
	Folder      string
	ScratchRoot string
}

// Entry is one indexed sensor file with its grouping key.
type Entry struct {
	Network string
	Station string
	File    *filehandler.DataFile
}

// StationResult is everything a station scan produces.
type StationResult struct {
	Folder  string
	Entries []Entry
	// Errors lists the excluded sensor files.
	Errors []ErrorRecord
	// Warnings lists attribute file problems the station was indexed
	// despite.
	Warnings []ErrorRecord
}

// MetaReader supplies extra metadata for a sensor file, for example from a
// lookup keyed by station coordinates. The result is merged into the
// reconciled file metadata and reconciled again on the sensor depth.
type MetaReader interface {
	ReadMetadata(md meta.MetaData) (meta.MetaData, error)
}

// MetaReaderFunc adapts a function to MetaReader.
type MetaReaderFunc func(md meta.MetaData) (meta.MetaData, error)

func (f MetaReaderFunc) ReadMetadata(md meta.MetaData) (meta.MetaData, error) { return f(md) }

// ScanOptions configures ScanStation.
type ScanOptions struct {
	Readers []MetaReader
	Logger  *zap.Logger
}

// ScanStation indexes one station folder. It opens its own view of the
// archive and never fails: per-file problems become error records and a
// panic becomes a record for the folder. The DataFiles of the result refer
// to the task's closed root and must be rebound before reading.
func ScanStation(ctx context.Context, task StationTask, opts ScanOptions) (res StationResult) {
	res.Folder = task.Folder
	log := logger.OrNop(opts.Logger).With(zap.String("folder", task.Folder))

	defer func() {
		if r := recover(); r != nil {
			log.Error("station scan panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res.Entries = nil
			res.Errors = append(res.Errors, ErrorRecord{
				Path:    task.Folder,
				Message: fmt.Sprintf("station scan panicked: %v", r),
				Kind:    ErrorKindSetup,
				Code:    ismnerr.CodePanic,
			})
		}
	}()

	root, err := archive.Open(task.ArchivePath)
	if err != nil {
		res.Errors = append(res.Errors, NewErrorRecord(task.Folder, err))
		log.Error("failed to open archive", zap.Error(err))
		return res
	}
	defer root.Close()

	static, used, err := filehandler.StationStatic(root, task.Folder, task.ScratchRoot)
	if err != nil {
		rec := NewErrorRecord(task.Folder, err)
		rec.Kind = ErrorKindStructural
		res.Warnings = append(res.Warnings, rec)
		log.Warn("station attribute file", zap.String("file", used), zap.Error(err))
	}

	files, err := root.FindFiles(task.Folder, "*.stm")
	if err != nil {
		res.Errors = append(res.Errors, NewErrorRecord(task.Folder, err))
		log.Error("failed to list sensor files", zap.Error(err))
		return res
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return res
		}
		df, err := loadFile(root, rel, static, task.ScratchRoot, opts.Readers)
		if err != nil {
			res.Errors = append(res.Errors, NewErrorRecord(rel, err))
			log.Error("sensor file excluded", zap.String("file", rel), zap.Error(err))
			continue
		}
		md := df.Metadata()
		res.Entries = append(res.Entries, Entry{Network: md.Network(), Station: md.Station(), File: df})
		log.Debug("sensor file indexed", zap.String("file", rel), zap.String("type", string(df.FileType())))
	}
	return res
}

func loadFile(root archive.Root, rel string, static meta.MetaData, scratch string, readers []MetaReader) (*filehandler.DataFile, error) {
	df, err := filehandler.Load(root, rel, filehandler.Options{ScratchRoot: scratch, Static: &static})
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return df, nil
	}

	md := df.Metadata()
	sensor, _ := df.SensorDepth()
	for _, r := range readers {
		extra, err := r.ReadMetadata(md)
		if err != nil {
			return nil, ismnerr.Wrap(err, ismnerr.CodeReadFailed, "custom metadata reader failed").
				WithContext("path", rel)
		}
		md = md.Merge(extra, false)
	}
	md, err = md.Reconcile(sensor)
	if err != nil {
		return nil, err
	}
	return filehandler.FromMetadata(root, rel, df.FileType(), md, scratch), nil
}
