package filehandler

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/soilnet/ismn/internal/pool"
	"github.com/soilnet/ismn/pkg/archive"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// Observation is one row of a sensor file.
type Observation struct {
	Time     time.Time
	Value    float64
	Flag     string
	OrigFlag string
}

// Timeseries is the content of a sensor file.
type Timeseries struct {
	Variable     string
	Observations []Observation
}

// Len returns the number of observations.
func (ts *Timeseries) Len() int { return len(ts.Observations) }

// columns lists the date, time, value, flag and original flag columns.
type columns [5]int

var (
	ceopSepColumns      = columns{0, 1, 12, 13, 14}
	headerValuesColumns = columns{0, 1, 2, 3, 4}
)

const maxLineSize = 1024 * 1024

// ReadData reads the time series of the file.
func (f *DataFile) ReadData(ctx context.Context) (*Timeseries, error) {
	var (
		cols columns
		skip int
	)
	switch f.fileType {
	case CeopSep:
		cols = ceopSepColumns
	case HeaderValues:
		cols, skip = headerValuesColumns, 1
	case Ceop:
		return nil, withPath(ismnerr.New(ismnerr.CodeUnsupportedFormat, "ceop format not supported"), f.path)
	default:
		return nil, withPath(ismnerr.New(ismnerr.CodeUnknownFormat, "unknown file format"), f.path)
	}

	ts := &Timeseries{Variable: f.metadata.Variable()}
	err := archive.WithLocalFile(f.root, f.path, f.scratch, func(local string) error {
		return readRows(ctx, local, cols, skip, ts)
	})
	if err != nil {
		return nil, withPath(err, f.path)
	}
	return ts, nil
}

func readRows(ctx context.Context, local string, cols columns, skip int, ts *Timeseries) error {
	file, err := os.Open(local)
	if err != nil {
		return ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to open sensor file")
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, pool.DefaultBufferSize), maxLineSize)

	fields := make([][]byte, 0, pool.DefaultFieldCap)
	line := 0
	for sc.Scan() {
		line++
		if line <= skip {
			continue
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		fields = pool.Fields(fields[:0], sc.Bytes())
		if len(fields) == 0 {
			continue
		}
		if len(fields) <= cols[4] {
			return ismnerr.Newf(ismnerr.CodeTruncatedFile, "line %d has %d columns, expected %d", line, len(fields), cols[4]+1)
		}

		t, err := pool.ParseStamp(fields[cols[0]], fields[cols[1]])
		if err != nil {
			return ismnerr.InvalidTimestamp(string(fields[cols[0]])+" "+string(fields[cols[1]])).
				WithContext("line", line)
		}
		v, err := pool.ParseFloat64(fields[cols[2]])
		if err != nil {
			return ismnerr.InvalidNumber("value", string(fields[cols[2]])).WithContext("line", line)
		}
		ts.Observations = append(ts.Observations, Observation{
			Time:     t,
			Value:    v,
			Flag:     string(fields[cols[3]]),
			OrigFlag: string(fields[cols[4]]),
		})
	}
	if err := sc.Err(); err != nil {
		return ismnerr.Wrap(err, ismnerr.CodeReadFailed, "failed to read sensor file")
	}
	return nil
}
