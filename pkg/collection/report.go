package collection

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report summarizes a build.
type Report struct {
	RunID    string
	Archive  string
	Started  time.Time
	Duration time.Duration

	Networks       int
	Stations       int
	Files          int
	CheckpointHits int

	// Errors lists the excluded files and unscannable folders.
	Errors []ErrorRecord
	// Warnings lists stations indexed with default attributes.
	Warnings []ErrorRecord

	// LogPath is the error log written by the build, if any.
	LogPath string
}

// Summary is the one-line outcome of the build.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d files from %d stations in %d networks indexed in %s: %d errors, %d warnings",
		r.Files, r.Stations, r.Networks, r.Duration.Round(time.Millisecond), len(r.Errors), len(r.Warnings))
}

// AppendLog appends the records and the summary to <dir>/<name>.log and
// returns the log path.
func (r *Report) AppendLog(dir, name string) (string, error) {
	p := filepath.Join(dir, name+".log")
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	w := bufio.NewWriter(f)
	for _, rec := range r.Warnings {
		fmt.Fprintln(w, rec.Line())
	}
	for _, rec := range r.Errors {
		fmt.Fprintln(w, rec.Line())
	}
	fmt.Fprintf(w, "%d errors and %d warnings occurred while indexing %s (run %s, %s)\n",
		len(r.Errors), len(r.Warnings), r.Archive, r.RunID, r.Started.UTC().Format(time.RFC3339))

	if err := w.Flush(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return p, nil
}
