// Package tui renders build progress and index summaries for the CLI.
// Simple, streaming output: no full-screen interface.
package tui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/soilnet/ismn/pkg/collection"
	"github.com/soilnet/ismn/pkg/filehandler"
)

// Colors
var (
	accent  = lipgloss.Color("#D2691E")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// PrintHeader prints the tool banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  ISMN")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Soil moisture archive indexer"))
	fmt.Fprintln(w)
}

// ShowProgress creates a progress bar over total station folders.
func ShowProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressFunc returns a build progress callback drawing a bar on w. The
// bar is created on the first call, once the station count is known.
func ProgressFunc(w io.Writer) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = ShowProgress(w, total, "  scanning stations")
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
		}
	}
}

// PrintReport prints the outcome of a build and at most maxRecords of its
// error records.
func PrintReport(w io.Writer, rep *collection.Report, maxRecords int) {
	fmt.Fprintln(w)
	if len(rep.Errors) == 0 && len(rep.Warnings) == 0 {
		fmt.Fprintln(w, successStyle.Render("  ✓ INDEX COMPLETE"))
	} else {
		fmt.Fprintln(w, accentStyle.Render("  ! INDEX COMPLETE WITH ISSUES"))
	}
	fmt.Fprintln(w)

	line := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(label), titleStyle.Render(value))
	}
	line("Files:", formatNumber(int64(rep.Files)))
	line("Stations:", formatNumber(int64(rep.Stations)))
	line("Networks:", formatNumber(int64(rep.Networks)))
	line("Time:", formatDuration(rep.Duration))
	if rep.CheckpointHits > 0 {
		line("Cached:", fmt.Sprintf("%d stations", rep.CheckpointHits))
	}
	line("Errors:", fmt.Sprintf("%d", len(rep.Errors)))
	line("Warnings:", fmt.Sprintf("%d", len(rep.Warnings)))

	shown := 0
	for _, group := range [][]collection.ErrorRecord{rep.Warnings, rep.Errors} {
		for _, r := range group {
			if shown == maxRecords {
				break
			}
			fmt.Fprintf(w, "    %s %s\n", accentStyle.Render(string(r.Code)), r.Line())
			shown++
		}
	}
	if total := len(rep.Errors) + len(rep.Warnings); total > shown {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("    ... and %d more", total-shown)))
	}
	if rep.LogPath != "" {
		line("Log:", rep.LogPath)
	}
	fmt.Fprintln(w)
}

// FileColumns are the columns of RenderFiles.
var FileColumns = []string{"#", "network", "station", "variable", "depth", "instrument", "type"}

// RenderFiles renders files as a table. indices gives the global index
// shown for each file; when nil the position is used.
func RenderFiles(files []*filehandler.DataFile, indices []int) string {
	rows := make([][]string, len(files))
	for i, f := range files {
		idx := i
		if indices != nil {
			idx = indices[i]
		}
		md := f.Metadata()
		depth := ""
		if d, ok := f.SensorDepth(); ok {
			depth = d.String()
		}
		rows[i] = []string{
			fmt.Sprintf("%d", idx),
			md.Network(),
			md.Station(),
			md.Variable(),
			depth,
			md.Instrument(),
			string(f.FileType()),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(FileColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// RenderRows renders query results as a table. Nil values print empty.
func RenderRows(columns []string, rows [][]interface{}) string {
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[i][j] = fmt.Sprint(v)
			}
		}
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(columns...).
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

// Confirm asks a yes/no question; an empty answer is yes.
func Confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprint(w, prompt)
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && input == "" {
		return false
	}
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "" || input == "y" || input == "yes"
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FormatBytes renders a byte count with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
