package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/soilnet/ismn/pkg/collection"
	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
)

func TestPrintReport(t *testing.T) {
	rec := func(path string, code ismnerr.Code) collection.ErrorRecord {
		return collection.NewErrorRecord(path, ismnerr.New(code, "broken"))
	}
	rep := &collection.Report{
		Files:    1200,
		Stations: 40,
		Networks: 2,
		Duration: 1500 * time.Millisecond,
		Errors:   []collection.ErrorRecord{rec("SCAN/A/a.stm", ismnerr.CodeUnknownFormat), rec("SCAN/A/b.stm", ismnerr.CodeTruncatedFile)},
		Warnings: []collection.ErrorRecord{rec("SCAN/B", ismnerr.CodeStaticMetaMissing)},
		LogPath:  "/data/archive.log",
	}

	var buf bytes.Buffer
	PrintReport(&buf, rep, 2)
	out := buf.String()

	for _, want := range []string{"1.2K", "40", "1.5s", "SCAN/B: ", "SCAN/A/a.stm: ", "and 1 more", "/data/archive.log", "ISSUES"} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SCAN/A/b.stm") {
		t.Errorf("report shows more than 2 records:\n%s", out)
	}

	buf.Reset()
	PrintReport(&buf, &collection.Report{Files: 3}, 10)
	if !strings.Contains(buf.String(), "INDEX COMPLETE") || strings.Contains(buf.String(), "ISSUES") {
		t.Errorf("clean report:\n%s", buf.String())
	}
}

func TestRenderFiles(t *testing.T) {
	d := meta.Depth{Start: 0, End: 0.05}
	md := meta.New(
		meta.NewVar("network", meta.String("SCAN")),
		meta.NewVar("station", meta.String("Abrams")),
		meta.NewDepthVar("variable", meta.String("soil_moisture"), d),
		meta.NewDepthVar("instrument", meta.String("CS655"), d),
	)
	f := filehandler.FromMetadata(nil, "SCAN/Abrams/x.stm", filehandler.CeopSep, md, "")

	out := RenderFiles([]*filehandler.DataFile{f}, []int{17})
	for _, want := range append(FileColumns, "17", "SCAN", "Abrams", "soil_moisture", "CS655", "ceop_sep") {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}

func TestRenderRows(t *testing.T) {
	out := RenderRows([]string{"network", "n"}, [][]interface{}{{"SCAN", int64(12)}, {nil, int64(3)}})
	for _, want := range []string{"network", "SCAN", "12", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<nil>") {
		t.Errorf("nil rendered:\n%s", out)
	}
}

func TestProgressFunc(t *testing.T) {
	var buf bytes.Buffer
	progress := ProgressFunc(&buf)
	for i := 1; i <= 3; i++ {
		progress(i, 3)
	}
	if buf.Len() == 0 {
		t.Error("progress wrote nothing")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"nope\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(tt.input), &out, "ok? "); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "ok? " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatDuration(250 * time.Millisecond), "250ms"},
		{formatDuration(2500 * time.Millisecond), "2.5s"},
		{formatDuration(125 * time.Second), "2m5s"},
		{formatNumber(999), "999"},
		{formatNumber(1500), "1.5K"},
		{formatNumber(2500000), "2.5M"},
		{FormatBytes(512), "512 B"},
		{FormatBytes(1536), "1.5 KB"},
		{FormatBytes(3 << 20), "3.0 MB"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
