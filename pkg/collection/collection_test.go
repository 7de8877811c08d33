package collection

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
	"github.com/soilnet/ismn/pkg/meta"
	"github.com/soilnet/ismn/pkg/testing/generators"
)

// fiveStations builds five single-file SCAN stations, two of them with
// lc_2010 = 10, plus one COSMOS station.
func fiveStations(t *testing.T) *FileCollection {
	t.Helper()
	lc := []string{"10", "11", "10", "30", "190"}
	depths := [][2]float64{{0, 0.05}, {0.05, 0.1}, {0.1, 0.1}, {0.2, 0.5}, {0.5, 0.5}}
	var stations []generators.StationSpec
	for i := range lc {
		stations = append(stations, station("SCAN", fmt.Sprintf("Site-%d", i), lc[i],
			sensor(generators.CeopSep, "sm", depths[i][0], depths[i][1])))
	}
	stations = append(stations, station("COSMOS", "Barrow", "130", sensor(generators.HeaderValues, "ts", 1, 1.5)))
	c, _ := build(t, writeArchive(t, stations, false))
	return c
}

func TestFileCollection_Networks(t *testing.T) {
	c := fiveStations(t)
	if got := c.Networks(); !reflect.DeepEqual(got, []string{"COSMOS", "SCAN"}) {
		t.Errorf("Networks() = %v", got)
	}
	if c.Len() != 6 {
		t.Errorf("Len() = %d, want 6", c.Len())
	}
}

func TestFileCollection_Handler(t *testing.T) {
	c := fiveStations(t)

	h, err := c.Handler(0)
	if err != nil || h.Metadata().Network() != "COSMOS" {
		t.Fatalf("Handler(0) = %v, %v; want the COSMOS file", h, err)
	}
	h, err = c.Handler(3)
	if err != nil || h.Metadata().Station() != "Site-2" {
		t.Fatalf("Handler(3) = %v, %v; want Site-2", h, err)
	}

	for _, idx := range []int{-1, 6} {
		if _, err := c.Handler(idx); !ismnerr.IsCode(err, ismnerr.CodeNotFound) {
			t.Errorf("Handler(%d) err = %v, want not found", idx, err)
		}
	}
}

func TestFileCollection_Handlers(t *testing.T) {
	c := fiveStations(t)

	tests := []struct {
		networks []string
		want     int
	}{
		{nil, 6},
		{[]string{"SCAN"}, 5},
		{[]string{"COSMOS"}, 1},
		{[]string{"SCAN", "COSMOS"}, 6},
	}
	for _, tt := range tests {
		got, err := c.Handlers(tt.networks...)
		if err != nil {
			t.Errorf("Handlers(%v): %v", tt.networks, err)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("Handlers(%v) returned %d files, want %d", tt.networks, len(got), tt.want)
		}
	}

	// Index order holds regardless of argument order.
	got, _ := c.Handlers("SCAN", "COSMOS")
	if got[0].Metadata().Network() != "COSMOS" {
		t.Errorf("first file is from %s, want COSMOS", got[0].Metadata().Network())
	}

	if _, err := c.Handlers("NOPE"); !ismnerr.IsCode(err, ismnerr.CodeNotFound) {
		t.Errorf("unknown network err = %v", err)
	}
}

func TestFilterMetadata(t *testing.T) {
	c := fiveStations(t)

	tests := []struct {
		name   string
		filter map[string][]meta.Value
		want   []int
	}{
		{"single value", map[string][]meta.Value{meta.LC2010: {meta.Float(10)}}, []int{1, 3}},
		{"value set", map[string][]meta.Value{meta.LC2010: {meta.Float(10), meta.Float(130)}}, []int{0, 1, 3}},
		{"and across keys", map[string][]meta.Value{
			meta.LC2010:  {meta.Float(10)},
			"variable":   {meta.String("soil_moisture")},
			"instrument": {meta.String("CS655")},
			"station":    {meta.String("Site-2")},
		}, []int{3}},
		{"no match", map[string][]meta.Value{meta.LC2010: {meta.Float(99)}}, nil},
		{"kind matters", map[string][]meta.Value{meta.LC2010: {meta.String("10")}}, nil},
		{"empty filter", map[string][]meta.Value{}, []int{0, 1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.FilterMetadata(tt.filter)
			if err != nil {
				t.Fatalf("FilterMetadata: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterMetadata = %v, want %v", got, tt.want)
			}
		})
	}

	_, err := c.FilterMetadata(map[string][]meta.Value{"soil_color": {meta.String("red")}})
	if !ismnerr.IsCode(err, ismnerr.CodeInvalidFilter) {
		t.Errorf("unknown key err = %v, want invalid filter", err)
	}
}

func TestFilterMetadata_FiveHandlers(t *testing.T) {
	full := fiveStations(t)
	scan, _ := full.FilterColumnValue("network", meta.String("SCAN"))
	c, err := full.Subset(scan)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", c.Len())
	}

	got, err := c.FilterMetadata(map[string][]meta.Value{meta.LC2010: {meta.Float(10)}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("FilterMetadata = %v, want [0 2]", got)
	}
	for _, i := range got {
		h, _ := c.Handler(i)
		if v := h.Metadata().Value(meta.LC2010); !v.Equal(meta.Float(10)) {
			t.Errorf("file %d: lc_2010 = %v", i, v)
		}
	}
}

func TestFilterColumnValue(t *testing.T) {
	c := fiveStations(t)

	got, err := c.FilterColumnValue("variable", meta.String("soil_temperature"))
	if err != nil || !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("variable filter = %v, %v; want [0]", got, err)
	}
	got, err = c.FilterColumnValue("station", meta.String("Site-0"), meta.String("Site-4"))
	if err != nil || !reflect.DeepEqual(got, []int{1, 5}) {
		t.Errorf("station filter = %v, %v; want [1 5]", got, err)
	}

	if _, err := c.FilterColumnValue("nope", meta.String("x")); !ismnerr.IsCode(err, ismnerr.CodeInvalidFilter) {
		t.Errorf("unknown column err = %v", err)
	}
}

func TestFilterDepth(t *testing.T) {
	c := fiveStations(t)
	nan := math.NaN()

	tests := []struct {
		name     string
		min, max float64
		fromOnly bool
		want     []int
	}{
		{"inclusive bounds", 0, 0.1, false, []int{1, 2, 3}},
		{"start only", 0.1, 0.3, true, []int{3, 4}},
		{"interval must fit", 0.1, 0.3, false, []int{3}},
		{"open lower bound", nan, 0.05, false, []int{1}},
		{"open upper bound", 0.5, nan, false, []int{0, 5}},
		{"everything", nan, nan, false, []int{0, 1, 2, 3, 4, 5}},
		{"nothing", 2, 3, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.FilterDepth(tt.min, tt.max, tt.fromOnly); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterDepth(%v, %v, %v) = %v, want %v", tt.min, tt.max, tt.fromOnly, got, tt.want)
			}
		})
	}
}

func TestSubset(t *testing.T) {
	c := fiveStations(t)

	sub, err := c.Subset([]int{4, 1, 1})
	if err != nil {
		t.Fatalf("Subset: %v", err)
	}
	if sub.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", sub.Len())
	}
	for i, want := range []int{1, 4} {
		got, _ := sub.Handler(i)
		orig, _ := c.Handler(want)
		if got.Path() != orig.Path() {
			t.Errorf("subset file %d = %s, want %s", i, got.Path(), orig.Path())
		}
	}
	if got := sub.Networks(); !reflect.DeepEqual(got, []string{"SCAN"}) {
		t.Errorf("Networks() = %v", got)
	}

	if _, err := c.Subset([]int{6}); !ismnerr.IsCode(err, ismnerr.CodeNotFound) {
		t.Errorf("out of range err = %v", err)
	}
}

func TestNewErrorRecord(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"structural", ismnerr.New(ismnerr.CodeStaticMetaMissing, "x"), ErrorKindStructural},
		{"format", ismnerr.New(ismnerr.CodeTruncatedFile, "x"), ErrorKindFormat},
		{"reconciliation", ismnerr.MissingKey("latitude"), ErrorKindReconciliation},
		{"setup", ismnerr.New(ismnerr.CodeArchiveOpen, "x"), ErrorKindSetup},
		{"plain", errors.New("boom"), ErrorKindFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewErrorRecord("a/b.stm", tt.err).Kind; got != tt.kind {
				t.Errorf("kind = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestErrorRecord_Line(t *testing.T) {
	err := ismnerr.New(ismnerr.CodeMalformedFilename, "file name has 3 tokens, expected at least 9").
		WithContext("path", "SCAN/Abrams/x.stm")
	rec := NewErrorRecord("SCAN/Abrams/x.stm", err)

	want := "SCAN/Abrams/x.stm: [E205] file name has 3 tokens, expected at least 9"
	if got := rec.Line(); got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
	if err.Context["path"] == nil {
		t.Error("NewErrorRecord modified the error")
	}
}

func TestErrorKind_Text(t *testing.T) {
	for _, k := range []ErrorKind{ErrorKindStructural, ErrorKindFormat, ErrorKindReconciliation, ErrorKindSetup} {
		b, _ := k.MarshalText()
		var got ErrorKind
		if err := got.UnmarshalText(b); err != nil || got != k {
			t.Errorf("text round trip of %v = %v, %v", k, got, err)
		}
	}
}

func TestCheckMetadata_AgreesWithFilters(t *testing.T) {
	c := fiveStations(t)
	byFilter, _ := c.FilterMetadata(map[string][]meta.Value{meta.LC2010: {meta.Float(10)}})
	byDepth := c.FilterDepth(0, 0.1, false)

	var want []int
	for _, i := range byFilter {
		for _, j := range byDepth {
			if i == j {
				want = append(want, i)
			}
		}
	}

	files, _ := c.Handlers()
	var got []int
	for i, f := range files {
		ok, err := f.CheckMetadata("soil_moisture", 0, 0.1, map[string]meta.Value{meta.LC2010: meta.Float(10)})
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			got = append(got, i)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CheckMetadata selects %v, filters select %v", got, want)
	}
}
