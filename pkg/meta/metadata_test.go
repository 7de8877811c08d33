package meta

import (
	"testing"
	"time"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

func fileMeta(d Depth) MetaData {
	from := time.Date(2017, 8, 10, 0, 0, 0, 0, time.UTC)
	return New(
		NewVar("network", String("COSMOS")),
		NewVar("station", String("Barrow-ARM")),
		NewDepthVar("variable", String("soil_moisture"), d),
		NewDepthVar("instrument", String("Cosmic-ray-Probe"), d),
		NewVar("timerange_from", Time(from)),
		NewVar("timerange_to", Time(from.AddDate(1, 0, 0))),
		NewVar("latitude", Float(71.32)),
		NewVar("longitude", Float(-156.61)),
		NewVar("elevation", Float(4)),
	)
}

func TestBestMatchForDepth_Rules(t *testing.T) {
	tests := []struct {
		name   string
		cands  []MetaVar
		sensor Depth
		want   float64
	}{
		{
			name: "enclosing beats overlapping",
			cands: []MetaVar{
				NewDepthVar("clay_fraction", Float(1), Depth{0.05, 0.5}),
				NewDepthVar("clay_fraction", Float(2), Depth{0, 0.3}),
			},
			sensor: Depth{0, 0.05},
			want:   2,
		},
		{
			name: "tightest enclosing wins",
			cands: []MetaVar{
				NewDepthVar("clay_fraction", Float(1), Depth{0, 1}),
				NewDepthVar("clay_fraction", Float(2), Depth{0, 0.3}),
				NewDepthVar("clay_fraction", Float(3), Depth{0, 0.5}),
			},
			sensor: Depth{0.05, 0.1},
			want:   2,
		},
		{
			name: "first seen on equal enclosing length",
			cands: []MetaVar{
				NewDepthVar("clay_fraction", Float(1), Depth{0, 0.5}),
				NewDepthVar("clay_fraction", Float(2), Depth{0.25, 0.75}),
			},
			sensor: Depth{0.3, 0.4},
			want:   1,
		},
		{
			name: "greatest overlap when nothing encloses",
			cands: []MetaVar{
				NewDepthVar("sand_fraction", Float(1), Depth{0, 0.12}),
				NewDepthVar("sand_fraction", Float(2), Depth{0.15, 0.6}),
			},
			sensor: Depth{0.1, 0.3},
			want:   2,
		},
		{
			name: "nearest midpoint when nothing overlaps",
			cands: []MetaVar{
				NewDepthVar("silt_fraction", Float(1), Depth{0, 0.1}),
				NewDepthVar("silt_fraction", Float(2), Depth{0.8, 1}),
			},
			sensor: Depth{0.5, 0.6},
			want:   2,
		},
		{
			name: "touching is not overlapping",
			cands: []MetaVar{
				NewDepthVar("silt_fraction", Float(1), Depth{0, 0.1}),
				NewDepthVar("silt_fraction", Float(2), Depth{0.21, 0.25}),
			},
			sensor: Depth{0.1, 0.2},
			want:   2,
		},
		{
			name: "depth-less only without depth-tagged candidates",
			cands: []MetaVar{
				NewVar("saturation", Float(1)),
				NewDepthVar("saturation", Float(2), Depth{1, 2}),
			},
			sensor: Depth{0, 0.05},
			want:   2,
		},
		{
			name: "depth-less fallback",
			cands: []MetaVar{
				NewVar("saturation", Float(7)),
				NewVar("saturation", Float(8)),
			},
			sensor: Depth{0, 0.05},
			want:   7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.cands...).BestMatchForDepth(tt.sensor)
			if got.Len() != 1 {
				t.Fatalf("expected one candidate, got %d", got.Len())
			}
			f, ok := got.Vars()[0].Value.AsFloat()
			if !ok || f != tt.want {
				t.Errorf("selected %v, want %v", got.Vars()[0], tt.want)
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	sensor := Depth{0, 0.05}
	md := fileMeta(sensor).Merge(New(
		NewDepthVar("clay_fraction", Float(10), Depth{0, 0.3}),
		NewDepthVar("clay_fraction", Float(20), Depth{0.3, 1}),
		NewVar("lc_2010", Float(10)),
	), false)

	once, err := md.Reconcile(sensor)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	twice, err := once.Reconcile(sensor)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if !once.Equal(twice) {
		t.Errorf("reconciliation not idempotent:\n%v\n%v", once.Vars(), twice.Vars())
	}
	if got := len(once.Candidates("clay_fraction")); got != 1 {
		t.Errorf("expected 1 clay_fraction candidate, got %d", got)
	}
}

func TestReconcile_MissingRequiredKey(t *testing.T) {
	md := New(
		NewVar("network", String("SCAN")),
		NewDepthVar("instrument", String("probe"), Depth{0, 0.05}),
	)

	_, err := md.Reconcile(Depth{0, 0.05})
	if err == nil {
		t.Fatal("expected error for missing required keys")
	}
	if !ismnerr.IsCode(err, ismnerr.CodeMissingKey) {
		t.Errorf("expected missing key code, got %v", err)
	}
	if !ismnerr.IsFormat(err) {
		t.Errorf("missing key must be treated as a file-format error")
	}
}

func TestMerge_OrderStableAndAssociative(t *testing.T) {
	a := New(NewDepthVar("clay_fraction", Float(1), Depth{0, 0.1}), NewVar("x", String("a")))
	b := New(NewDepthVar("clay_fraction", Float(2), Depth{0.1, 0.2}))
	c := New(NewDepthVar("clay_fraction", Float(3), Depth{0.2, 0.3}), NewVar("x", String("c")))

	left := a.Merge(b, false).Merge(c, false)
	right := a.Merge(b.Merge(c, false), false)
	if !left.Equal(right) {
		t.Errorf("merge is not associative:\n%v\n%v", left.Vars(), right.Vars())
	}

	cands := left.Candidates("clay_fraction")
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	for i, want := range []float64{1, 2, 3} {
		if f, _ := cands[i].Value.AsFloat(); f != want {
			t.Errorf("candidate %d = %v, want %v", i, f, want)
		}
	}

	xs := left.Candidates("x")
	if len(xs) != 2 || xs[0].Value.String() != "a" {
		t.Errorf("expected left candidate first, got %v", xs)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	a := New(NewVar("network", String("A")))
	b := New(NewVar("lc_2010", Float(10)))
	_ = a.Merge(b, false)

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("inputs mutated: a=%d b=%d", a.Len(), b.Len())
	}
}

func TestMerge_ExcludeEmpty(t *testing.T) {
	file := New(NewVar("lc_2010", Float(10)))
	station := FromTemplate()

	merged := file.Merge(station, true)
	if got := len(merged.Candidates("lc_2010")); got != 1 {
		t.Errorf("expected placeholder to be dropped, got %d candidates", got)
	}
	if merged.Has("clay_fraction") {
		t.Errorf("empty right-hand values must be dropped")
	}

	kept := file.Merge(station, false)
	if got := len(kept.Candidates("lc_2010")); got != 2 {
		t.Errorf("expected 2 candidates without exclude_empty, got %d", got)
	}
}

func TestMetaData_Get(t *testing.T) {
	md := fileMeta(Depth{0, 0.05})

	if md.Network() != "COSMOS" {
		t.Errorf("Network() = %q", md.Network())
	}
	if md.Latitude() != 71.32 {
		t.Errorf("Latitude() = %v", md.Latitude())
	}
	d, ok := md.SensorDepth()
	if !ok || d != (Depth{0, 0.05}) {
		t.Errorf("SensorDepth() = %v, %v", d, ok)
	}

	_, err := md.Get("lc_2000")
	if !ismnerr.IsCode(err, ismnerr.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		kind Kind
		in   string
		want Value
	}{
		{KindString, "1.01", String("1.01")},
		{KindFloat, "10", Float(10)},
		{KindFloat, "n/a", String("n/a")},
		{KindNull, "0.25", Float(0.25)},
		{KindNull, "loam", String("loam")},
		{KindString, "", Null()},
		{KindTime, "2017/08/10 00:00", Time(time.Date(2017, 8, 10, 0, 0, 0, 0, time.UTC))},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.kind, tt.in)
		if err != nil {
			t.Errorf("ParseKind(%v, %q) error: %v", tt.kind, tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseKind(%v, %q) = %v (%v), want %v", tt.kind, tt.in, got, got.Kind(), tt.want)
		}
	}

	if _, err := ParseKind(KindTime, "yesterday"); !ismnerr.IsCode(err, ismnerr.CodeInvalidTimestamp) {
		t.Errorf("expected timestamp error, got %v", err)
	}
}

func TestValue_StringRoundTrip(t *testing.T) {
	for _, f := range []float64{0.1, 1.0 / 3, -156.61, 1e-7, 71.32} {
		v := Float(f)
		got, err := ParseKind(KindFloat, v.String())
		if err != nil || !got.Equal(v) {
			t.Errorf("float %v did not round trip: %v %v", f, got, err)
		}
	}
}
