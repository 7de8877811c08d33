// Package meta provides the metadata model for indexed sensor files: depth
// intervals, depth-tagged metadata variables and their reconciliation.
package meta

import (
	"fmt"
	"math"
)

// Depth is a closed interval [Start, End] below the surface, in meters.
type Depth struct {
	Start float64
	End   float64
}

// NewDepth creates a depth interval. Start must not be greater than End.
func NewDepth(start, end float64) (Depth, error) {
	if math.IsNaN(start) || math.IsNaN(end) {
		return Depth{}, fmt.Errorf("invalid depth [%v, %v]", start, end)
	}
	if start > end {
		return Depth{}, fmt.Errorf("invalid depth [%v, %v]: start > end", start, end)
	}
	return Depth{Start: start, End: end}, nil
}

// PointDepth returns the degenerate interval [d, d].
func PointDepth(d float64) Depth {
	return Depth{Start: d, End: d}
}

// IsPoint reports whether the interval is degenerate.
func (d Depth) IsPoint() bool {
	return d.Start == d.End
}

// Length returns End - Start.
func (d Depth) Length() float64 {
	return d.End - d.Start
}

// Mid returns the interval midpoint.
func (d Depth) Mid() float64 {
	return (d.Start + d.End) / 2
}

// Encloses reports whether d fully contains other.
func (d Depth) Encloses(other Depth) bool {
	return d.Start <= other.Start && d.End >= other.End
}

// Overlaps reports whether the intersection of d and other is non-empty.
// Touching intervals overlap with zero length.
func (d Depth) Overlaps(other Depth) bool {
	return math.Max(d.Start, other.Start) <= math.Min(d.End, other.End)
}

// OverlapLength returns the length of the intersection of d and other,
// or 0 if they do not overlap.
func (d Depth) OverlapLength(other Depth) float64 {
	l := math.Min(d.End, other.End) - math.Max(d.Start, other.Start)
	if l < 0 {
		return 0
	}
	return l
}

// Distance returns the absolute distance between the interval midpoints.
func (d Depth) Distance(other Depth) float64 {
	return math.Abs(d.Mid() - other.Mid())
}

func (d Depth) String() string {
	return fmt.Sprintf("[%g, %g]", d.Start, d.End)
}
