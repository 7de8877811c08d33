package meta

import "fmt"

// MetaVar is one named metadata value. A nil Depth means the value applies
// at every depth.
type MetaVar struct {
	Name   string
	Value  Value
	Depth  *Depth
	Source string
}

// NewVar creates a depth-less variable.
func NewVar(name string, v Value) MetaVar {
	return MetaVar{Name: name, Value: v}
}

// NewDepthVar creates a variable valid over d.
func NewDepthVar(name string, v Value, d Depth) MetaVar {
	return MetaVar{Name: name, Value: v, Depth: &d}
}

// WithSource returns a copy of the variable with its provenance tag set.
func (m MetaVar) WithSource(src string) MetaVar {
	m.Source = src
	return m
}

// Equal compares all fields.
func (m MetaVar) Equal(o MetaVar) bool {
	if m.Name != o.Name || m.Source != o.Source || !m.Value.Equal(o.Value) {
		return false
	}
	if (m.Depth == nil) != (o.Depth == nil) {
		return false
	}
	return m.Depth == nil || *m.Depth == *o.Depth
}

func (m MetaVar) String() string {
	if m.Depth == nil {
		return fmt.Sprintf("%s=%s", m.Name, m.Value)
	}
	return fmt.Sprintf("%s=%s @%s", m.Name, m.Value, m.Depth)
}
