package meta

import (
	"time"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// MetaData is an ordered collection of metadata variables. A name may appear
// several times with different depths until the collection is reconciled
// against a sensor depth.
type MetaData struct {
	vars []MetaVar
}

// New creates a MetaData from vars, preserving their order.
func New(vars ...MetaVar) MetaData {
	cp := make([]MetaVar, len(vars))
	copy(cp, vars)
	return MetaData{vars: cp}
}

// Len returns the number of variables, counting every depth candidate.
func (m MetaData) Len() int { return len(m.vars) }

// Vars returns a copy of all variables in order.
func (m MetaData) Vars() []MetaVar {
	cp := make([]MetaVar, len(m.vars))
	copy(cp, m.vars)
	return cp
}

// Keys returns the distinct variable names in first-seen order.
func (m MetaData) Keys() []string {
	seen := make(map[string]bool, len(m.vars))
	keys := make([]string, 0, len(m.vars))
	for _, v := range m.vars {
		if !seen[v.Name] {
			seen[v.Name] = true
			keys = append(keys, v.Name)
		}
	}
	return keys
}

// Has reports whether any candidate exists for name.
func (m MetaData) Has(name string) bool {
	for _, v := range m.vars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// Candidates returns every variable stored under name, in order.
func (m MetaData) Candidates(name string) []MetaVar {
	var out []MetaVar
	for _, v := range m.vars {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}

// Get returns the first variable stored under name.
func (m MetaData) Get(name string) (MetaVar, error) {
	for _, v := range m.vars {
		if v.Name == name {
			return v, nil
		}
	}
	return MetaVar{}, ismnerr.NotFound(name)
}

// Value returns the value of the first variable stored under name, or null.
func (m MetaData) Value(name string) Value {
	v, err := m.Get(name)
	if err != nil {
		return Null()
	}
	return v.Value
}

// Equal reports whether both collections hold equal variables in the same
// order.
func (m MetaData) Equal(o MetaData) bool {
	if len(m.vars) != len(o.vars) {
		return false
	}
	for i := range m.vars {
		if !m.vars[i].Equal(o.vars[i]) {
			return false
		}
	}
	return true
}

// Merge returns the union of m and other. Candidates of m precede those of
// other for a shared name; nothing is overwritten. With excludeEmpty, empty
// values from other are dropped so placeholders do not add candidates next
// to real values.
func (m MetaData) Merge(other MetaData, excludeEmpty bool) MetaData {
	out := make([]MetaVar, 0, len(m.vars)+len(other.vars))
	out = append(out, m.vars...)
	for _, v := range other.vars {
		if excludeEmpty && v.Value.IsEmpty() {
			continue
		}
		out = append(out, v)
	}
	return MetaData{vars: out}
}

// BestMatchForDepth selects one candidate per name for a sensor at d:
//  1. a candidate whose depth encloses d, the tightest one first;
//  2. otherwise the candidate with the greatest overlap, where merely
//     touching intervals do not count;
//  3. otherwise the candidate with the nearest midpoint.
//
// Depth-less candidates are used only when a name has no depth-tagged
// candidate. Ties go to the first seen candidate.
func (m MetaData) BestMatchForDepth(d Depth) MetaData {
	keys := m.Keys()
	out := make([]MetaVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, bestCandidate(m.Candidates(k), d))
	}
	return MetaData{vars: out}
}

func bestCandidate(cands []MetaVar, d Depth) MetaVar {
	enclosing, overlapping, nearest := -1, -1, -1
	var tightest, widest, closest float64
	for i, c := range cands {
		if c.Depth == nil {
			continue
		}
		cd := *c.Depth
		switch {
		case cd.Encloses(d):
			if enclosing < 0 || cd.Length() < tightest {
				enclosing, tightest = i, cd.Length()
			}
		case cd.OverlapLength(d) > 0:
			if l := cd.OverlapLength(d); overlapping < 0 || l > widest {
				overlapping, widest = i, l
			}
		default:
			// touching intervals land here too
			if dist := cd.Distance(d); nearest < 0 || dist < closest {
				nearest, closest = i, dist
			}
		}
	}
	switch {
	case enclosing >= 0:
		return cands[enclosing]
	case overlapping >= 0:
		return cands[overlapping]
	case nearest >= 0:
		return cands[nearest]
	}
	return cands[0]
}

// CheckRequired returns an error naming the first required key without a
// non-empty value.
func (m MetaData) CheckRequired() error {
	for _, k := range RequiredKeys {
		v, err := m.Get(string(k))
		if err != nil || v.Value.IsEmpty() {
			return ismnerr.MissingKey(string(k))
		}
	}
	return nil
}

// Reconcile reduces m to one value per name for a sensor at d and checks
// that every required key is present.
func (m MetaData) Reconcile(d Depth) (MetaData, error) {
	out := m.BestMatchForDepth(d)
	if err := out.CheckRequired(); err != nil {
		return MetaData{}, err
	}
	return out, nil
}

// --- typed accessors ---

func (m MetaData) str(k Key) string {
	v := m.Value(string(k))
	if s, ok := v.AsString(); ok {
		return s
	}
	return v.String()
}

func (m MetaData) num(k Key) float64 {
	f, _ := m.Value(string(k)).AsFloat()
	return f
}

func (m MetaData) tm(k Key) time.Time {
	t, _ := m.Value(string(k)).AsTime()
	return t
}

// Network returns the network name.
func (m MetaData) Network() string { return m.str(KeyNetwork) }

// Station returns the station name.
func (m MetaData) Station() string { return m.str(KeyStation) }

// Variable returns the canonical variable name.
func (m MetaData) Variable() string { return m.str(KeyVariable) }

// Instrument returns the instrument name.
func (m MetaData) Instrument() string { return m.str(KeyInstrument) }

func (m MetaData) Latitude() float64  { return m.num(KeyLatitude) }
func (m MetaData) Longitude() float64 { return m.num(KeyLongitude) }
func (m MetaData) Elevation() float64 { return m.num(KeyElevation) }

func (m MetaData) TimerangeFrom() time.Time { return m.tm(KeyTimerangeFrom) }
func (m MetaData) TimerangeTo() time.Time   { return m.tm(KeyTimerangeTo) }

// SensorDepth returns the depth attached to the instrument variable.
func (m MetaData) SensorDepth() (Depth, bool) {
	v, err := m.Get(string(KeyInstrument))
	if err != nil || v.Depth == nil {
		return Depth{}, false
	}
	return *v.Depth, true
}
