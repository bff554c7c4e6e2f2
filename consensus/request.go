package consensus

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// Detail is the extract of one subtask answered for one mark.
type Detail = map[string]any

// Request is a single reduction: one reducer configuration applied to
// every (frame, tool) group of one subject.
type Request struct {
	Config Config                      `json:"config" yaml:"config"`
	Frames map[string]map[string]Group `json:"frames" yaml:"frames"`
}

// Group holds the raw marks one tool produced on one frame. Values is used
// by parameterised shapes and Polygons by polygon shapes; the provenance
// arrays are optional but, when present, parallel to the marks.
type Group struct {
	Values   [][]float64    `json:"values,omitempty" yaml:"values,omitempty"`
	Polygons [][][2]float64 `json:"polygons,omitempty" yaml:"polygons,omitempty"`
	Users    []string       `json:"users,omitempty" yaml:"users,omitempty"`
	Created  []time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Gold     []bool         `json:"gold_standard,omitempty" yaml:"gold_standard,omitempty"`
	Details  [][]Detail     `json:"details,omitempty" yaml:"details,omitempty"`
}

// Instance is one mark with its provenance.
type Instance struct {
	Params  []float64
	Points  [][2]float64
	User    string
	Created time.Time
	Gold    bool
	Details []Detail
}

// Len is the number of marks in the group.
func (g Group) Len() int {
	return max(len(g.Values), len(g.Polygons))
}

// Instances validates the group against s and unpacks it.
func (g Group) Instances(s Shape) ([]Instance, error) {
	n := len(g.Values)
	if IsPolygonShape(s) {
		if len(g.Values) > 0 {
			return nil, fmt.Errorf("%s marks must be given as polygons", s.Name())
		}
		n = len(g.Polygons)
	} else if len(g.Polygons) > 0 {
		return nil, fmt.Errorf("%s marks must be given as values", s.Name())
	}
	for _, p := range []struct {
		name string
		l    int
	}{
		{"users", len(g.Users)},
		{"created_at", len(g.Created)},
		{"gold_standard", len(g.Gold)},
		{"details", len(g.Details)},
	} {
		if p.l != 0 && p.l != n {
			return nil, fmt.Errorf("%s has %d entries for %d marks", p.name, p.l, n)
		}
	}

	out := make([]Instance, n)
	arity := len(s.Params())
	for i := range out {
		inst := &out[i]
		if IsPolygonShape(s) {
			inst.Points = g.Polygons[i]
		} else {
			if len(g.Values[i]) != arity {
				return nil, fmt.Errorf("mark %d has %d parameters, %s needs %d", i, len(g.Values[i]), s.Name(), arity)
			}
			inst.Params = g.Values[i]
		}
		if len(g.Users) > 0 {
			inst.User = g.Users[i]
		}
		if len(g.Created) > 0 {
			inst.Created = g.Created[i]
		}
		if len(g.Gold) > 0 {
			inst.Gold = g.Gold[i]
		}
		if len(g.Details) > 0 {
			inst.Details = g.Details[i]
		}
	}
	return out, nil
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func users(insts []Instance) []string {
	out := make([]string, len(insts))
	for i, in := range insts {
		out[i] = in.User
	}
	return out
}

func polygons(insts []Instance) []orb.Polygon {
	out := make([]orb.Polygon, len(insts))
	for i, in := range insts {
		out[i] = polygonFromPoints(in.Points)
	}
	return out
}
