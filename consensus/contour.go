package consensus

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// ContourMethod selects how agreement contours are computed.
type ContourMethod string

const (
	ContourAuto        ContourMethod = "auto"
	ContourExact       ContourMethod = "exact"
	ContourApproximate ContourMethod = "approximate"
)

func (m ContourMethod) valid() bool {
	switch m {
	case ContourAuto, ContourExact, ContourApproximate:
		return true
	}
	return false
}

// ContourOptions configures contour extraction for one cluster.
type ContourOptions struct {
	Method          ContourMethod
	ApproxThreshold int
	GridResolution  int
	Smoothing       Smoothing
}

// ContourSet holds the agreement outlines of one cluster. Levels[i] lists
// the regions covered by at least i+1 members.
type ContourSet struct {
	Levels    [][]orb.Polygon
	Score     float64
	Truncated bool
}

// BuildContours computes the contour set of one cluster. index maps each
// member to its row in dist.
func BuildContours(members []orb.Polygon, dist *mat.SymDense, index []int, opts ContourOptions) ContourSet {
	set := ContourSet{Score: consensusScore(dist, index)}
	approximate := opts.Method == ContourApproximate ||
		(opts.Method != ContourExact && len(members) > opts.ApproxThreshold)
	if approximate {
		set.Levels = RasterContours(members, opts.GridResolution, opts.Smoothing)
		return set
	}
	set.Levels, set.Truncated = ExactContours(members)
	return set
}

// consensusScore is 1 minus the mean pairwise distance between members,
// counting +Inf as 1. A single member scores 0.
func consensusScore(dist *mat.SymDense, index []int) float64 {
	if len(index) < 2 {
		return 0
	}
	sum, pairs := 0.0, 0
	for a := range index {
		for b := a + 1; b < len(index); b++ {
			d := dist.At(index[a], index[b])
			if math.IsInf(d, 1) {
				d = 1
			}
			sum += d
			pairs++
		}
	}
	return 1 - sum/float64(pairs)
}

type fragment struct {
	poly orb.Polygon
	// last is the highest member index in the fragment's member set.
	last int
}

// ExactContours builds agreement levels by intersecting fragments with
// every later member. Level k+1 fragments come from intersecting each
// level k fragment with each member whose index exceeds the fragment's
// largest member index, so every member set is visited once.
func ExactContours(members []orb.Polygon) (levels [][]orb.Polygon, truncated bool) {
	var current []fragment
	for i, m := range members {
		if isSimplePolygon(m) {
			current = append(current, fragment{poly: m, last: i})
		}
	}
	for len(current) > 0 {
		polys := make([]orb.Polygon, len(current))
		for i, f := range current {
			polys[i] = f.poly
		}
		unified, cut := UnifyPolygons(polys)
		truncated = truncated || cut
		levels = append(levels, unified)

		var next []fragment
		for _, f := range current {
			for j := f.last + 1; j < len(members); j++ {
				if !isSimplePolygon(members[j]) {
					continue
				}
				for _, part := range intersectPolygons(f.poly, members[j]) {
					next = append(next, fragment{poly: part, last: j})
				}
			}
		}
		current = next
	}
	return levels, truncated
}
