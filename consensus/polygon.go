package consensus

import (
	"log"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/mat"
)

// maxUnifyPasses caps the pairwise-union loop in UnifyPolygons.
var maxUnifyPasses = 10

// AverageType selects how a polygon cluster is reduced to one polygon.
type AverageType string

const (
	AverageLast         AverageType = "last"
	AverageUnion        AverageType = "union"
	AverageIntersection AverageType = "intersection"
	AverageMedian       AverageType = "median"
)

func (a AverageType) valid() bool {
	switch a {
	case AverageLast, AverageUnion, AverageIntersection, AverageMedian:
		return true
	}
	return false
}

// polygonFromPoints builds a closed single-ring polygon.
func polygonFromPoints(pts [][2]float64) orb.Polygon {
	ring := make([]orb.Point, len(pts))
	for i, p := range pts {
		ring[i] = orb.Point(p)
	}
	return orb.Polygon{closeRing(ring)}
}

// polygonPoints returns the outer ring of p as an open point list.
func polygonPoints(p orb.Polygon) [][2]float64 {
	if len(p) == 0 {
		return nil
	}
	pts := openRing(p[0])
	out := make([][2]float64, len(pts))
	for i, pt := range pts {
		out[i] = [2]float64(pt)
	}
	return out
}

// isSimplePolygon reports whether the outer ring has at least three
// distinct vertices and no two non-adjacent edges touch.
func isSimplePolygon(p orb.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	pts := openRing(p[0])
	n := len(pts)
	if n < 3 || signedArea(pts) == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsTouch(a1, a2, pts[j], pts[(j+1)%n]) {
				return false
			}
		}
	}
	return true
}

func segmentsTouch(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// AveragePolygons reduces a cluster of polygons to one representative.
// created and dist are indexed like members; dist may be nil for every
// strategy except median. The second result is false when the strategy
// yields no area, e.g. an empty intersection.
func AveragePolygons(kind AverageType, members []orb.Polygon, created []time.Time, dist *mat.SymDense, index []int) (orb.Polygon, bool) {
	if len(members) == 0 {
		return nil, false
	}
	switch kind {
	case AverageUnion:
		acc := polygonPath(members[0])
		for _, m := range members[1:] {
			acc = pathOr(acc, polygonPath(m))
		}
		return largestPart(pathPolygons(acc))
	case AverageIntersection:
		acc := polygonPath(members[0])
		for _, m := range members[1:] {
			acc = pathAnd(acc, polygonPath(m))
			if acc.Empty() {
				return nil, false
			}
		}
		return largestPart(pathPolygons(acc))
	case AverageMedian:
		best, bestSum := 0, math.Inf(1)
		for a := range members {
			sum := 0.0
			for b := range members {
				d := dist.At(index[a], index[b])
				if math.IsInf(d, 1) {
					d = 1
				}
				sum += d
			}
			if sum < bestSum {
				best, bestSum = a, sum
			}
		}
		return members[best], true
	default:
		if len(created) < len(members) {
			return members[len(members)-1], true
		}
		best := 0
		for i := range members {
			if !created[i].Before(created[best]) {
				best = i
			}
		}
		return members[best], true
	}
}

func largestPart(parts orb.MultiPolygon) (orb.Polygon, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	return parts[0], true
}

// UnifyPolygons merges polygons that overlap or touch into hole-free
// outlines, largest first. Disjoint regions stay separate. When the pass
// cap is reached before the set stops changing, only the largest outline
// is returned and truncated is true.
func UnifyPolygons(polys []orb.Polygon) (out []orb.Polygon, truncated bool) {
	frags := make([]orb.Polygon, 0, len(polys))
	for _, p := range polys {
		if len(p) > 0 && len(p[0]) > 3 {
			frags = append(frags, orb.Polygon{p[0]})
		}
	}
	converged := false
	for pass := 0; pass < maxUnifyPasses; pass++ {
		merged := false
		next := make([]orb.Polygon, 0, len(frags))
		for _, f := range frags {
			absorbed := false
			for k := range next {
				if !next[k].Bound().Intersects(f.Bound()) {
					continue
				}
				u := unionPolygons(next[k], f)
				if len(u) != 1 {
					continue
				}
				next[k] = orb.Polygon{dropCollinear(u[0][0])}
				absorbed, merged = true, true
				break
			}
			if !absorbed {
				next = append(next, f)
			}
		}
		frags = next
		if !merged {
			converged = true
			break
		}
	}
	sort.SliceStable(frags, func(i, j int) bool {
		return planar.Area(frags[i]) > planar.Area(frags[j])
	})
	if !converged && len(frags) > 1 {
		log.Printf("polygon unification did not settle after %d passes, keeping largest of %d fragments", maxUnifyPasses, len(frags))
		return frags[:1], true
	}
	return frags, false
}

// dropCollinear removes vertices that lie on a straight edge.
func dropCollinear(ring orb.Ring) orb.Ring {
	return simplify.DouglasPeucker(0).Ring(ring.Clone())
}
