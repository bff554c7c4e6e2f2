package consensus

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tdewolff/canvas"
)

// minPartArea drops slivers left behind by path boolean operations.
const minPartArea = 1e-9

// ringPath converts one ring to a closed subpath appended to p.
func ringPath(p *canvas.Path, ring orb.Ring) {
	pts := openRing(ring)
	if len(pts) < 3 {
		return
	}
	p.MoveTo(pts[0][0], pts[0][1])
	for _, pt := range pts[1:] {
		p.LineTo(pt[0], pt[1])
	}
	p.Close()
}

// polygonPath converts an orb polygon, holes included, to a canvas path.
func polygonPath(poly orb.Polygon) *canvas.Path {
	p := &canvas.Path{}
	for _, ring := range poly {
		ringPath(p, ring)
	}
	return p
}

// openRing returns the ring without its closing vertex and without
// consecutive duplicates.
func openRing(ring orb.Ring) []orb.Point {
	out := make([]orb.Point, 0, len(ring))
	for _, pt := range ring {
		if len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// closeRing returns pts as a closed orb ring.
func closeRing(pts []orb.Point) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	ring = append(ring, pts...)
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		ring = append(ring, pts[0])
	}
	return ring
}

func pathAnd(a, b *canvas.Path) *canvas.Path {
	return a.Copy().And(b.Copy())
}

func pathOr(a, b *canvas.Path) *canvas.Path {
	return a.Copy().Or(b.Copy())
}

// pathPolygons splits a boolean result into polygons, largest first. Rings
// wound against the outer orientation become holes of the smallest outer
// ring that contains them.
func pathPolygons(p *canvas.Path) orb.MultiPolygon {
	if p == nil || p.Empty() {
		return nil
	}
	type loop struct {
		ring orb.Ring
		area float64
	}
	var loops []loop
	for _, sub := range p.Split() {
		coords := sub.Coords()
		pts := make([]orb.Point, 0, len(coords))
		for _, c := range coords {
			pts = append(pts, orb.Point{c.X, c.Y})
		}
		pts = openRing(closeRing(pts))
		a := signedArea(pts)
		if math.Abs(a) < minPartArea {
			continue
		}
		loops = append(loops, loop{ring: closeRing(pts), area: a})
	}
	if len(loops) == 0 {
		return nil
	}
	sort.SliceStable(loops, func(i, j int) bool {
		return math.Abs(loops[i].area) > math.Abs(loops[j].area)
	})
	outerSign := math.Signbit(loops[0].area)

	var out orb.MultiPolygon
	var holes []orb.Ring
	for _, l := range loops {
		if math.Signbit(l.area) == outerSign {
			out = append(out, orb.Polygon{l.ring})
		} else {
			holes = append(holes, l.ring)
		}
	}
	for _, h := range holes {
		start := h[0]
		for k := len(out) - 1; k >= 0; k-- {
			if planar.RingContains(out[k][0], start) {
				out[k] = append(out[k], h)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return planar.Area(out[i]) > planar.Area(out[j])
	})
	return out
}

// pathArea is the total filled area of a boolean result.
func pathArea(p *canvas.Path) float64 {
	total := 0.0
	for _, poly := range pathPolygons(p) {
		total += planar.Area(poly)
	}
	return total
}

// intersectPolygons returns the parts of a covered by b.
func intersectPolygons(a, b orb.Polygon) orb.MultiPolygon {
	if !a.Bound().Intersects(b.Bound()) {
		return nil
	}
	return pathPolygons(pathAnd(polygonPath(a), polygonPath(b)))
}

// unionPolygons returns the parts covered by a or b.
func unionPolygons(a, b orb.Polygon) orb.MultiPolygon {
	return pathPolygons(pathOr(polygonPath(a), polygonPath(b)))
}
