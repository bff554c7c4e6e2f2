package consensus

import (
	"math"

	"github.com/paulmach/orb"
)

// discSegments is the number of vertices used to approximate circles and
// ellipses.
const discSegments = 64

// region is the convex outline of a parameterised shape together with
// its cached area and bounds. The outline is open and counter-clockwise.
type region struct {
	outline []orb.Point
	area    float64
	bound   orb.Bound
}

func newRegion(outline []orb.Point) region {
	if signedArea(outline) < 0 {
		for i, j := 0, len(outline)-1; i < j; i, j = i+1, j-1 {
			outline[i], outline[j] = outline[j], outline[i]
		}
	}
	r := region{outline: outline, area: math.Abs(signedArea(outline))}
	if len(outline) > 0 {
		r.bound = orb.MultiPoint(outline).Bound()
	}
	return r
}

// ring returns the outline as a closed orb ring.
func (r region) ring() orb.Ring {
	if len(r.outline) == 0 {
		return nil
	}
	ring := make(orb.Ring, 0, len(r.outline)+1)
	ring = append(ring, r.outline...)
	return append(ring, r.outline[0])
}

func rectangleOutline(p []float64) []orb.Point {
	x, y, w, h := p[0], p[1], p[2], p[3]
	return []orb.Point{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

func rotateRectangleOutline(p []float64) []orb.Point {
	hw, hh := p[2]/2, p[3]/2
	corners := []orb.Point{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	return placeOutline(corners, p[0], p[1], p[4])
}

func circleOutline(p []float64) []orb.Point {
	return placeOutline(unitDisc(p[2], p[2]), p[0], p[1], 0)
}

func ellipseOutline(p []float64) []orb.Point {
	return placeOutline(unitDisc(p[2], p[3]), p[0], p[1], p[4])
}

func triangleOutline(p []float64) []orb.Point {
	r := p[2]
	pts := make([]orb.Point, 3)
	for i, deg := range []float64{90, 210, 330} {
		rad := deg * math.Pi / 180
		pts[i] = orb.Point{r * math.Cos(rad), r * math.Sin(rad)}
	}
	return placeOutline(pts, p[0], p[1], p[3])
}

// unitDisc returns a polygonal disc scaled by rx and ry and centred on the
// origin.
func unitDisc(rx, ry float64) []orb.Point {
	pts := make([]orb.Point, discSegments)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / discSegments
		pts[i] = orb.Point{rx * math.Cos(t), ry * math.Sin(t)}
	}
	return pts
}

// placeOutline rotates pts about the origin by angle degrees and then
// translates them to (x, y).
func placeOutline(pts []orb.Point, x, y, angle float64) []orb.Point {
	rad := angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{
			x + p[0]*cos - p[1]*sin,
			y + p[0]*sin + p[1]*cos,
		}
	}
	return out
}

// signedArea is the shoelace area of an open vertex list; positive when
// the vertices run counter-clockwise.
func signedArea(pts []orb.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	sum := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum / 2
}

// intersectionArea returns the area shared by two convex regions.
func intersectionArea(a, b region) float64 {
	if a.area == 0 || b.area == 0 || !a.bound.Intersects(b.bound) {
		return 0
	}
	clipped := clipConvex(a.outline, b.outline)
	return math.Abs(signedArea(clipped))
}

// clipConvex clips subject against the convex counter-clockwise polygon
// clip using Sutherland-Hodgman.
func clipConvex(subject, clip []orb.Point) []orb.Point {
	out := subject
	for i := range clip {
		if len(out) == 0 {
			break
		}
		a, b := clip[i], clip[(i+1)%len(clip)]
		in := out
		out = make([]orb.Point, 0, len(in)+2)
		for j := range in {
			cur := in[j]
			prev := in[(j+len(in)-1)%len(in)]
			curIn := cross(a, b, cur) >= 0
			prevIn := cross(a, b, prev) >= 0
			switch {
			case curIn && !prevIn:
				out = append(out, edgeCrossing(prev, cur, a, b), cur)
			case curIn:
				out = append(out, cur)
			case prevIn:
				out = append(out, edgeCrossing(prev, cur, a, b))
			}
		}
	}
	return out
}

// cross is the z component of (b-a) x (p-a).
func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// edgeCrossing returns where segment p-q crosses the line through a and b.
func edgeCrossing(p, q, a, b orb.Point) orb.Point {
	dp, dq := cross(a, b, p), cross(a, b, q)
	t := dp / (dp - dq)
	return orb.Point{p[0] + t*(q[0]-p[0]), p[1] + t*(q[1]-p[1])}
}
