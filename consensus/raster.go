package consensus

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// DefaultGridResolution is the number of cells along the long side of the
// rasterised cluster bounds.
const DefaultGridResolution = 128

// chaikinIterations is the number of corner-cutting rounds for round
// smoothing.
const chaikinIterations = 2

// Smoothing post-processes traced raster outlines.
type Smoothing string

const (
	SmoothNone     Smoothing = "none"
	SmoothSimplify Smoothing = "simplify"
	SmoothRound    Smoothing = "round"
)

func (s Smoothing) valid() bool {
	switch s {
	case SmoothNone, SmoothSimplify, SmoothRound:
		return true
	}
	return false
}

// coverageGrid counts how many members cover each cell centre.
type coverageGrid struct {
	origin orb.Point
	cell   float64
	nx, ny int
	counts []int
}

func newCoverageGrid(members []orb.Polygon, resolution int) *coverageGrid {
	if resolution <= 0 {
		resolution = DefaultGridResolution
	}
	var bound orb.Bound
	found := false
	for _, m := range members {
		if len(m) == 0 || len(m[0]) == 0 {
			continue
		}
		if !found {
			bound, found = m.Bound(), true
		} else {
			bound = bound.Union(m.Bound())
		}
	}
	w, h := bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]
	if !found || w <= 0 || h <= 0 {
		return nil
	}
	cell := math.Max(w, h) / float64(resolution)
	g := &coverageGrid{
		origin: bound.Min,
		cell:   cell,
		nx:     max(1, int(math.Ceil(w/cell))),
		ny:     max(1, int(math.Ceil(h/cell))),
	}
	g.counts = make([]int, g.nx*g.ny)
	for _, m := range members {
		if len(m) == 0 || len(m[0]) < 4 {
			continue
		}
		b := m.Bound()
		i0, i1 := g.column(b.Min[0]), g.column(b.Max[0])
		j0, j1 := g.row(b.Min[1]), g.row(b.Max[1])
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				centre := orb.Point{
					g.origin[0] + (float64(i)+0.5)*cell,
					g.origin[1] + (float64(j)+0.5)*cell,
				}
				if planar.PolygonContains(m, centre) {
					g.counts[j*g.nx+i]++
				}
			}
		}
	}
	return g
}

func (g *coverageGrid) column(x float64) int {
	return min(g.nx-1, max(0, int(math.Floor((x-g.origin[0])/g.cell))))
}

func (g *coverageGrid) row(y float64) int {
	return min(g.ny-1, max(0, int(math.Floor((y-g.origin[1])/g.cell))))
}

// RasterContours approximates agreement levels on a coverage grid. Each
// 4-connected component of cells covered by at least k members becomes
// one outline at level k.
func RasterContours(members []orb.Polygon, resolution int, smoothing Smoothing) [][]orb.Polygon {
	g := newCoverageGrid(members, resolution)
	if g == nil {
		return nil
	}
	top := 0
	for _, c := range g.counts {
		top = max(top, c)
	}
	levels := make([][]orb.Polygon, 0, top)
	for k := 1; k <= top; k++ {
		var level []orb.Polygon
		for _, comp := range g.components(k) {
			ring := g.traceOutline(comp)
			if len(ring) < 4 {
				continue
			}
			level = append(level, orb.Polygon{smoothRing(ring, smoothing, g.cell)})
		}
		sort.SliceStable(level, func(a, b int) bool {
			return planar.Area(level[a]) > planar.Area(level[b])
		})
		levels = append(levels, level)
	}
	return levels
}

// components labels 4-connected groups of cells with count >= k. Each
// component is returned as a membership mask indexed like counts.
func (g *coverageGrid) components(k int) [][]bool {
	seen := make([]bool, len(g.counts))
	var out [][]bool
	for start := range g.counts {
		if seen[start] || g.counts[start] < k {
			continue
		}
		mask := make([]bool, len(g.counts))
		queue := []int{start}
		seen[start] = true
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			mask[idx] = true
			i, j := idx%g.nx, idx/g.nx
			for _, n := range [][2]int{{i + 1, j}, {i - 1, j}, {i, j + 1}, {i, j - 1}} {
				if n[0] < 0 || n[0] >= g.nx || n[1] < 0 || n[1] >= g.ny {
					continue
				}
				nIdx := n[1]*g.nx + n[0]
				if !seen[nIdx] && g.counts[nIdx] >= k {
					seen[nIdx] = true
					queue = append(queue, nIdx)
				}
			}
		}
		out = append(out, mask)
	}
	return out
}

type gridPt struct{ x, y int }

// traceOutline follows the cell edges between mask and its complement and
// returns the largest loop, which is the outer boundary, as a closed
// counter-clockwise ring in world coordinates.
func (g *coverageGrid) traceOutline(mask []bool) orb.Ring {
	in := func(i, j int) bool {
		return i >= 0 && i < g.nx && j >= 0 && j < g.ny && mask[j*g.nx+i]
	}
	edges := make(map[gridPt][]gridPt)
	for idx, ok := range mask {
		if !ok {
			continue
		}
		i, j := idx%g.nx, idx/g.nx
		if !in(i, j-1) {
			edges[gridPt{i, j}] = append(edges[gridPt{i, j}], gridPt{i + 1, j})
		}
		if !in(i+1, j) {
			edges[gridPt{i + 1, j}] = append(edges[gridPt{i + 1, j}], gridPt{i + 1, j + 1})
		}
		if !in(i, j+1) {
			edges[gridPt{i + 1, j + 1}] = append(edges[gridPt{i + 1, j + 1}], gridPt{i, j + 1})
		}
		if !in(i-1, j) {
			edges[gridPt{i, j + 1}] = append(edges[gridPt{i, j + 1}], gridPt{i, j})
		}
	}

	var best []orb.Point
	bestArea := 0.0
	for len(edges) > 0 {
		start := lowestGridPt(edges)
		loop := []orb.Point{g.corner(start)}
		cur := start
		var dir gridPt
		for {
			next := takeEdge(edges, cur, dir)
			if next == start {
				break
			}
			loop = append(loop, g.corner(next))
			dir = gridPt{next.x - cur.x, next.y - cur.y}
			cur = next
		}
		if a := signedArea(loop); a > bestArea {
			best, bestArea = loop, a
		}
	}
	if best == nil {
		return nil
	}
	return dropCollinear(closeRing(best))
}

func (g *coverageGrid) corner(p gridPt) orb.Point {
	return orb.Point{
		g.origin[0] + float64(p.x)*g.cell,
		g.origin[1] + float64(p.y)*g.cell,
	}
}

// lowestGridPt picks the bottom-most, then left-most edge start.
func lowestGridPt(edges map[gridPt][]gridPt) gridPt {
	first := true
	var best gridPt
	for p := range edges {
		if first || p.y < best.y || (p.y == best.y && p.x < best.x) {
			best, first = p, false
		}
	}
	return best
}

// takeEdge removes and returns the outgoing edge at cur that turns most to
// the left of the incoming direction, so diagonal pinch points keep the
// cells on either side apart.
func takeEdge(edges map[gridPt][]gridPt, cur, dir gridPt) gridPt {
	outs := edges[cur]
	pick := 0
	bestTurn := math.MinInt
	for k, o := range outs {
		turn := dir.x*(o.y-cur.y) - dir.y*(o.x-cur.x)
		if turn > bestTurn {
			pick, bestTurn = k, turn
		}
	}
	next := outs[pick]
	outs = append(outs[:pick], outs[pick+1:]...)
	if len(outs) == 0 {
		delete(edges, cur)
	} else {
		edges[cur] = outs
	}
	return next
}

func smoothRing(ring orb.Ring, smoothing Smoothing, cell float64) orb.Ring {
	switch smoothing {
	case SmoothSimplify:
		return simplify.DouglasPeucker(cell).Ring(ring)
	case SmoothRound:
		pts := openRing(ring)
		for k := 0; k < chaikinIterations; k++ {
			pts = chaikin(pts)
		}
		return closeRing(pts)
	default:
		return ring
	}
}

// chaikin cuts every corner of a closed outline at one and three quarters
// of each edge.
func chaikin(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, 2*len(pts))
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		out = append(out,
			orb.Point{0.75*p[0] + 0.25*q[0], 0.75*p[1] + 0.25*q[1]},
			orb.Point{0.25*p[0] + 0.75*q[0], 0.25*p[1] + 0.75*q[1]},
		)
	}
	return out
}
