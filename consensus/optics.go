package consensus

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultXi is the default minimum steepness for OPTICS cluster edges.
const DefaultXi = 0.05

// OPTICS orders members by reachability and extracts clusters from steep
// areas of the reachability plot. MinClusterSize defaults to MinSamples
// when zero.
type OPTICS struct {
	MinSamples     int
	MinClusterSize int
	Xi             float64
}

func (c OPTICS) MinMembers() int { return max(2, c.MinSamples) }

func (c OPTICS) minClusterSize() int {
	if c.MinClusterSize > 0 {
		return c.MinClusterSize
	}
	return max(2, c.MinSamples)
}

func (c OPTICS) xi() float64 {
	if c.Xi > 0 {
		return c.Xi
	}
	return DefaultXi
}

func (c OPTICS) Cluster(dist *mat.SymDense) Labeling {
	if dist == nil {
		return Labeling{}
	}
	n := dist.SymmetricDim()
	if n < c.MinMembers() {
		return allNoise(n)
	}
	ordering, reach, pred := opticsOrdering(dist, c.MinSamples)
	plot := make([]float64, n+1)
	predPlot := make([]int, n)
	for k, p := range ordering {
		plot[k] = reach[p]
		predPlot[k] = pred[p]
	}
	plot[n] = math.Inf(1)
	x := xiExtractor{
		plot:       plot,
		pred:       predPlot,
		ordering:   ordering,
		complement: 1 - c.xi(),
		minSamples: max(1, c.MinSamples),
		minSize:    c.minClusterSize(),
	}
	return Labeling{Labels: x.labels(x.clusters())}
}

// opticsOrdering walks the members in order of smallest reachability and
// returns the ordering, reachability distances and predecessors.
func opticsOrdering(dist *mat.SymDense, minSamples int) (ordering []int, reach []float64, pred []int) {
	n := dist.SymmetricDim()
	core := coreDistances(dist, minSamples)
	reach = make([]float64, n)
	pred = make([]int, n)
	for i := range reach {
		reach[i] = math.Inf(1)
		pred[i] = -1
	}
	processed := make([]bool, n)
	ordering = make([]int, 0, n)
	for len(ordering) < n {
		p := -1
		for i := 0; i < n; i++ {
			if !processed[i] && (p < 0 || reach[i] < reach[p]) {
				p = i
			}
		}
		processed[p] = true
		ordering = append(ordering, p)
		if math.IsInf(core[p], 1) {
			continue
		}
		for q := 0; q < n; q++ {
			if processed[q] {
				continue
			}
			r := math.Max(dist.At(p, q), core[p])
			if r < reach[q] {
				reach[q], pred[q] = r, p
			}
		}
	}
	return ordering, reach, pred
}

type steepArea struct {
	start, end int
	mib        float64
}

type span struct{ start, end int }

// xiExtractor finds clusters as pairs of steep down and steep up areas in a
// reachability plot. plot carries a trailing +Inf sentinel.
type xiExtractor struct {
	plot       []float64
	pred       []int
	ordering   []int
	complement float64
	minSamples int
	minSize    int
}

func (x *xiExtractor) clusters() []span {
	n := len(x.plot) - 1
	steepUp := make([]bool, n)
	steepDown := make([]bool, n)
	up := make([]bool, n)
	down := make([]bool, n)
	for i := 0; i < n; i++ {
		ratio := x.plot[i] / x.plot[i+1]
		if math.IsNaN(ratio) {
			continue
		}
		steepUp[i] = ratio <= x.complement
		steepDown[i] = ratio >= 1/x.complement
		down[i] = ratio > 1
		up[i] = ratio < 1
	}

	var sdas []*steepArea
	var out []span
	index := 0
	mib := 0.0
	for steep := 0; steep < n; steep++ {
		if !steepUp[steep] && !steepDown[steep] {
			continue
		}
		if steep < index {
			continue
		}
		for k := index; k <= steep; k++ {
			mib = math.Max(mib, x.plot[k])
		}
		sdas = x.filterAreas(sdas, mib)
		if steepDown[steep] {
			end := x.extend(steepDown, up, steep)
			sdas = append(sdas, &steepArea{start: steep, end: end})
			index = end + 1
			mib = x.plot[index]
			continue
		}
		upStart := steep
		upEnd := x.extend(steepUp, down, upStart)
		index = upEnd + 1
		mib = x.plot[index]

		var found []span
		for _, d := range sdas {
			cStart, cEnd := d.start, upEnd
			if x.plot[cEnd+1]*x.complement < d.mib {
				continue
			}
			dMax := x.plot[d.start]
			if dMax*x.complement >= x.plot[cEnd+1] {
				for x.plot[cStart+1] > x.plot[cEnd+1] && cStart < d.end {
					cStart++
				}
			} else if x.plot[cEnd+1]*x.complement >= dMax {
				for cEnd > upStart && x.plot[cEnd-1] > dMax {
					cEnd--
				}
			}
			var ok bool
			cStart, cEnd, ok = x.correctPredecessor(cStart, cEnd)
			if !ok {
				continue
			}
			if cEnd-cStart+1 < x.minSize || cStart > d.end || cEnd < upStart {
				continue
			}
			found = append(found, span{cStart, cEnd})
		}
		for k := len(found) - 1; k >= 0; k-- {
			out = append(out, found[k])
		}
	}
	return out
}

// filterAreas drops steep down areas whose start is no longer high enough
// above mib and raises the mib of the rest.
func (x *xiExtractor) filterAreas(sdas []*steepArea, mib float64) []*steepArea {
	if math.IsInf(mib, 1) {
		return nil
	}
	var res []*steepArea
	for _, d := range sdas {
		if mib <= x.plot[d.start]*x.complement {
			d.mib = math.Max(d.mib, mib)
			res = append(res, d)
		}
	}
	return res
}

// extend grows a steep area while points stay steep or move in the same
// direction, tolerating up to minSamples consecutive flat points.
func (x *xiExtractor) extend(steep, sameWay []bool, start int) int {
	flat := 0
	end := start
	for i := start; i < len(steep); i++ {
		switch {
		case steep[i]:
			flat = 0
			end = i
		case !sameWay[i]:
			flat++
			if flat > x.minSamples {
				return end
			}
		default:
			return end
		}
	}
	return end
}

// correctPredecessor shrinks a candidate cluster from the right until its
// last point's predecessor lies inside it.
func (x *xiExtractor) correctPredecessor(s, e int) (int, int, bool) {
	for s < e {
		if x.plot[s] > x.plot[e] {
			return s, e, true
		}
		pe := x.pred[e]
		for i := s; i < e; i++ {
			if x.ordering[i] == pe {
				return s, e, true
			}
		}
		e--
	}
	return 0, 0, false
}

// labels assigns cluster indices to members, smaller clusters first, and
// maps them back from plot order to input order.
func (x *xiExtractor) labels(clusters []span) []int {
	plotLabels := make([]int, len(x.ordering))
	for i := range plotLabels {
		plotLabels[i] = Noise
	}
	label := 0
	for _, c := range clusters {
		free := true
		for k := c.start; k <= c.end; k++ {
			if plotLabels[k] != Noise {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for k := c.start; k <= c.end; k++ {
			plotLabels[k] = label
		}
		label++
	}
	out := make([]int, len(x.ordering))
	for k, p := range x.ordering {
		out[p] = plotLabels[k]
	}
	return out
}
