package consensus

import (
	"log"
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	optimizerEvaluations = 4000
	optimizerSimplex     = 0.1
	optimizerStepSize    = 0.25
	// optimizerSeed keeps the global search reproducible between runs.
	optimizerSeed = 0x6d61726b
)

// EuclideanSummary is the average of a point-like cluster and its spread.
// Variance entries are nil when they are undefined (fewer than two
// members).
type EuclideanSummary struct {
	Mean         []float64
	Variance     []*float64
	CovarianceXY *float64
}

// EuclideanAverage averages each parameter arithmetically, except angle
// parameters, which use the circular mean wrapped into [0, 360).
func EuclideanAverage(s Shape, members [][]float64) EuclideanSummary {
	names := s.Params()
	sum := EuclideanSummary{
		Mean:     make([]float64, len(names)),
		Variance: make([]*float64, len(names)),
	}
	if len(members) == 0 {
		return sum
	}
	cols := make([][]float64, len(names))
	for k := range names {
		cols[k] = make([]float64, len(members))
		for i, m := range members {
			cols[k][i] = m[k]
		}
	}
	xIdx, yIdx := -1, -1
	for k, name := range names {
		switch name {
		case "x":
			xIdx = k
		case "y":
			yIdx = k
		}
		if isAngleParam(name) {
			rad := make([]float64, len(members))
			for i, v := range cols[k] {
				rad[i] = v * math.Pi / 180
			}
			sum.Mean[k] = wrap(stat.CircularMean(rad, nil)*180/math.Pi, 360)
			if len(members) > 1 {
				ss := 0.0
				for _, v := range cols[k] {
					d := angleDiff(v, sum.Mean[k])
					ss += d * d
				}
				v := ss / float64(len(members)-1)
				sum.Variance[k] = &v
			}
			continue
		}
		sum.Mean[k] = stat.Mean(cols[k], nil)
		if len(members) > 1 {
			v := stat.Variance(cols[k], nil)
			sum.Variance[k] = &v
		}
	}
	if xIdx >= 0 && yIdx >= 0 && len(members) > 1 {
		c := stat.Covariance(cols[xIdx], cols[yIdx], nil)
		sum.CovarianceXY = &c
	}
	return sum
}

// IoUSummary is the representative of an overlap cluster. Sigma is nil for
// a single member.
type IoUSummary struct {
	Params []float64
	Sigma  *float64
}

// IoUAverage finds the tuple minimising the summed squared distance to the
// members. With exact false the best member (the medoid) is returned
// instead of searching.
func IoUAverage(s Shape, members [][]float64, epsT float64, exact bool) (IoUSummary, error) {
	m, err := NewIoUMetric(s, members, nil, epsT)
	if err != nil {
		return IoUSummary{}, err
	}
	return m.average(exact), nil
}

func (m *IoUMetric) average(exact bool) IoUSummary {
	members := m.values
	if len(members) == 0 {
		return IoUSummary{}
	}
	loss := func(cand []float64) float64 {
		total := 0.0
		for _, mem := range members {
			d := m.between(cand, mem)
			if math.IsInf(d, 1) {
				d = 1
			}
			total += d * d
		}
		return total
	}

	medoid := members[0]
	best := math.Inf(1)
	for _, cand := range members {
		if f := loss(cand); f < best {
			medoid, best = cand, f
		}
	}
	params := m.shape.Normalize(medoid)
	if exact && len(members) > 1 {
		mean := EuclideanAverage(m.shape, members).Mean
		params, best = m.search(loss, [][]float64{mean, medoid}, params, best)
	}
	out := IoUSummary{Params: params}
	if n := len(members); n > 1 {
		sigma := math.Sqrt(best / float64(n-1))
		out.Sigma = &sigma
	}
	return out
}

// search runs a local Nelder-Mead descent from each start and a global
// CMA-ES pass from the best local result, all over the unit cube mapped
// onto the shape's parameter bounds.
func (m *IoUMetric) search(loss func([]float64) float64, starts [][]float64, best []float64, bestF float64) ([]float64, float64) {
	lo, hi := m.searchBounds()
	toParams := func(u []float64) []float64 {
		p := make([]float64, len(u))
		for k := range u {
			p[k] = lo[k] + clamp(u[k], 0, 1)*(hi[k]-lo[k])
		}
		return p
	}
	toUnit := func(p []float64) []float64 {
		u := make([]float64, len(p))
		for k := range p {
			if hi[k] > lo[k] {
				u[k] = clamp((p[k]-lo[k])/(hi[k]-lo[k]), 0, 1)
			} else {
				u[k] = 0.5
			}
		}
		return u
	}
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			penalty := 0.0
			for _, v := range u {
				d := v - clamp(v, 0, 1)
				penalty += d * d
			}
			return loss(toParams(u)) + penalty
		},
	}
	settings := func() *optimize.Settings {
		return &optimize.Settings{
			FuncEvaluations: optimizerEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-9,
				Relative:   1e-9,
				Iterations: 50,
			},
		}
	}

	bestU := toUnit(best)
	consider := func(res *optimize.Result, err error, method string) {
		if res == nil {
			log.Printf("%s average: %s search failed: %v", m.shape.name, method, err)
			return
		}
		if res.F < bestF {
			bestF = res.F
			bestU = append([]float64(nil), res.X...)
			best = toParams(bestU)
		}
	}
	for _, start := range starts {
		res, err := optimize.Minimize(problem, toUnit(start), settings(), &optimize.NelderMead{SimplexSize: optimizerSimplex})
		consider(res, err, "nelder-mead")
	}
	cma := &optimize.CmaEsChol{
		InitStepSize: optimizerStepSize,
		Src:          rand.NewPCG(optimizerSeed, uint64(len(m.values))),
	}
	res, err := optimize.Minimize(problem, append([]float64(nil), bestU...), settings(), cma)
	consider(res, err, "cma-es")

	return m.shape.Normalize(best), loss(best)
}

// searchBounds returns the interval searched for each parameter: positions
// within the members' union bounds, sizes up to the bounds diagonal, angles
// over the symmetry period and display times over the observed range.
func (m *IoUMetric) searchBounds() (lo, hi []float64) {
	var bound orb.Bound
	for i, mem := range m.values {
		b := m.cache.region(m.shape, mem).bound
		if i == 0 {
			bound = b
		} else {
			bound = bound.Union(b)
		}
	}
	w, h := bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]
	diag := math.Hypot(w, h)
	n := len(m.shape.params)
	lo, hi = make([]float64, n), make([]float64, n)
	for k, class := range m.shape.bounds {
		switch class {
		case boundX:
			lo[k], hi[k] = bound.Min[0], bound.Max[0]
		case boundY:
			lo[k], hi[k] = bound.Min[1], bound.Max[1]
		case boundWidth:
			hi[k] = w
		case boundHeight:
			hi[k] = h
		case boundSpan:
			hi[k] = diag
		case boundHalfSpan:
			hi[k] = diag / 2
		case boundAngle:
			hi[k] = m.shape.period
		case boundTime:
			lo[k], hi[k] = math.Inf(1), math.Inf(-1)
			for _, mem := range m.values {
				lo[k] = math.Min(lo[k], mem[k])
				hi[k] = math.Max(hi[k], mem[k])
			}
		}
	}
	return lo, hi
}
