package consensus

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tdewolff/canvas"
	"gonum.org/v1/gonum/mat"
)

// Metric is a symmetric distance over the members of one group. Distances
// are in [0, 1] for overlap metrics, non-negative for the Euclidean metric,
// and +Inf for pairs that must never share a cluster.
type Metric interface {
	Len() int
	Distance(i, j int) float64
}

// DistanceMatrix evaluates m for every pair once. It returns nil for an
// empty group.
func DistanceMatrix(m Metric) *mat.SymDense {
	n := m.Len()
	if n == 0 {
		return nil
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, m.Distance(i, j))
		}
	}
	return d
}

// EuclideanDistance compares two parameter tuples of the same kind. Angle
// parameters contribute their shortest angular difference.
func EuclideanDistance(s Shape, a, b []float64) float64 {
	names := s.Params()
	sum := 0.0
	for k := range a {
		d := a[k] - b[k]
		if k < len(names) && isAngleParam(names[k]) {
			d = angleDiff(a[k], b[k])
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

// angleDiff is the unsigned shortest difference between two angles in
// degrees.
func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}

// EuclideanMetric is the distance used for point-like kinds.
type EuclideanMetric struct {
	shape  Shape
	values [][]float64
}

// NewEuclideanMetric wraps values, which must already be normalized when
// symmetric comparison is wanted.
func NewEuclideanMetric(s Shape, values [][]float64) *EuclideanMetric {
	return &EuclideanMetric{shape: s, values: values}
}

func (m *EuclideanMetric) Len() int { return len(m.values) }

func (m *EuclideanMetric) Distance(i, j int) float64 {
	if i == j {
		return 0
	}
	return EuclideanDistance(m.shape, m.values[i], m.values[j])
}

// IoUMetric is 1 - intersection over union of the regions described by
// two parameter tuples. Kinds with a displayTime parameter use the
// temporal form with a time box of half-width epsT.
type IoUMetric struct {
	shape  *paramShape
	values [][]float64
	users  []string
	epsT   float64
	cache  *geomCache
}

// NewIoUMetric validates that s has a region and returns the metric. users
// may be nil.
func NewIoUMetric(s Shape, values [][]float64, users []string, epsT float64) (*IoUMetric, error) {
	ps, ok := s.(*paramShape)
	if !ok || !ps.supportsIoU() {
		return nil, configErrorf("metric_type", "IoU metric does not support shape %q", s.Name())
	}
	if ps.timeIdx >= 0 && epsT <= 0 {
		return nil, configErrorf("eps_t", "eps_t must be positive for %s, got %v", s.Name(), epsT)
	}
	return &IoUMetric{shape: ps, values: values, users: users, epsT: epsT}, nil
}

func (m *IoUMetric) withCache(c *geomCache) *IoUMetric {
	m.cache = c
	return m
}

func (m *IoUMetric) Len() int { return len(m.values) }

func (m *IoUMetric) Distance(i, j int) float64 {
	if i == j {
		return 0
	}
	if sameUser(m.users, i, j) {
		return math.Inf(1)
	}
	return m.between(m.values[i], m.values[j])
}

// between compares two tuples without the submitter guard.
func (m *IoUMetric) between(a, b []float64) float64 {
	ra := m.cache.region(m.shape, a)
	rb := m.cache.region(m.shape, b)
	if ra.area+rb.area == 0 {
		return math.Inf(1)
	}
	if equalParams(a, b) {
		return 0
	}
	inter := intersectionArea(ra, rb)
	if m.shape.timeIdx < 0 {
		return overlapDistance(inter, ra.area+rb.area-inter)
	}
	t := m.shape.timeIdx
	overlap := math.Max(0, m.epsT-math.Abs(a[t]-b[t]))
	shared := inter * overlap
	return overlapDistance(shared, ra.area*m.epsT+rb.area*m.epsT-shared)
}

// IoUDistance compares two tuples of an IoU-capable kind without a
// submitter guard.
func IoUDistance(s Shape, a, b []float64, epsT float64) (float64, error) {
	m, err := NewIoUMetric(s, nil, nil, epsT)
	if err != nil {
		return 0, err
	}
	return m.between(a, b), nil
}

func overlapDistance(inter, union float64) float64 {
	if union <= 0 {
		return math.Inf(1)
	}
	return clamp(1-inter/union, 0, 1)
}

func sameUser(users []string, i, j int) bool {
	return users != nil && users[i] != "" && users[i] == users[j]
}

func equalParams(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// PolygonMetric is 1 - intersection over union for free-form polygons,
// computed with path boolean operations.
type PolygonMetric struct {
	polygons []orb.Polygon
	paths    []*canvas.Path
	simple   []bool
	areas    []float64
	bounds   []orb.Bound
	users    []string
}

// NewPolygonMetric prepares the shared polygon array. users may be nil.
func NewPolygonMetric(polygons []orb.Polygon, users []string) *PolygonMetric {
	m := &PolygonMetric{
		polygons: polygons,
		paths:    make([]*canvas.Path, len(polygons)),
		simple:   make([]bool, len(polygons)),
		areas:    make([]float64, len(polygons)),
		bounds:   make([]orb.Bound, len(polygons)),
		users:    users,
	}
	for i, p := range polygons {
		m.simple[i] = isSimplePolygon(p)
		if !m.simple[i] {
			continue
		}
		m.paths[i] = polygonPath(p)
		m.areas[i] = planar.Area(p)
		m.bounds[i] = p.Bound()
	}
	return m
}

func (m *PolygonMetric) Len() int { return len(m.polygons) }

func (m *PolygonMetric) Distance(i, j int) float64 {
	if i == j {
		return 0
	}
	if sameUser(m.users, i, j) {
		return math.Inf(1)
	}
	if !m.simple[i] || !m.simple[j] || !m.bounds[i].Intersects(m.bounds[j]) {
		return 1
	}
	inter := pathArea(pathAnd(m.paths[i], m.paths[j]))
	return overlapDistance(inter, m.areas[i]+m.areas[j]-inter)
}
