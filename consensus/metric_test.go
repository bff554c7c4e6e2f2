package consensus

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func TestEuclideanDistance(t *testing.T) {
	point := mustShape(t, "point")
	assert.InDelta(t, 5, EuclideanDistance(point, []float64{0, 0}, []float64{3, 4}), 1e-12)

	rr := mustShape(t, "rotateRectangle")
	d := EuclideanDistance(rr, []float64{0, 0, 1, 1, 355}, []float64{0, 0, 1, 1, 5})
	assert.InDelta(t, 10, d, 1e-9)
}

func TestAngleDiff(t *testing.T) {
	assert.InDelta(t, 20, angleDiff(350, 10), 1e-12)
	assert.InDelta(t, 180, angleDiff(0, 180), 1e-12)
	assert.InDelta(t, 1, angleDiff(-1, 0), 1e-12)
	assert.InDelta(t, 0, angleDiff(720, 0), 1e-12)
}

func TestIoUDistance_Rectangles(t *testing.T) {
	rect := mustShape(t, "rectangle")
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{0, 0, 2, 2}, []float64{0, 0, 2, 2}, 0},
		{"half overlap", []float64{0, 0, 2, 2}, []float64{1, 0, 2, 2}, 2.0 / 3},
		{"contained", []float64{0, 0, 4, 4}, []float64{1, 1, 2, 2}, 0.75},
		{"disjoint", []float64{0, 0, 1, 1}, []float64{5, 5, 1, 1}, 1},
		{"touching", []float64{0, 0, 1, 1}, []float64{1, 0, 1, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := IoUDistance(rect, tt.a, tt.b, 1)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d, 1e-9)
		})
	}
}

func TestIoUDistance_DegenerateIsInf(t *testing.T) {
	rect := mustShape(t, "rectangle")
	d, err := IoUDistance(rect, []float64{0, 0, 0, 0}, []float64{1, 1, 0, 0}, 1)
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1))

	d, err = IoUDistance(rect, []float64{0, 0, 0, 0}, []float64{0, 0, 0, 0}, 1)
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1), "identical zero-area shapes must not overlap")
}

func TestIoUDistance_Temporal(t *testing.T) {
	trr := mustShape(t, "temporalRotateRectangle")
	a := []float64{5, 5, 2, 2, 0, 0}

	d, err := IoUDistance(trr, a, []float64{5, 5, 2, 2, 0, 0.5}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, d, 1e-9)

	d, err = IoUDistance(trr, a, []float64{5, 5, 2, 2, 0, 1.5}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-9)
}

func TestNewIoUMetric_Unsupported(t *testing.T) {
	for _, name := range []string{"point", "line", "temporalPoint", "polygon"} {
		_, err := NewIoUMetric(mustShape(t, name), nil, nil, 1)
		require.Error(t, err, name)
		assert.True(t, IsConfigError(err), name)
	}
	_, err := NewIoUMetric(mustShape(t, "temporalRotateRectangle"), nil, nil, 0)
	assert.True(t, IsConfigError(err))
}

func TestIoUMetric_SymmetricAndGuarded(t *testing.T) {
	rr := mustShape(t, "rotateRectangle")
	values := [][]float64{
		{0, 0, 4, 2, 0},
		{0.5, 0.2, 4, 2, 20},
		{1, -0.5, 3, 3, 45},
		{0.2, 0.1, 5, 1, 170},
		{0.3, 0, 4, 2, 10},
	}
	users := []string{"ann", "bob", "cy", "dee", "ann"}
	m, err := NewIoUMetric(rr, values, users, 1)
	require.NoError(t, err)

	for i := range values {
		assert.Equal(t, 0.0, m.Distance(i, i))
		for j := range values {
			if i == j {
				continue
			}
			dij, dji := m.Distance(i, j), m.Distance(j, i)
			if users[i] == users[j] {
				assert.True(t, math.IsInf(dij, 1), "same submitter %d,%d", i, j)
				continue
			}
			assert.InDelta(t, dij, dji, 1e-9, "asymmetric %d,%d", i, j)
			assert.GreaterOrEqual(t, dij, 0.0)
			assert.LessOrEqual(t, dij, 1.0)
		}
	}
}

func TestIoUMetric_Cache(t *testing.T) {
	circle := mustShape(t, "circle")
	values := [][]float64{{0, 0, 1}, {0.5, 0, 1}, {0, 0.5, 1}}
	m, err := NewIoUMetric(circle, values, nil, 1)
	require.NoError(t, err)
	cache := newGeomCache(8)
	m.withCache(cache)

	first := DistanceMatrix(m)
	second := DistanceMatrix(m)
	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, 3, cache.misses)
	assert.Equal(t, 9, cache.hits)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, first.At(i, j), second.At(i, j))
		}
	}
}

func TestGeomCache_Bounded(t *testing.T) {
	rect := shapeTable["rectangle"].(*paramShape)
	cache := newGeomCache(2)
	for i := 0; i < 5; i++ {
		cache.region(rect, []float64{float64(i), 0, 1, 1})
	}
	assert.Equal(t, 2, cache.Len())

	var nilCache *geomCache
	r := nilCache.region(rect, []float64{0, 0, 2, 3})
	assert.InDelta(t, 6, r.area, 1e-12)
}

func TestDistanceMatrix_Empty(t *testing.T) {
	assert.Nil(t, DistanceMatrix(NewEuclideanMetric(mustShape(t, "point"), nil)))
}

func TestPolygonMetric(t *testing.T) {
	bowtie := orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}
	polys := []orb.Polygon{
		square(0, 0, 2),
		square(1, 0, 2),
		square(10, 10, 1),
		bowtie,
		square(0.5, 0.5, 1),
		square(0.2, 0.2, 1),
	}
	users := []string{"a", "b", "c", "d", "e", "a"}
	m := NewPolygonMetric(polys, users)

	assert.InDelta(t, 2.0/3, m.Distance(0, 1), 1e-6)
	assert.InDelta(t, 2.0/3, m.Distance(1, 0), 1e-6)
	assert.Equal(t, 1.0, m.Distance(0, 2), "disjoint")
	assert.Equal(t, 1.0, m.Distance(0, 3), "self-intersecting")
	assert.True(t, math.IsInf(m.Distance(0, 5), 1), "same submitter")
	assert.InDelta(t, 0.75, m.Distance(0, 4), 1e-6)
	assert.Equal(t, 0.0, m.Distance(2, 2))
}

var posInf = math.Inf(1)

func isPosInf(v float64) bool { return math.IsInf(v, 1) }
