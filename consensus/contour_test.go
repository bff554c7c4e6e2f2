package consensus

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelAreas(levels [][]orb.Polygon) []float64 {
	out := make([]float64, len(levels))
	for i, level := range levels {
		for _, p := range level {
			out[i] += planar.Area(p)
		}
	}
	return out
}

func staircase() []orb.Polygon {
	return []orb.Polygon{square(0, 0, 2), square(1, 0, 2), square(0.5, 0, 2)}
}

func TestExactContours(t *testing.T) {
	levels, truncated := ExactContours(staircase())
	assert.False(t, truncated)
	require.Len(t, levels, 3)
	for i, level := range levels {
		assert.Len(t, level, 1, "level %d", i)
	}
	assert.InDeltaSlice(t, []float64{6, 4, 2}, levelAreas(levels), 1e-6)
}

func TestExactContours_DisjointMembers(t *testing.T) {
	levels, _ := ExactContours([]orb.Polygon{square(0, 0, 1), square(5, 0, 1)})
	require.Len(t, levels, 1)
	assert.Len(t, levels[0], 2)
}

func TestExactContours_SkipsSelfIntersecting(t *testing.T) {
	bowtie := orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}
	levels, _ := ExactContours([]orb.Polygon{square(0, 0, 2), bowtie})
	require.Len(t, levels, 1)
	assert.InDeltaSlice(t, []float64{4}, levelAreas(levels), 1e-6)
}

func TestRasterContours(t *testing.T) {
	levels := RasterContours(staircase(), 128, SmoothNone)
	require.Len(t, levels, 3)
	for i, level := range levels {
		require.Len(t, level, 1, "level %d", i)
	}
	assert.InDeltaSlice(t, []float64{6, 4, 2}, levelAreas(levels), 0.1)
}

func TestRasterContours_Smoothing(t *testing.T) {
	simplified := RasterContours(staircase(), 64, SmoothSimplify)
	require.Len(t, simplified, 3)
	assert.InDeltaSlice(t, []float64{6, 4, 2}, levelAreas(simplified), 0.25)
	for _, level := range simplified {
		assert.Len(t, level[0][0], 5, "rectangles keep only their corners")
	}

	plain := levelAreas(RasterContours(staircase(), 64, SmoothNone))
	rounded := levelAreas(RasterContours(staircase(), 64, SmoothRound))
	require.Len(t, rounded, 3)
	for i := range rounded {
		assert.Less(t, rounded[i], plain[i], "corner cutting shrinks level %d", i)
		assert.Greater(t, rounded[i], 0.5*plain[i])
	}
}

func TestRasterContours_Degenerate(t *testing.T) {
	assert.Nil(t, RasterContours(nil, 16, SmoothNone))
	assert.Nil(t, RasterContours([]orb.Polygon{{{{1, 1}, {1, 1}, {1, 1}, {1, 1}}}}, 16, SmoothNone))
}

func TestChaikin(t *testing.T) {
	out := chaikin([]orb.Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}})
	require.Len(t, out, 8)
	assert.Equal(t, orb.Point{1, 0}, out[0])
	assert.Equal(t, orb.Point{3, 0}, out[1])
}

func TestBuildContours_Methods(t *testing.T) {
	members := staircase()
	dist := DistanceMatrix(NewPolygonMetric(members, nil))
	index := []int{0, 1, 2}

	exact := BuildContours(members, dist, index, ContourOptions{Method: ContourExact, GridResolution: 64})
	approx := BuildContours(members, dist, index, ContourOptions{Method: ContourApproximate, GridResolution: 64})
	auto := BuildContours(members, dist, index, ContourOptions{Method: ContourAuto, ApproxThreshold: 2, GridResolution: 64})

	assert.InDeltaSlice(t, []float64{6, 4, 2}, levelAreas(exact.Levels), 1e-6)
	assert.InDeltaSlice(t, []float64{6, 4, 2}, levelAreas(approx.Levels), 0.2)
	assert.Equal(t, approx.Levels, auto.Levels, "auto switches to raster above the threshold")

	want := 1 - (dist.At(0, 1)+dist.At(0, 2)+dist.At(1, 2))/3
	assert.InDelta(t, want, exact.Score, 1e-12)
	assert.Greater(t, exact.Score, 0.0)
}

func TestBuildContours_Truncated(t *testing.T) {
	members := chain()
	dist := DistanceMatrix(NewPolygonMetric(members, nil))
	opts := ContourOptions{Method: ContourExact}

	set := BuildContours(members, dist, []int{0, 1, 2}, opts)
	assert.False(t, set.Truncated)

	lowerUnifyPasses(t, 1)
	set = BuildContours(members, dist, []int{0, 1, 2}, opts)
	assert.True(t, set.Truncated)
	require.NotEmpty(t, set.Levels)
	require.Len(t, set.Levels[0], 1)
	assert.InDelta(t, 7, planar.Area(set.Levels[0][0]), 1e-6)
}

func TestConsensusScore_Single(t *testing.T) {
	dist := DistanceMatrix(NewPolygonMetric([]orb.Polygon{square(0, 0, 1)}, nil))
	assert.Equal(t, 0.0, consensusScore(dist, []int{0}))
}
