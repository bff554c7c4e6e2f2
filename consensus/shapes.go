package consensus

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Shape is one of the closed set of annotation kinds the engine understands.
// Implementations live in this package only; callers obtain them through
// LookupShape.
type Shape interface {
	// Name is the tool-facing kind name, e.g. "rotateRectangle".
	Name() string
	// Params lists the parameter names in tuple order. Polygon kinds return nil.
	Params() []string
	// Normalize returns the canonical form of a parameter tuple. It never
	// changes the geometry and is idempotent.
	Normalize(params []float64) []float64

	isShape()
}

// boundClass selects the search interval used for one parameter when the
// IoU average is optimised.
type boundClass int

const (
	boundX boundClass = iota
	boundY
	boundWidth
	boundHeight
	boundSpan
	boundHalfSpan
	boundAngle
	boundTime
)

// paramShape is a fixed-arity kind described by a parameter tuple.
type paramShape struct {
	name   string
	params []string
	// period of the symmetry group for the angle parameter; 0 means the
	// kind has no rotational normalization.
	period float64
	// swapAxes orders ellipse axes so params[2] >= params[3].
	swapAxes bool
	// outline builds the convex region used by the IoU metric. Nil for
	// kinds that only support the Euclidean metric.
	outline func(p []float64) []orb.Point
	bounds  []boundClass
	timeIdx int
}

func (s *paramShape) Name() string { return s.name }

func (s *paramShape) Params() []string { return s.params }

func (s *paramShape) isShape() {}

func (s *paramShape) Normalize(params []float64) []float64 {
	out := append([]float64(nil), params...)
	if len(out) != len(s.params) {
		return out
	}
	idx := s.angleIndex()
	if s.swapAxes && out[3] > out[2] {
		out[2], out[3] = out[3], out[2]
		out[idx] += 90
	}
	if s.period > 0 && idx >= 0 {
		out[idx] = wrap(out[idx], s.period)
	}
	return out
}

// angleIndex returns the position of the first angle parameter or -1.
func (s *paramShape) angleIndex() int {
	for i, p := range s.params {
		if isAngleParam(p) {
			return i
		}
	}
	return -1
}

// supportsIoU reports whether the kind has a region for the IoU metric.
func (s *paramShape) supportsIoU() bool { return s.outline != nil }

// polygonShape is a free-form kind described by an ordered boundary.
type polygonShape struct {
	name string
}

func (s *polygonShape) Name() string { return s.name }

func (s *polygonShape) Params() []string { return nil }

func (s *polygonShape) isShape() {}

func (s *polygonShape) Normalize(params []float64) []float64 {
	return append([]float64(nil), params...)
}

func isAngleParam(name string) bool {
	return name == "angle" || name == "rotation"
}

// wrap maps v into [0, period).
func wrap(v, period float64) float64 {
	m := math.Mod(v, period)
	if m < 0 {
		m += period
	}
	if m >= period {
		m = 0
	}
	return m
}

var shapeTable = map[string]Shape{
	"point": &paramShape{
		name: "point", params: []string{"x", "y"}, timeIdx: -1,
	},
	"line": &paramShape{
		name: "line", params: []string{"x1", "y1", "x2", "y2"}, timeIdx: -1,
	},
	"rectangle": &paramShape{
		name:    "rectangle",
		params:  []string{"x", "y", "width", "height"},
		outline: rectangleOutline,
		bounds:  []boundClass{boundX, boundY, boundWidth, boundHeight},
		timeIdx: -1,
	},
	"rotateRectangle": &paramShape{
		name:    "rotateRectangle",
		params:  []string{"x", "y", "width", "height", "angle"},
		period:  180,
		outline: rotateRectangleOutline,
		bounds:  []boundClass{boundX, boundY, boundSpan, boundSpan, boundAngle},
		timeIdx: -1,
	},
	"circle": &paramShape{
		name:    "circle",
		params:  []string{"x", "y", "r"},
		outline: circleOutline,
		bounds:  []boundClass{boundX, boundY, boundHalfSpan},
		timeIdx: -1,
	},
	"ellipse": &paramShape{
		name:     "ellipse",
		params:   []string{"x", "y", "rx", "ry", "angle"},
		period:   180,
		swapAxes: true,
		outline:  ellipseOutline,
		bounds:   []boundClass{boundX, boundY, boundHalfSpan, boundHalfSpan, boundAngle},
		timeIdx:  -1,
	},
	"triangle": &paramShape{
		name:    "triangle",
		params:  []string{"x", "y", "r", "angle"},
		period:  120,
		outline: triangleOutline,
		bounds:  []boundClass{boundX, boundY, boundSpan, boundAngle},
		timeIdx: -1,
	},
	"fan": &paramShape{
		name: "fan", params: []string{"x", "y", "radius", "rotation", "spread"}, timeIdx: -1,
	},
	"column": &paramShape{
		name: "column", params: []string{"x", "width"}, timeIdx: -1,
	},
	"fullWidthLine": &paramShape{
		name: "fullWidthLine", params: []string{"y"}, timeIdx: -1,
	},
	"fullHeightLine": &paramShape{
		name: "fullHeightLine", params: []string{"x"}, timeIdx: -1,
	},
	"fullWidthRectangle": &paramShape{
		name: "fullWidthRectangle", params: []string{"y", "height"}, timeIdx: -1,
	},
	"fullHeightRectangle": &paramShape{
		name: "fullHeightRectangle", params: []string{"x", "width"}, timeIdx: -1,
	},
	"temporalPoint": &paramShape{
		name: "temporalPoint", params: []string{"x", "y", "displayTime"}, timeIdx: 2,
	},
	"temporalRotateRectangle": &paramShape{
		name:    "temporalRotateRectangle",
		params:  []string{"x_center", "y_center", "width", "height", "angle", "displayTime"},
		period:  180,
		outline: rotateRectangleOutline,
		bounds:  []boundClass{boundX, boundY, boundSpan, boundSpan, boundAngle, boundTime},
		timeIdx: 5,
	},
	"polygon":       &polygonShape{name: "polygon"},
	"freehandShape": &polygonShape{name: "freehandShape"},
}

// LookupShape resolves a kind name. Unknown names yield a *ConfigError.
func LookupShape(name string) (Shape, error) {
	s, ok := shapeTable[name]
	if !ok {
		return nil, configErrorf("shape", "unknown shape %q", name)
	}
	return s, nil
}

// ShapeNames lists every supported kind in sorted order.
func ShapeNames() []string {
	names := make([]string, 0, len(shapeTable))
	for n := range shapeTable {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsPolygonShape reports whether s is described by a boundary point list.
func IsPolygonShape(s Shape) bool {
	_, ok := s.(*polygonShape)
	return ok
}
