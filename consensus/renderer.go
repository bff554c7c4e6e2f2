package consensus

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// noiseColor is used for members labelled as noise.
var noiseColor = color.RGBA{160, 160, 160, 255}

// Renderer draws one tool result: every member coloured by cluster, then
// the cluster representatives or agreement contours on top.
type Renderer struct {
	Result      *ToolResult
	Padding     float64
	StrokeWidth float64
	MarkerSize  float64
	Resolution  canvas.Resolution // Resolution for PNG output (default: 96 DPI)
}

// NewRenderer creates a renderer with defaults suited to pixel coordinates.
func NewRenderer(res *ToolResult) *Renderer {
	return &Renderer{
		Result:      res,
		Padding:     10,
		StrokeWidth: 1,
		MarkerSize:  3,
		Resolution:  canvas.DPI(96),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the result as an SVG to the provided writer
func (r *Renderer) RenderToSVG(w io.Writer) error {
	scene, err := r.scene()
	if err != nil {
		return err
	}
	svgRenderer := svg.New(w, scene.width, scene.height, nil)
	r.draw(svgRenderer, scene)
	return svgRenderer.Close()
}

// RenderToPNG writes the result as a PNG to the provided writer
func (r *Renderer) RenderToPNG(w io.Writer) error {
	scene, err := r.scene()
	if err != nil {
		return err
	}
	rast := rasterizer.New(scene.width, scene.height, r.Resolution, canvas.DefaultColorSpace)
	r.draw(rast, scene)
	return png.Encode(w, rast)
}

// scene holds the marks of a result in world coordinates.
type scene struct {
	members []mark
	summary []mark
	// levels[c][i] are the level i outlines of contour cluster c.
	levels        [][][]orb.Ring
	bound         orb.Bound
	width, height float64
}

type mark struct {
	label int
	rings []orb.Ring
	// open marks are drawn as polylines.
	open   bool
	points []orb.Point
}

func (r *Renderer) scene() (*scene, error) {
	res := r.Result
	if res == nil {
		return nil, fmt.Errorf("nothing to render")
	}
	shape, err := LookupShape(res.Shape)
	if err != nil {
		return nil, err
	}

	s := &scene{}
	for i, label := range res.Labels {
		var m mark
		if i < len(res.Polygons) {
			m = polygonMark(res.Polygons[i])
		} else if i < len(res.Values) {
			m = paramMark(shape, res.Values[i])
		}
		m.label = label
		s.members = append(s.members, m)
	}
	for _, c := range res.Clusters {
		var m mark
		switch {
		case c.Polygon != nil:
			m = polygonMark(c.Polygon)
		case c.Params != nil:
			m = paramMark(shape, c.Params)
		}
		m.label = c.Label
		s.summary = append(s.summary, m)
	}
	for _, c := range res.Contours {
		levels := make([][]orb.Ring, len(c.Contours))
		for i, level := range c.Contours {
			for _, poly := range level {
				levels[i] = append(levels[i], polygonMark(poly).rings...)
			}
		}
		s.levels = append(s.levels, levels)
	}

	first := true
	extend := func(pts []orb.Point) {
		for _, pt := range pts {
			if first {
				s.bound = orb.Bound{Min: pt, Max: pt}
				first = false
				continue
			}
			s.bound = s.bound.Extend(pt)
		}
	}
	for _, m := range append(append([]mark{}, s.members...), s.summary...) {
		for _, ring := range m.rings {
			extend(ring)
		}
		extend(m.points)
	}
	if first {
		return nil, fmt.Errorf("tool %s has no drawable marks", res.Tool)
	}
	s.width = s.bound.Right() - s.bound.Left() + 2*r.Padding
	s.height = s.bound.Top() - s.bound.Bottom() + 2*r.Padding
	return s, nil
}

func polygonMark(pts [][2]float64) mark {
	ring := make(orb.Ring, len(pts))
	for i, p := range pts {
		ring[i] = orb.Point(p)
	}
	return mark{rings: []orb.Ring{ring}}
}

// paramMark draws a parameterised mark: its outline when the kind has
// one, a line segment for lines, and a point marker otherwise.
func paramMark(s Shape, params []float64) mark {
	ps, ok := s.(*paramShape)
	if !ok {
		return mark{}
	}
	if ps.outline != nil {
		return mark{rings: []orb.Ring{newRegion(ps.outline(params)).ring()}}
	}
	idx := make(map[string]int, len(ps.params))
	for i, name := range ps.params {
		idx[name] = i
	}
	if _, ok := idx["x1"]; ok {
		seg := orb.Ring{{params[idx["x1"]], params[idx["y1"]]}, {params[idx["x2"]], params[idx["y2"]]}}
		return mark{rings: []orb.Ring{seg}, open: true}
	}
	x, hasX := idx["x"]
	y, hasY := idx["y"]
	if hasX && hasY {
		return mark{points: []orb.Point{{params[x], params[y]}}}
	}
	return mark{}
}

// palette returns n evenly spaced cluster colours.
func palette(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		c := colorful.Hsv(360*float64(i)/float64(max(n, 1)), 0.7, 0.85)
		r, g, b := c.RGB255()
		out[i] = color.RGBA{r, g, b, 255}
	}
	return out
}

// withAlpha returns c at opacity a, premultiplied as canvas expects.
func withAlpha(c color.RGBA, a uint8) color.RGBA {
	scale := func(v uint8) uint8 { return uint8(uint16(v) * uint16(a) / 255) }
	return color.RGBA{scale(c.R), scale(c.G), scale(c.B), a}
}

func (r *Renderer) draw(renderer canvasRenderer, s *scene) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(s.width, s.height), bgStyle, canvas.Identity)

	// Image coordinates grow downwards, canvas coordinates upwards.
	toCanvas := func(p orb.Point) orb.Point {
		return orb.Point{p[0] - s.bound.Left() + r.Padding, s.bound.Top() - p[1] + r.Padding}
	}
	clusters := 0
	for _, m := range s.members {
		clusters = max(clusters, m.label+1)
	}
	colors := palette(clusters)
	colorOf := func(label int) color.RGBA {
		if label < 0 || label >= len(colors) {
			return noiseColor
		}
		return colors[label]
	}

	for _, m := range s.members {
		c := colorOf(m.label)
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: withAlpha(c, 48)}
		style.Stroke = canvas.Paint{Color: c}
		style.StrokeWidth = r.StrokeWidth
		r.drawMark(renderer, m, style, toCanvas)
	}

	for c, levels := range s.levels {
		base := colorOf(c)
		for i, rings := range levels {
			alpha := uint8(40 + 180*(i+1)/len(levels))
			style := canvas.DefaultStyle
			style.Fill = canvas.Paint{Color: withAlpha(base, alpha)}
			style.Stroke = canvas.Paint{Color: canvas.Black}
			style.StrokeWidth = r.StrokeWidth / 2
			for _, ring := range rings {
				r.drawMark(renderer, mark{rings: []orb.Ring{ring}}, style, toCanvas)
			}
		}
	}

	for _, m := range s.summary {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: canvas.Transparent}
		style.Stroke = canvas.Paint{Color: canvas.Black}
		style.StrokeWidth = 2 * r.StrokeWidth
		if len(m.points) > 0 {
			style.Fill = canvas.Paint{Color: colorOf(m.label)}
		}
		r.drawMark(renderer, m, style, toCanvas)
	}
}

func (r *Renderer) drawMark(renderer canvasRenderer, m mark, style canvas.Style, toCanvas func(orb.Point) orb.Point) {
	for _, ring := range m.rings {
		if m.open {
			if len(ring) < 2 {
				continue
			}
			p := &canvas.Path{}
			start := toCanvas(ring[0])
			p.MoveTo(start[0], start[1])
			for _, pt := range ring[1:] {
				c := toCanvas(pt)
				p.LineTo(c[0], c[1])
			}
			lineStyle := style
			lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
			renderer.RenderPath(p, lineStyle, canvas.Identity)
			continue
		}
		moved := make(orb.Ring, len(ring))
		for i, pt := range ring {
			moved[i] = toCanvas(pt)
		}
		p := &canvas.Path{}
		ringPath(p, moved)
		if !p.Empty() {
			renderer.RenderPath(p, style, canvas.Identity)
		}
	}
	for _, pt := range m.points {
		c := toCanvas(pt)
		renderer.RenderPath(canvas.Circle(r.MarkerSize), style, canvas.Identity.Translate(c[0], c[1]))
	}
}
