package consensus

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/tdewolff/canvas"
)

func renderFixture() *ToolResult {
	return &ToolResult{
		Tool:   "T0",
		Shape:  "rectangle",
		Metric: MetricIoU,
		Params: []string{"x", "y", "width", "height"},
		Values: [][]float64{{0, 0, 10, 10}, {1, 1, 10, 10}, {50, 50, 5, 5}},
		Labels: []int{0, 0, Noise},
		Clusters: []ClusterSummary{
			{Label: 0, Count: 2, Params: []float64{0.5, 0.5, 10, 10}},
		},
	}
}

func TestRenderer_RenderToSVG(t *testing.T) {
	r := NewRenderer(renderFixture())

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("Failed to render to SVG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("SVG output is empty")
	}
	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Errorf("Output does not contain <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Errorf("Output does not contain path elements")
	}
}

func TestRenderer_RenderToPNG(t *testing.T) {
	r := NewRenderer(renderFixture())
	r.Resolution = canvas.DPMM(1)

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("Failed to render to PNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	// 55 + 2*10 padding at one dot per unit
	if w := img.Bounds().Dx(); w < 74 || w > 76 {
		t.Errorf("width = %d, want about 75", w)
	}
}

func TestRenderer_Points(t *testing.T) {
	res := &ToolResult{
		Tool:     "T2",
		Shape:    "point",
		Metric:   MetricEuclidean,
		Params:   []string{"x", "y"},
		Values:   [][]float64{{1, 1}, {2, 2}},
		Labels:   []int{0, 0},
		Clusters: []ClusterSummary{{Label: 0, Count: 2, Params: []float64{1.5, 1.5}}},
	}
	var buf bytes.Buffer
	if err := NewRenderer(res).RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
}

func TestRenderer_Contours(t *testing.T) {
	res := &ToolResult{
		Tool:     "T0",
		Shape:    "polygon",
		Metric:   MetricIoU,
		Polygons: [][][2]float64{{{0, 0}, {4, 0}, {4, 4}}, {{1, 0}, {5, 0}, {5, 4}}},
		Labels:   []int{0, 0},
		Contours: []ContourCluster{{
			Label: 0,
			Count: 2,
			Contours: [][][][2]float64{
				{{{0, 0}, {5, 0}, {5, 4}, {4, 4}}},
				{{{1, 0}, {4, 0}, {4, 3}}},
			},
		}},
	}
	var buf bytes.Buffer
	if err := NewRenderer(res).RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
}

func TestRenderer_NothingToDraw(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer(nil).RenderToSVG(&buf); err == nil {
		t.Error("expected error for a nil result")
	}

	empty := &ToolResult{Tool: "T0", Shape: "point", Params: []string{"x", "y"}}
	if err := NewRenderer(empty).RenderToSVG(&buf); err == nil {
		t.Error("expected error for a result without marks")
	}

	unknown := &ToolResult{Tool: "T0", Shape: "hexagon", Labels: []int{0}}
	if err := NewRenderer(unknown).RenderToPNG(&buf); err == nil {
		t.Error("expected error for an unknown shape")
	}
}

func TestPalette(t *testing.T) {
	colors := palette(4)
	if len(colors) != 4 {
		t.Fatalf("len = %d, want 4", len(colors))
	}
	seen := map[[3]uint8]bool{}
	for _, c := range colors {
		if c.A != 255 {
			t.Errorf("alpha = %d, want 255", c.A)
		}
		seen[[3]uint8{c.R, c.G, c.B}] = true
	}
	if len(seen) != 4 {
		t.Errorf("palette colours are not distinct: %v", colors)
	}
	if got := withAlpha(colors[0], 0); got.R != 0 || got.A != 0 {
		t.Errorf("withAlpha(0) = %v, want transparent", got)
	}
}
