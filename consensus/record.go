package consensus

import (
	"encoding/json"
)

// ConsensusRecord is the result of one Reduce call, keyed by frame and
// then by tool.
type ConsensusRecord struct {
	Frames map[string]map[string]*ToolResult
}

// ToolResult is the consensus for one (frame, tool) group.
type ToolResult struct {
	Tool   string
	Shape  string
	Metric MetricType
	Params []string

	// Raw members in input order, with their cluster labels.
	Values        [][]float64
	Polygons      [][][2]float64
	Labels        []int
	Probabilities []float64

	Clusters []ClusterSummary
	Contours []ContourCluster
	// Details holds, per cluster, one sub-reducer result per subtask. A
	// skipped subtask is nil.
	Details [][]map[string]any
}

// ClusterSummary describes one non-noise cluster.
type ClusterSummary struct {
	Label int
	Count int
	// Params is the representative in shape parameter order.
	Params []float64
	// Sigma is the IoU spread, nil for a single member.
	Sigma *float64
	// Variance and CovarianceXY are the Euclidean spread, nil entries when
	// undefined.
	Variance     []*float64
	CovarianceXY *float64
	Persistence  *float64
	// Polygon is the representative outline in polygon mode.
	Polygon [][2]float64
}

// ContourCluster is the contour-mode summary of one polygon cluster.
// Contours[i] lists the outlines covered by at least i+1 members.
type ContourCluster struct {
	Label          int              `json:"label"`
	Count          int              `json:"count"`
	Contours       [][][][2]float64 `json:"contours"`
	ConsensusScore float64          `json:"consensus_score"`
	Truncated      bool             `json:"truncated"`
}

// MarshalJSON writes the flattened per-frame form.
func (r *ConsensusRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

// Flatten merges every tool result of each frame into one flat map.
func (r *ConsensusRecord) Flatten() map[string]map[string]any {
	out := make(map[string]map[string]any, len(r.Frames))
	for frame, tools := range r.Frames {
		flat := make(map[string]any)
		for _, res := range tools {
			for k, v := range res.Flatten() {
				flat[k] = v
			}
		}
		out[frame] = flat
	}
	return out
}

// Flatten returns the tool's keys, each prefixed with the tool name.
func (t *ToolResult) Flatten() map[string]any {
	p := t.Tool + "_"
	out := map[string]any{
		p + "cluster_labels": nonNilInts(t.Labels),
	}
	if t.Polygons != nil {
		out[p+t.Shape+"_points"] = t.Polygons
	}
	for k, name := range t.Params {
		col := make([]float64, len(t.Values))
		for i, v := range t.Values {
			col[i] = v[k]
		}
		out[p+t.Shape+"_"+name] = col
	}
	if t.Probabilities != nil {
		out[p+"cluster_probabilities"] = t.Probabilities
	}

	if t.Contours != nil {
		out[p+"contours"] = t.Contours
	} else {
		counts := make([]int, len(t.Clusters))
		for c, cl := range t.Clusters {
			counts[c] = cl.Count
		}
		out[p+"clusters_count"] = counts
		t.flattenClusters(p, out)
	}
	if t.Details != nil {
		out[p+"details_clusters"] = t.Details
	}
	return out
}

func (t *ToolResult) flattenClusters(p string, out map[string]any) {
	n := len(t.Clusters)
	if t.Params == nil {
		polys := make([][][2]float64, n)
		for c, cl := range t.Clusters {
			polys[c] = cl.Polygon
		}
		out[p+"clusters_polygon"] = polys
	}
	for k, name := range t.Params {
		col := make([]float64, n)
		for c, cl := range t.Clusters {
			col[c] = cl.Params[k]
		}
		out[p+"clusters_"+name] = col
	}
	switch t.Metric {
	case MetricIoU:
		if t.Params != nil {
			sigma := make([]*float64, n)
			for c, cl := range t.Clusters {
				sigma[c] = cl.Sigma
			}
			out[p+"clusters_sigma"] = sigma
		}
	case MetricEuclidean:
		for k, name := range t.Params {
			col := make([]*float64, n)
			for c, cl := range t.Clusters {
				col[c] = cl.Variance[k]
			}
			out[p+"clusters_var_"+name] = col
		}
		if hasXY(t.Params) {
			cov := make([]*float64, n)
			for c, cl := range t.Clusters {
				cov[c] = cl.CovarianceXY
			}
			out[p+"clusters_var_x_y"] = cov
		}
	}
	if t.Probabilities != nil {
		pers := make([]*float64, n)
		for c, cl := range t.Clusters {
			pers[c] = cl.Persistence
		}
		out[p+"clusters_persistance"] = pers
	}
}

func hasXY(params []string) bool {
	x, y := false, false
	for _, name := range params {
		x = x || name == "x"
		y = y || name == "y"
	}
	return x && y
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
