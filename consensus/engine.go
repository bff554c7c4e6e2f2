package consensus

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// Engine reduces volunteer marks to consensus clusters. An Engine holds no
// per-call state and may be shared between goroutines.
type Engine struct {
	// Catalog supplies the sub-reducers named in Config.Details.
	Catalog Catalog
	// CacheSize bounds the per-call geometry cache.
	CacheSize int
}

// NewEngine returns an engine using catalog for subtask reduction.
func NewEngine(catalog Catalog) *Engine {
	return &Engine{Catalog: catalog, CacheSize: DefaultCacheSize}
}

// reduction carries the state of one Reduce call.
type reduction struct {
	cfg     Config
	shape   Shape
	catalog Catalog
	cache   *geomCache
}

// Reduce clusters every (frame, tool) group of req. Configuration problems
// are reported as *ConfigError before any group is processed.
func (e *Engine) Reduce(req Request) (*ConsensusRecord, error) {
	cfg := req.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.Catalog.checkDetails(cfg); err != nil {
		return nil, err
	}
	shape, err := LookupShape(cfg.Shape)
	if err != nil {
		return nil, err
	}
	r := &reduction{cfg: cfg, shape: shape, catalog: e.Catalog, cache: newGeomCache(e.CacheSize)}

	rec := &ConsensusRecord{Frames: make(map[string]map[string]*ToolResult, len(req.Frames))}
	for _, frame := range sortedKeys(req.Frames) {
		tools := req.Frames[frame]
		out := make(map[string]*ToolResult, len(tools))
		for _, tool := range sortedKeys(tools) {
			res, err := r.group(tool, tools[tool])
			if err != nil {
				return nil, fmt.Errorf("frame %s tool %s: %w", frame, tool, err)
			}
			out[tool] = res
		}
		rec.Frames[frame] = out
	}
	return rec, nil
}

func (r *reduction) group(tool string, g Group) (*ToolResult, error) {
	insts, err := g.Instances(r.shape)
	if err != nil {
		return nil, err
	}
	res := &ToolResult{
		Tool:   tool,
		Shape:  r.shape.Name(),
		Metric: r.cfg.MetricType,
		Params: r.shape.Params(),
	}
	var lab Labeling
	if IsPolygonShape(r.shape) {
		lab = r.polygonGroup(res, insts)
	} else {
		if lab, err = r.paramGroup(res, insts); err != nil {
			return nil, err
		}
	}
	res.Labels = lab.Labels
	res.Probabilities = lab.Probabilities

	if names := r.cfg.Details[tool]; len(names) > 0 {
		res.Details, err = r.catalog.composeDetails(tool, names, insts, lab)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// cluster runs the configured backend, treating groups below its minimum
// size as noise.
func (r *reduction) cluster(m Metric) (Labeling, *mat.SymDense) {
	c := r.cfg.Clusterer()
	if m.Len() < c.MinMembers() {
		return allNoise(m.Len()), nil
	}
	dist := DistanceMatrix(m)
	return c.Cluster(dist), dist
}

func (r *reduction) paramGroup(res *ToolResult, insts []Instance) (Labeling, error) {
	values := make([][]float64, len(insts))
	res.Values = make([][]float64, len(insts))
	for i, in := range insts {
		res.Values[i] = in.Params
		values[i] = in.Params
		if r.cfg.Symmetric {
			values[i] = r.shape.Normalize(in.Params)
		}
	}

	var metric Metric = NewEuclideanMetric(r.shape, values)
	var iou *IoUMetric
	if r.cfg.MetricType == MetricIoU {
		m, err := NewIoUMetric(r.shape, values, users(insts), r.cfg.EpsT)
		if err != nil {
			return Labeling{}, err
		}
		iou = m.withCache(r.cache)
		metric = iou
	}
	lab, _ := r.cluster(metric)

	for label := 0; label < lab.Clusters(); label++ {
		idx := lab.Members(label)
		members := make([][]float64, len(idx))
		for k, i := range idx {
			members[k] = values[i]
		}
		sum := ClusterSummary{Label: label, Count: len(idx)}
		if iou != nil {
			sub := &IoUMetric{shape: iou.shape, values: members, epsT: iou.epsT, cache: r.cache}
			avg := sub.average(!r.cfg.EstimateAverage)
			sum.Params, sum.Sigma = avg.Params, avg.Sigma
		} else {
			avg := EuclideanAverage(r.shape, members)
			sum.Params, sum.Variance, sum.CovarianceXY = avg.Mean, avg.Variance, avg.CovarianceXY
		}
		if lab.Persistence != nil {
			p := lab.Persistence[label]
			sum.Persistence = &p
		}
		res.Clusters = append(res.Clusters, sum)
	}
	return lab, nil
}

func (r *reduction) polygonGroup(res *ToolResult, insts []Instance) Labeling {
	polys := polygons(insts)
	res.Polygons = make([][][2]float64, len(insts))
	created := make([]time.Time, len(insts))
	for i, in := range insts {
		res.Polygons[i] = in.Points
		created[i] = in.Created
	}
	lab, dist := r.cluster(NewPolygonMetric(polys, users(insts)))

	opts := ContourOptions{
		Method:          r.cfg.ContourMethod,
		ApproxThreshold: r.cfg.ApproxThreshold,
		GridResolution:  r.cfg.GridResolution,
		Smoothing:       r.cfg.Smoothing,
	}
	if r.cfg.Contours {
		res.Contours = []ContourCluster{}
	}
	for label := 0; label < lab.Clusters(); label++ {
		idx := lab.Members(label)
		members := make([]orb.Polygon, len(idx))
		times := make([]time.Time, len(idx))
		for k, i := range idx {
			members[k] = polys[i]
			times[k] = created[i]
		}
		if r.cfg.Contours {
			set := BuildContours(members, dist, idx, opts)
			res.Contours = append(res.Contours, ContourCluster{
				Label:          label,
				Count:          len(idx),
				Contours:       contourPoints(set.Levels),
				ConsensusScore: set.Score,
				Truncated:      set.Truncated,
			})
			continue
		}
		sum := ClusterSummary{Label: label, Count: len(idx)}
		if poly, ok := AveragePolygons(r.cfg.AverageType, members, times, dist, idx); ok {
			sum.Polygon = polygonPoints(poly)
		}
		if lab.Persistence != nil {
			p := lab.Persistence[label]
			sum.Persistence = &p
		}
		res.Clusters = append(res.Clusters, sum)
	}
	return lab
}

func contourPoints(levels [][]orb.Polygon) [][][][2]float64 {
	out := make([][][][2]float64, len(levels))
	for i, level := range levels {
		out[i] = make([][][2]float64, len(level))
		for j, p := range level {
			out[i][j] = polygonPoints(p)
		}
	}
	return out
}
