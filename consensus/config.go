package consensus

import (
	"errors"
	"fmt"
	"sort"
)

// MetricType selects the pairwise distance for parameterised shapes.
type MetricType string

const (
	MetricEuclidean MetricType = "euclidean"
	MetricIoU       MetricType = "IoU"
)

// Backend selects the density clustering algorithm.
type Backend string

const (
	BackendDBSCAN  Backend = "dbscan"
	BackendHDBSCAN Backend = "hdbscan"
	BackendOPTICS  Backend = "optics"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultEuclideanEps    = 5.0
	DefaultIoUEps          = 0.5
	DefaultEpsT            = 1.0
	DefaultMinSamples      = 3
	DefaultMinClusterSize  = 5
	DefaultApproxThreshold = 10
)

// knownAlgorithms are the neighbour search hints accepted for
// compatibility. The search is always brute force over the matrix.
var knownAlgorithms = map[string]bool{
	"auto": true, "brute": true, "ball_tree": true, "kd_tree": true,
	"best": true, "generic": true, "prims_kdtree": true, "prims_balltree": true,
	"boruvka_kdtree": true, "boruvka_balltree": true,
}

// ConfigError reports an invalid reducer configuration. It is never
// retried.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Config is the reducer configuration for one tool family.
type Config struct {
	Shape      string     `yaml:"shape" json:"shape"`
	MetricType MetricType `yaml:"metric_type,omitempty" json:"metric_type,omitempty"`
	Backend    Backend    `yaml:"backend,omitempty" json:"backend,omitempty"`

	Eps            float64 `yaml:"eps,omitempty" json:"eps,omitempty"`
	EpsT           float64 `yaml:"eps_t,omitempty" json:"eps_t,omitempty"`
	MinSamples     int     `yaml:"min_samples,omitempty" json:"min_samples,omitempty"`
	MinClusterSize int     `yaml:"min_cluster_size,omitempty" json:"min_cluster_size,omitempty"`
	Xi             float64 `yaml:"xi,omitempty" json:"xi,omitempty"`

	// Neighbour search hints, validated and otherwise ignored.
	Algorithm string  `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	LeafSize  int     `yaml:"leaf_size,omitempty" json:"leaf_size,omitempty"`
	P         float64 `yaml:"p,omitempty" json:"p,omitempty"`

	EstimateAverage bool        `yaml:"estimate_average,omitempty" json:"estimate_average,omitempty"`
	AverageType     AverageType `yaml:"average_type,omitempty" json:"average_type,omitempty"`
	Symmetric       bool        `yaml:"symmetric,omitempty" json:"symmetric,omitempty"`

	// Details maps a tool to the sub-reducer used for each of its subtasks.
	// An empty name skips that subtask.
	Details map[string][]string `yaml:"details,omitempty" json:"details,omitempty"`

	Contours        bool          `yaml:"contours,omitempty" json:"contours,omitempty"`
	ContourMethod   ContourMethod `yaml:"contour_method,omitempty" json:"contour_method,omitempty"`
	ApproxThreshold int           `yaml:"approx_threshold,omitempty" json:"approx_threshold,omitempty"`
	GridResolution  int           `yaml:"grid_resolution,omitempty" json:"grid_resolution,omitempty"`
	Smoothing       Smoothing     `yaml:"smoothing,omitempty" json:"smoothing,omitempty"`
}

// WithDefaults returns a copy with every unset option filled in. It does
// not validate.
func (c Config) WithDefaults() Config {
	polygon := false
	if s, ok := shapeTable[c.Shape]; ok {
		polygon = IsPolygonShape(s)
	}
	if c.MetricType == "" {
		c.MetricType = MetricEuclidean
		if polygon {
			c.MetricType = MetricIoU
		}
	}
	if c.Backend == "" {
		c.Backend = BackendDBSCAN
	}
	if c.Eps == 0 {
		c.Eps = DefaultEuclideanEps
		if c.MetricType == MetricIoU {
			c.Eps = DefaultIoUEps
		}
	}
	if c.EpsT == 0 {
		c.EpsT = DefaultEpsT
	}
	if c.MinSamples == 0 && c.Backend != BackendHDBSCAN {
		c.MinSamples = DefaultMinSamples
	}
	if c.MinClusterSize == 0 && c.Backend == BackendHDBSCAN {
		c.MinClusterSize = DefaultMinClusterSize
	}
	if c.Xi == 0 && c.Backend == BackendOPTICS {
		c.Xi = DefaultXi
	}
	if c.AverageType == "" {
		c.AverageType = AverageMedian
	}
	if c.ContourMethod == "" {
		c.ContourMethod = ContourAuto
	}
	if c.ApproxThreshold == 0 {
		c.ApproxThreshold = DefaultApproxThreshold
	}
	if c.GridResolution == 0 {
		c.GridResolution = DefaultGridResolution
	}
	if c.Smoothing == "" {
		c.Smoothing = SmoothSimplify
	}
	return c
}

// Validate checks a defaulted configuration and returns a *ConfigError
// describing the first problem found.
func (c Config) Validate() error {
	if c.Shape == "" {
		return configErrorf("shape", "shape is required")
	}
	shape, err := LookupShape(c.Shape)
	if err != nil {
		return err
	}
	switch c.MetricType {
	case MetricEuclidean:
		if IsPolygonShape(shape) {
			return configErrorf("metric_type", "%s requires the IoU metric", c.Shape)
		}
	case MetricIoU:
		if ps, ok := shape.(*paramShape); ok && !ps.supportsIoU() {
			return configErrorf("metric_type", "IoU metric does not support shape %q", c.Shape)
		}
	default:
		return configErrorf("metric_type", "unknown metric %q", c.MetricType)
	}
	switch c.Backend {
	case BackendDBSCAN, BackendHDBSCAN, BackendOPTICS:
	default:
		return configErrorf("backend", "unknown backend %q", c.Backend)
	}
	if c.Eps <= 0 {
		return configErrorf("eps", "must be positive, got %v", c.Eps)
	}
	if c.EpsT <= 0 {
		return configErrorf("eps_t", "must be positive, got %v", c.EpsT)
	}
	if c.MinSamples < 0 || (c.Backend != BackendHDBSCAN && c.MinSamples < 1) {
		return configErrorf("min_samples", "must be at least 1, got %d", c.MinSamples)
	}
	if c.MinClusterSize < 0 || (c.Backend == BackendHDBSCAN && c.MinClusterSize < 2) {
		return configErrorf("min_cluster_size", "must be at least 2, got %d", c.MinClusterSize)
	}
	if c.Xi < 0 || c.Xi >= 1 {
		return configErrorf("xi", "must be in [0, 1), got %v", c.Xi)
	}
	if c.Algorithm != "" && !knownAlgorithms[c.Algorithm] {
		return configErrorf("algorithm", "unknown algorithm %q", c.Algorithm)
	}
	if c.LeafSize < 0 {
		return configErrorf("leaf_size", "must not be negative, got %d", c.LeafSize)
	}
	if c.P < 0 {
		return configErrorf("p", "must not be negative, got %v", c.P)
	}
	if !c.AverageType.valid() {
		return configErrorf("average_type", "unknown average %q", c.AverageType)
	}
	if !c.ContourMethod.valid() {
		return configErrorf("contour_method", "unknown method %q", c.ContourMethod)
	}
	if !c.Smoothing.valid() {
		return configErrorf("smoothing", "unknown smoothing %q", c.Smoothing)
	}
	if c.Contours && !IsPolygonShape(shape) {
		return configErrorf("contours", "contours require a polygon shape, got %s", c.Shape)
	}
	if c.ApproxThreshold < 1 {
		return configErrorf("approx_threshold", "must be at least 1, got %d", c.ApproxThreshold)
	}
	if c.GridResolution < 2 {
		return configErrorf("grid_resolution", "must be at least 2, got %d", c.GridResolution)
	}
	return nil
}

// Clusterer builds the configured backend.
func (c Config) Clusterer() Clusterer {
	switch c.Backend {
	case BackendHDBSCAN:
		return HDBSCAN{MinClusterSize: c.MinClusterSize, MinSamples: c.MinSamples}
	case BackendOPTICS:
		return OPTICS{MinSamples: c.MinSamples, MinClusterSize: c.MinClusterSize, Xi: c.Xi}
	default:
		return DBSCAN{Eps: c.Eps, MinSamples: c.MinSamples}
	}
}

// detailTools returns the tools with sub-reducers in sorted order.
func (c Config) detailTools() []string {
	tools := make([]string, 0, len(c.Details))
	for t := range c.Details {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return tools
}
