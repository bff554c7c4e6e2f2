package consensus

import (
	"fmt"
)

// Reducer aggregates the subtask extracts of the members of one cluster.
type Reducer interface {
	Reduce(extracts []Detail) (map[string]any, error)
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(extracts []Detail) (map[string]any, error)

func (f ReducerFunc) Reduce(extracts []Detail) (map[string]any, error) {
	return f(extracts)
}

// Catalog maps sub-reducer names to implementations. It is supplied by the
// caller.
type Catalog map[string]Reducer

// checkDetails verifies that every configured sub-reducer is registered.
func (c Catalog) checkDetails(cfg Config) error {
	for _, tool := range cfg.detailTools() {
		for k, name := range cfg.Details[tool] {
			if name == "" {
				continue
			}
			if _, ok := c[name]; !ok {
				return configErrorf("details", "%s subtask %d: unknown reducer %q", tool, k, name)
			}
		}
	}
	return nil
}

// composeDetails runs the configured sub-reducers for each cluster. Noise
// members never contribute. The result is indexed by cluster, then by
// subtask.
func (c Catalog) composeDetails(tool string, names []string, insts []Instance, lab Labeling) ([][]map[string]any, error) {
	clusters := lab.Clusters()
	out := make([][]map[string]any, clusters)
	for label := 0; label < clusters; label++ {
		members := lab.Members(label)
		out[label] = make([]map[string]any, len(names))
		for k, name := range names {
			if name == "" {
				continue
			}
			extracts := make([]Detail, 0, len(members))
			for _, i := range members {
				if k < len(insts[i].Details) && insts[i].Details[k] != nil {
					extracts = append(extracts, insts[i].Details[k])
				}
			}
			res, err := c[name].Reduce(extracts)
			if err != nil {
				return nil, fmt.Errorf("%s cluster %d subtask %d (%s): %w", tool, label, k, name, err)
			}
			out[label][k] = res
		}
	}
	return out, nil
}
