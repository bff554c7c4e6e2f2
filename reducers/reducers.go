// Package reducers provides the sub-reducers the CLI registers for
// clustered subtask details.
package reducers

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kwv/markconsensus/consensus"
	"gonum.org/v1/gonum/stat"
)

// Catalog returns every reducer in this package keyed by name.
func Catalog() consensus.Catalog {
	return consensus.Catalog{
		"question": Question{},
		"dropdown": Dropdown{},
		"slider":   Slider{},
	}
}

// Question tallies answer counts. Each extract maps an answer key to the
// number of times it was chosen.
type Question struct {
	// Pairs counts answer combinations instead of single answers.
	Pairs bool
}

func (q Question) Reduce(extracts []consensus.Detail) (map[string]any, error) {
	counts := make(map[string]any)
	for i, ex := range extracts {
		if q.Pairs {
			keys := make([]string, 0, len(ex))
			for k := range ex {
				keys = append(keys, k)
			}
			if len(keys) == 0 {
				continue
			}
			sort.Strings(keys)
			key := keys[0]
			for _, k := range keys[1:] {
				key += "+" + k
			}
			counts[key] = counted(counts[key]) + 1
			continue
		}
		for k, v := range ex {
			n, ok := number(v)
			if !ok {
				return nil, fmt.Errorf("extract %d: answer %q has non-numeric count %v", i, k, v)
			}
			counts[k] = counted(counts[k]) + int(n)
		}
	}
	return counts, nil
}

// Dropdown tallies the selected options of every dropdown in a task. Each
// extract holds under "value" one option-to-count map per dropdown.
type Dropdown struct{}

func (Dropdown) Reduce(extracts []consensus.Detail) (map[string]any, error) {
	var tallies []map[string]int
	for i, ex := range extracts {
		raw, ok := ex["value"]
		if !ok {
			continue
		}
		lists, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("extract %d: value is %T, want a list", i, raw)
		}
		for len(tallies) < len(lists) {
			tallies = append(tallies, make(map[string]int))
		}
		for d, item := range lists {
			options, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("extract %d: dropdown %d is %T, want an object", i, d, item)
			}
			for option, v := range options {
				n, ok := number(v)
				if !ok {
					return nil, fmt.Errorf("extract %d: option %q has non-numeric count %v", i, option, v)
				}
				tallies[d][option] += int(n)
			}
		}
	}
	if tallies == nil {
		tallies = []map[string]int{}
	}
	return map[string]any{"value": tallies}, nil
}

// Slider summarises slider positions stored under "slider_value".
type Slider struct{}

func (Slider) Reduce(extracts []consensus.Detail) (map[string]any, error) {
	values := make([]float64, 0, len(extracts))
	for i, ex := range extracts {
		raw, ok := ex["slider_value"]
		if !ok {
			continue
		}
		v, ok := number(raw)
		if !ok {
			return nil, fmt.Errorf("extract %d: slider_value %v is not a number", i, raw)
		}
		values = append(values, v)
	}

	out := map[string]any{"slider_count": len(values), "slider_mean": nil, "slider_var": nil}
	if len(values) > 0 {
		out["slider_mean"] = stat.Mean(values, nil)
	}
	if len(values) > 1 {
		out["slider_var"] = stat.Variance(values, nil)
	}
	return out, nil
}

func counted(v any) int {
	n, _ := v.(int)
	return n
}

// number accepts the numeric forms produced by JSON and YAML decoding.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
