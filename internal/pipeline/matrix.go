package pipeline

import (
	"sort"
	"strings"
)

// JobSpec is one leg of an expanded stage: the job to create, named after
// the stage plus the leg's matrix environment.
type JobSpec struct {
	Name         string
	Env          []string // Matrix leg env only; global and stage env merge at plan time
	AllowFailure bool
}

// ExpandMatrix expands a stage into its jobs. A stage without a matrix
// yields a single job. Axes contribute the cartesian product of their
// values, in sorted axis order for determinism; include legs are
// appended after the product.
func (s *StageConfig) ExpandMatrix() []JobSpec {
	if s.Matrix == nil || (len(s.Matrix.Axes) == 0 && len(s.Matrix.Include) == 0) {
		return []JobSpec{{Name: s.Name, AllowFailure: s.AllowFailure}}
	}

	var specs []JobSpec
	for _, leg := range expandAxes(s.Matrix.Axes) {
		specs = append(specs, s.jobSpec(leg))
	}
	for _, leg := range s.Matrix.Include {
		specs = append(specs, s.jobSpec(leg))
	}
	return specs
}

func (s *StageConfig) jobSpec(env []string) JobSpec {
	name := s.Name
	if len(env) > 0 {
		name += " " + strings.Join(env, " ")
	}
	return JobSpec{
		Name:         name,
		Env:          env,
		AllowFailure: s.AllowFailure,
	}
}

// expandAxes returns the cartesian product of all axis values as env
// entry sets, one per leg.
func expandAxes(axes map[string][]string) [][]string {
	if len(axes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(axes))
	for k := range axes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	legs := [][]string{nil}
	for _, key := range keys {
		next := make([][]string, 0, len(legs)*len(axes[key]))
		for _, leg := range legs {
			for _, value := range axes[key] {
				entry := key + "=" + value
				expanded := make([]string, len(leg), len(leg)+1)
				copy(expanded, leg)
				next = append(next, append(expanded, entry))
			}
		}
		legs = next
	}
	return legs
}
