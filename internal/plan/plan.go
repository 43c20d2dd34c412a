// Package plan turns a pipeline configuration into a stage execution
// plan: a DAG of stages reduced to ordered batches, where every stage in
// a batch has all of its dependencies satisfied by earlier batches.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/pipeline"
)

// Plan is the execution order for a run's stages.
type Plan struct {
	stages  map[string]*pipeline.StageConfig
	ordinal map[string]int
	deps    map[string][]string
	batches [][]string
}

// Build constructs the stage plan for a config. Stages without any
// depends_on anywhere in the config run in declaration order, one after
// another; once any stage declares dependencies, ordering is governed by
// the dependency graph alone. A dependency cycle yields ErrCyclicStage.
func Build(cfg *pipeline.Config) (*Plan, error) {
	p := &Plan{
		stages:  make(map[string]*pipeline.StageConfig, len(cfg.Stages)),
		ordinal: make(map[string]int, len(cfg.Stages)),
		deps:    make(map[string][]string, len(cfg.Stages)),
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	explicit := false
	for i := range cfg.Stages {
		st := &cfg.Stages[i]
		p.stages[st.Name] = st
		p.ordinal[st.Name] = i
		if err := g.AddVertex(st.Name); err != nil {
			return nil, fmt.Errorf("failed to add stage %q: %w", st.Name, err)
		}
		if len(st.DependsOn) > 0 {
			explicit = true
		}
	}

	for i := range cfg.Stages {
		st := &cfg.Stages[i]
		deps := st.DependsOn
		if !explicit && i > 0 {
			// Implicit linear order: each stage follows the previous one.
			deps = []string{cfg.Stages[i-1].Name}
		}
		p.deps[st.Name] = deps
		for _, dep := range deps {
			err := g.AddEdge(dep, st.Name)
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				return nil, fmt.Errorf("%w: %q <-> %q", domain.ErrCyclicStage, dep, st.Name)
			}
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("failed to add dependency %q -> %q: %w", dep, st.Name, err)
			}
		}
	}

	batches, err := topologicalBatches(g, p.ordinal)
	if err != nil {
		return nil, err
	}
	p.batches = batches
	return p, nil
}

// Batches returns the stages grouped into execution waves. Stages within
// one batch have no ordering constraints between them.
func (p *Plan) Batches() [][]string {
	return p.batches
}

// Stage returns the config for a planned stage.
func (p *Plan) Stage(name string) *pipeline.StageConfig {
	return p.stages[name]
}

// Ordinal returns the declaration index of a stage.
func (p *Plan) Ordinal(name string) int {
	return p.ordinal[name]
}

// DependsOn returns the stages a planned stage waits for, including the
// implicit predecessor when the config declares no dependencies at all.
func (p *Plan) DependsOn(name string) []string {
	return p.deps[name]
}

// topologicalBatches runs Kahn's algorithm by levels. Ties within a
// batch resolve by declaration order so output is deterministic.
func topologicalBatches(g graph.Graph[string, string], ordinal map[string]int) ([][]string, error) {
	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	predecessors, err := g.PredecessorMap()
	if err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(predecessors))
	for name, preds := range predecessors {
		indegree[name] = len(preds)
	}

	var batches [][]string
	remaining := len(indegree)
	for remaining > 0 {
		var batch []string
		for name, deg := range indegree {
			if deg == 0 {
				batch = append(batch, name)
			}
		}
		if len(batch) == 0 {
			// PreventCycles should make this unreachable.
			return nil, domain.ErrCyclicStage
		}
		sort.Slice(batch, func(i, j int) bool {
			return ordinal[batch[i]] < ordinal[batch[j]]
		})

		for _, name := range batch {
			delete(indegree, name)
			remaining--
			for succ := range adjacency[name] {
				if _, ok := indegree[succ]; ok {
					indegree[succ]--
				}
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
