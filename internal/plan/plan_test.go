package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/pipeline"
)

func stage(name string, deps ...string) pipeline.StageConfig {
	return pipeline.StageConfig{
		Name:      name,
		DependsOn: deps,
		Script:    pipeline.StringList{"true"},
	}
}

func TestBuildImplicitLinearOrder(t *testing.T) {
	cfg := &pipeline.Config{Stages: []pipeline.StageConfig{
		stage("lint"),
		stage("test"),
		stage("deploy"),
	}}

	p, err := Build(cfg)
	require.NoError(t, err)

	// Without explicit depends_on, declaration order is execution order.
	assert.Equal(t, [][]string{{"lint"}, {"test"}, {"deploy"}}, p.Batches())
	assert.Empty(t, p.DependsOn("lint"))
	assert.Equal(t, []string{"test"}, p.DependsOn("deploy"))
}

func TestBuildExplicitDAGBatches(t *testing.T) {
	cfg := &pipeline.Config{Stages: []pipeline.StageConfig{
		stage("lint"),
		stage("unit", "lint"),
		stage("integration", "lint"),
		stage("release", "unit", "integration"),
	}}

	p, err := Build(cfg)
	require.NoError(t, err)

	batches := p.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"lint"}, batches[0])
	assert.Equal(t, []string{"unit", "integration"}, batches[1])
	assert.Equal(t, []string{"release"}, batches[2])
}

func TestBuildIndependentRootsShareBatch(t *testing.T) {
	cfg := &pipeline.Config{Stages: []pipeline.StageConfig{
		stage("lint"),
		stage("docs"),
		stage("test", "lint"),
	}}

	p, err := Build(cfg)
	require.NoError(t, err)

	batches := p.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"lint", "docs"}, batches[0])
	assert.Equal(t, []string{"test"}, batches[1])
}

func TestBuildDetectsCycle(t *testing.T) {
	cfg := &pipeline.Config{Stages: []pipeline.StageConfig{
		stage("a", "c"),
		stage("b", "a"),
		stage("c", "b"),
	}}

	_, err := Build(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCyclicStage), "expected ErrCyclicStage, got %v", err)
}

func TestStageLookup(t *testing.T) {
	cfg := &pipeline.Config{Stages: []pipeline.StageConfig{
		stage("lint"),
		stage("test"),
	}}

	p, err := Build(cfg)
	require.NoError(t, err)

	require.NotNil(t, p.Stage("test"))
	assert.Equal(t, "test", p.Stage("test").Name)
	assert.Nil(t, p.Stage("missing"))
	assert.Equal(t, 1, p.Ordinal("test"))
}
