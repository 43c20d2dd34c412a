package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandMatrixNoMatrix(t *testing.T) {
	stage := &StageConfig{Name: "lint", Script: StringList{"pylint ."}}
	specs := stage.ExpandMatrix()

	require.Len(t, specs, 1)
	assert.Equal(t, "lint", specs[0].Name)
	assert.Empty(t, specs[0].Env)
}

func TestExpandMatrixSingleAxis(t *testing.T) {
	stage := &StageConfig{
		Name:   "test",
		Script: StringList{"make test"},
		Matrix: &MatrixConfig{
			Axes: map[string][]string{
				"TF_VERSION": {"tensorflow", "tf-nightly"},
			},
		},
	}
	specs := stage.ExpandMatrix()

	require.Len(t, specs, 2)
	assert.Equal(t, "test TF_VERSION=tensorflow", specs[0].Name)
	assert.Equal(t, []string{"TF_VERSION=tensorflow"}, specs[0].Env)
	assert.Equal(t, "test TF_VERSION=tf-nightly", specs[1].Name)
	assert.Equal(t, []string{"TF_VERSION=tf-nightly"}, specs[1].Env)

	// Legs differ only in their matrix env.
	assert.Equal(t, specs[0].AllowFailure, specs[1].AllowFailure)
}

func TestExpandMatrixCartesianProduct(t *testing.T) {
	stage := &StageConfig{
		Name:   "test",
		Script: StringList{"make test"},
		Matrix: &MatrixConfig{
			Axes: map[string][]string{
				"TF_VERSION": {"tensorflow", "tf-nightly"},
				"PY":         {"3.6", "3.7"},
			},
		},
	}
	specs := stage.ExpandMatrix()

	require.Len(t, specs, 4)
	// Axes expand in sorted key order, so PY varies slowest.
	assert.Equal(t, []string{"PY=3.6", "TF_VERSION=tensorflow"}, specs[0].Env)
	assert.Equal(t, []string{"PY=3.6", "TF_VERSION=tf-nightly"}, specs[1].Env)
	assert.Equal(t, []string{"PY=3.7", "TF_VERSION=tensorflow"}, specs[2].Env)
	assert.Equal(t, []string{"PY=3.7", "TF_VERSION=tf-nightly"}, specs[3].Env)
}

func TestExpandMatrixInclude(t *testing.T) {
	stage := &StageConfig{
		Name:         "test",
		Script:       StringList{"make test"},
		AllowFailure: true,
		Matrix: &MatrixConfig{
			Axes: map[string][]string{
				"TF_VERSION": {"tensorflow"},
			},
			Include: []StringList{
				{"TF_VERSION=tf-nightly", "EXPERIMENTAL=1"},
			},
		},
	}
	specs := stage.ExpandMatrix()

	require.Len(t, specs, 2)
	assert.Equal(t, []string{"TF_VERSION=tensorflow"}, specs[0].Env)
	assert.Equal(t, "test TF_VERSION=tf-nightly EXPERIMENTAL=1", specs[1].Name)
	assert.Equal(t, []string{"TF_VERSION=tf-nightly", "EXPERIMENTAL=1"}, specs[1].Env)
	for _, spec := range specs {
		assert.True(t, spec.AllowFailure)
	}
}

func TestExpandMatrixDeterministic(t *testing.T) {
	stage := &StageConfig{
		Name:   "test",
		Script: StringList{"make test"},
		Matrix: &MatrixConfig{
			Axes: map[string][]string{
				"A": {"1", "2"},
				"B": {"x", "y"},
				"C": {"p"},
			},
		},
	}

	first := stage.ExpandMatrix()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, stage.ExpandMatrix())
	}
}
