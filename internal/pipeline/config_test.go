package pipeline

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/matrixci/internal/domain"
)

func TestLoadEdward2Config(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "edward2.yml"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "edward2", cfg.Name)
	assert.Equal(t, StringList{"PIP_DISABLE_PIP_VERSION_CHECK=1"}, cfg.Env)
	require.Len(t, cfg.Stages, 2)

	lint := cfg.Stages[0]
	assert.Equal(t, "lint", lint.Name)
	assert.Empty(t, lint.DependsOn)
	assert.Len(t, lint.Script, 1)

	test := cfg.Stages[1]
	assert.Equal(t, "test", test.Name)
	assert.Equal(t, []string{"lint"}, test.DependsOn)
	require.NotNil(t, test.Matrix)
	assert.Equal(t, []string{"tensorflow", "tf-nightly"}, test.Matrix.Axes["TF_VERSION"])
	assert.Len(t, test.Install, 3)
	assert.Len(t, test.Script, 1)
	assert.Equal(t, Duration(30*time.Minute), test.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "does-not-exist.yml"))
	require.Error(t, err)
}

func TestParseScalarsPromoteToLists(t *testing.T) {
	cfg, err := Parse([]byte(`
env: CI=true
stages:
  - name: build
    script: make build
`))
	require.NoError(t, err)
	assert.Equal(t, StringList{"CI=true"}, cfg.Env)
	assert.Equal(t, StringList{"make build"}, cfg.Stages[0].Script)
}

func TestParseRejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no stages", `name: empty`},
		{"unknown top-level field", "stages:\n  - name: a\n    script: [ok]\nbogus: true"},
		{"unknown stage field", "stages:\n  - name: a\n    script: [ok]\n    retries: 3"},
		{"stage without script", "stages:\n  - name: a"},
		{"duplicate stage names", "stages:\n  - name: a\n    script: [ok]\n  - name: a\n    script: [ok]"},
		{"unknown depends_on", "stages:\n  - name: a\n    script: [ok]\n    depends_on: [b]"},
		{"self dependency", "stages:\n  - name: a\n    script: [ok]\n    depends_on: [a]"},
		{"malformed env", "env: [NOT_AN_ASSIGNMENT]\nstages:\n  - name: a\n    script: [ok]"},
		{"env key starts with digit", "stages:\n  - name: a\n    script: [ok]\n    env: [1K=v]"},
		{"bad timeout", "stages:\n  - name: a\n    script: [ok]\n    timeout: soon"},
		{"negative timeout", "stages:\n  - name: a\n    script: [ok]\n    timeout: -5m"},
		{"bad matrix include", "stages:\n  - name: a\n    script: [ok]\n    matrix:\n      include:\n        - [oops]"},
		{"empty matrix axis", "stages:\n  - name: a\n    script: [ok]\n    matrix:\n      axes:\n        K: []"},
		{"unsupported version", "version: 2\nstages:\n  - name: a\n    script: [ok]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfig), "expected ErrConfig, got %v", err)
		})
	}
}

func TestParseEnv(t *testing.T) {
	key, value, err := ParseEnv("TF_VERSION=tf-nightly")
	require.NoError(t, err)
	assert.Equal(t, "TF_VERSION", key)
	assert.Equal(t, "tf-nightly", value)

	// Values may contain '='.
	_, value, err = ParseEnv("OPTS=-a=1")
	require.NoError(t, err)
	assert.Equal(t, "-a=1", value)

	// Empty values are legal, empty keys are not.
	_, value, err = ParseEnv("EMPTY=")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	for _, bad := range []string{"", "NOEQ", "=value", "SP ACE=1", "1LEAD=x"} {
		_, _, err := ParseEnv(bad)
		assert.Error(t, err, "entry %q should be rejected", bad)
	}
}
