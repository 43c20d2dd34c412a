// Package pipeline loads and validates the declarative pipeline
// configuration: ordered stages, per-stage install/script phases, and an
// environment matrix that expands a stage into parallel jobs.
package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/matrixci/internal/domain"
)

// DefaultFile is the pipeline file read from the repository root when no
// path is given.
const DefaultFile = ".matrixci.yml"

// Config is the root of a pipeline configuration file.
type Config struct {
	Version int        `yaml:"version"`
	Name    string     `yaml:"name"`
	Env     StringList `yaml:"env"` // Global env, applied to every job
	Stages  []StageConfig
}

// StageConfig describes one stage of the pipeline.
type StageConfig struct {
	Name         string
	DependsOn    []string   `yaml:"depends_on"`
	Env          StringList `yaml:"env"` // Stage env, overrides global
	Matrix       *MatrixConfig
	Install      StringList // Commands run before script; failure aborts the job
	Script       StringList // The stage's main commands
	AfterFailure StringList `yaml:"after_failure"` // Best-effort commands on job failure
	AllowFailure bool       `yaml:"allow_failure"`
	Timeout      Duration   // Per-job timeout; zero means the scheduler default
}

// MatrixConfig expands a stage into one job per environment combination.
// Axes produce the cartesian product of their values; include appends
// extra legs verbatim.
type MatrixConfig struct {
	Axes    map[string][]string `yaml:"axes"`
	Include []StringList        `yaml:"include"`
}

// StringList is a YAML field that accepts either a single string or a
// sequence of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", value.Line)
	}
}

// Duration is a YAML field holding a Go duration string such as "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration %q must not be negative", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and parses the pipeline file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the pipeline schema and decodes it.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate applies the semantic checks the schema cannot express.
func (c *Config) validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("%w: at least one stage is required", domain.ErrConfig)
	}

	names := make(map[string]struct{}, len(c.Stages))
	for i := range c.Stages {
		st := &c.Stages[i]
		if st.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", domain.ErrConfig, i)
		}
		if _, dup := names[st.Name]; dup {
			return fmt.Errorf("%w: duplicate stage name %q", domain.ErrConfig, st.Name)
		}
		names[st.Name] = struct{}{}

		if len(st.Script) == 0 {
			return fmt.Errorf("%w: stage %q has no script", domain.ErrConfig, st.Name)
		}
		if err := validateEnvEntries(st.Name, c.Env, st.Env); err != nil {
			return err
		}
		if st.Matrix != nil {
			if err := st.Matrix.validate(st.Name); err != nil {
				return err
			}
		}
	}

	// depends_on may only reference declared stages. Cycle detection is
	// the planner's job; here we only check existence.
	for i := range c.Stages {
		st := &c.Stages[i]
		for _, dep := range st.DependsOn {
			if dep == st.Name {
				return fmt.Errorf("%w: stage %q depends on itself", domain.ErrConfig, st.Name)
			}
			if _, ok := names[dep]; !ok {
				return fmt.Errorf("%w: stage %q depends on unknown stage %q",
					domain.ErrConfig, st.Name, dep)
			}
		}
	}

	return nil
}

func (m *MatrixConfig) validate(stage string) error {
	for axis, values := range m.Axes {
		if err := validateEnvKey(axis); err != nil {
			return fmt.Errorf("%w: stage %q matrix axis %q: %v", domain.ErrConfig, stage, axis, err)
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: stage %q matrix axis %q has no values", domain.ErrConfig, stage, axis)
		}
	}
	for i, leg := range m.Include {
		if len(leg) == 0 {
			return fmt.Errorf("%w: stage %q matrix include %d is empty", domain.ErrConfig, stage, i)
		}
		for _, entry := range leg {
			if _, _, err := ParseEnv(entry); err != nil {
				return fmt.Errorf("%w: stage %q matrix include %d: %v", domain.ErrConfig, stage, i, err)
			}
		}
	}
	return nil
}

func validateEnvEntries(stage string, lists ...StringList) error {
	for _, list := range lists {
		for _, entry := range list {
			if _, _, err := ParseEnv(entry); err != nil {
				return fmt.Errorf("%w: stage %q env: %v", domain.ErrConfig, stage, err)
			}
		}
	}
	return nil
}

// ParseEnv splits a "KEY=value" entry into its key and value.
func ParseEnv(entry string) (key, value string, err error) {
	eq := strings.IndexByte(entry, '=')
	if eq < 1 {
		return "", "", fmt.Errorf("invalid env entry %q, want KEY=value", entry)
	}
	key, value = entry[:eq], entry[eq+1:]
	if err := validateEnvKey(key); err != nil {
		return "", "", err
	}
	return key, value, nil
}

func validateEnvKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty env key")
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("env key %q must not start with a digit", key)
			}
		default:
			return fmt.Errorf("env key %q contains invalid character %q", key, r)
		}
	}
	return nil
}
