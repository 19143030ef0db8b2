package workflow

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// ProfileHooks groups lifecycle hooks by the scope they attach to, used
// inside a named profile (§6.2).
type ProfileHooks struct {
	Workflow []Step `yaml:"workflow,omitempty"`
	Job      []Step `yaml:"job,omitempty"`
	Step     []Step `yaml:"step,omitempty"`
}

// Profile is a named variant of a directory run with its own platforms
// block, run in parallel with other profiles (§4.8, §6.2).
type Profile struct {
	Platforms PlatformsConfig   `yaml:"platforms,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Before    ProfileHooks      `yaml:"before,omitempty"`
	After     ProfileHooks      `yaml:"after,omitempty"`
}

// RunnerConfig is the directory-wide scheduling configuration (§4.9, §6.2).
type RunnerConfig struct {
	Parallel  int                 `yaml:"parallel,omitempty"`
	FailFast  bool                `yaml:"fail_fast,omitempty"`
	Platforms PlatformsConfig     `yaml:"platforms,omitempty"`
	Before    []Step              `yaml:"before,omitempty"`
	After     []Step              `yaml:"after,omitempty"`
	Profiles  map[string]Profile  `yaml:"profiles,omitempty"`
}

// DefaultRunnerConfig returns the config used when no runner.yaml/.yml is
// present: parallel=4, fail_fast=false.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{Parallel: 4, FailFast: false}
}

// ApplyDefaults fills in the parallel default.
func (r *RunnerConfig) ApplyDefaults() {
	if r.Parallel == 0 {
		r.Parallel = 4
	}
}

// LoadRunnerConfig looks for runner.yaml or runner.yml in dir. If neither
// exists, DefaultRunnerConfig() is returned.
func LoadRunnerConfig(dir string) (*RunnerConfig, error) {
	for _, name := range []string{"runner.yaml", "runner.yml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, stageerr.Wrap(stageerr.KindConfiguration, stageerr.CodeParseError, "workflow.load_runner_config",
				"failed to read "+path, err)
		}

		var cfg RunnerConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, stageerr.Wrap(stageerr.KindConfiguration, stageerr.CodeParseError, "workflow.load_runner_config",
				"failed to parse "+path, err)
		}
		cfg.ApplyDefaults()
		return &cfg, nil
	}

	return DefaultRunnerConfig(), nil
}

// MergePlatforms merges a profile's platforms over the runner-level
// platforms, profile entries winning on key collision.
func MergePlatforms(base, override PlatformsConfig) PlatformsConfig {
	out := make(PlatformsConfig, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
