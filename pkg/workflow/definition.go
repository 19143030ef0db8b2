// Package workflow defines the YAML data model (§3, §6.1/§6.2) and loads it
// from a directory of workflow files and an optional runner config.
package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// Platform names the seven known backends.
type Platform string

const (
	PlatformPlaywright Platform = "playwright"
	PlatformNodeJS      Platform = "nodejs"
	PlatformRust        Platform = "rust"
	PlatformPython      Platform = "python"
	PlatformJava        Platform = "java"
	PlatformGo          Platform = "go"
	PlatformWeb         Platform = "web"
)

// DependsOn accepts the two surface forms from §4.9: a bare sequence of
// workflow names, or an object with explicit workflows/always keys. Both
// unmarshal to the same type.
type DependsOn struct {
	Workflows []string `yaml:"workflows"`
	Always    bool     `yaml:"always"`
}

// UnmarshalYAML implements the bare-sequence-or-object ergonomic surface.
func (d *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		d.Workflows = names
		d.Always = false
		return nil

	case yaml.MappingNode:
		type alias DependsOn
		var a alias
		if err := value.Decode(&a); err != nil {
			return err
		}
		*d = DependsOn(a)
		return nil

	default:
		return fmt.Errorf("depends_on: expected sequence or mapping, got %v", value.Kind)
	}
}

// RetryPolicy configures step retries.
type RetryPolicy struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMS     int `yaml:"delay"`
}

// ApplyDefaults fills in the retry policy's default delay.
func (r *RetryPolicy) ApplyDefaults() {
	if r.DelayMS == 0 {
		r.DelayMS = 1000
	}
}

// Step is a single unit of dispatch (§3, §6.1).
type Step struct {
	Name            string                 `yaml:"name,omitempty"`
	Platform        string                 `yaml:"platform,omitempty"`
	Uses            string                 `yaml:"uses"`
	ID              string                 `yaml:"id,omitempty"`
	With            map[string]interface{} `yaml:"with,omitempty"`
	Env             map[string]string      `yaml:"env,omitempty"`
	If              string                 `yaml:"if,omitempty"`
	TimeoutMS       *int                   `yaml:"timeout,omitempty"`
	ContinueOnError bool                   `yaml:"continue_on_error,omitempty"`
	Retry           *RetryPolicy           `yaml:"retry,omitempty"`
}

// Validate checks structural requirements on a Step.
func (s *Step) Validate(path string) error {
	if s.Uses == "" {
		return stageerr.New(stageerr.KindSchema, stageerr.CodeParseError, "workflow.validate",
			fmt.Sprintf("%s: step missing required field 'uses'", path))
	}
	return nil
}

// Job is a named group of steps within a workflow (§3, §6.1).
type Job struct {
	Name            string                 `yaml:"name,omitempty"`
	Platform        string                 `yaml:"platform,omitempty"`
	Browser         string                 `yaml:"browser,omitempty"`
	Headless        *bool                  `yaml:"headless,omitempty"`
	Viewport        map[string]interface{} `yaml:"viewport,omitempty"`
	Needs           []string               `yaml:"needs,omitempty"`
	If              string                 `yaml:"if,omitempty"`
	Env             map[string]string      `yaml:"env,omitempty"`
	Before          []Step                 `yaml:"before,omitempty"`
	After           []Step                 `yaml:"after,omitempty"`
	Steps           []Step                 `yaml:"steps"`
	ContinueOnError bool                   `yaml:"continue_on_error,omitempty"`
	TimeoutMS       *int                   `yaml:"timeout,omitempty"`
}

// PlatformConfig is the per-platform configuration entry in PlatformsConfig.
// Its schema is platform-specific in the original system (registry path,
// jar/main-class, binary, env map, lifecycle hooks, HTTP base URL/auth);
// this struct is a superset covering every platform's fields, unused ones
// simply staying zero.
type PlatformConfig struct {
	Command    string            `yaml:"command,omitempty"`
	Args       []string          `yaml:"args,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty"`

	Registry  string `yaml:"registry,omitempty"`
	Jar       string `yaml:"jar,omitempty"`
	MainClass string `yaml:"main_class,omitempty"`
	Binary    string `yaml:"binary,omitempty"`

	BaseURL        string            `yaml:"base_url,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Auth           *AuthConfig       `yaml:"auth,omitempty"`
	TimeoutMS      int               `yaml:"timeout,omitempty"`
	MaxAttempts    int               `yaml:"max_attempts,omitempty"`
	InitialDelayMS int               `yaml:"initial_delay_ms,omitempty"`
	MaxDelayMS     int               `yaml:"max_delay_ms,omitempty"`
	RetryOnStatus  []int             `yaml:"retry_on_status,omitempty"`

	Before []Step `yaml:"before,omitempty"`
	After  []Step `yaml:"after,omitempty"`
}

// AuthConfig describes HTTP bridge authentication (§4.5): bearer, basic, or
// an API key header. OAuth2 fields are accepted but not applied by this
// component, per the spec's explicit carve-out.
type AuthConfig struct {
	Type         string `yaml:"type,omitempty"` // "bearer" | "basic" | "api_key" | "oauth2"
	Token        string `yaml:"token,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	APIKeyHeader string `yaml:"api_key_header,omitempty"`
	APIKeyValue  string `yaml:"api_key_value,omitempty"`

	OAuth2ClientID     string `yaml:"oauth2_client_id,omitempty"`
	OAuth2ClientSecret string `yaml:"oauth2_client_secret,omitempty"`
	OAuth2TokenURL     string `yaml:"oauth2_token_url,omitempty"`
}

// PlatformsConfig holds at most one entry per platform.
type PlatformsConfig map[string]PlatformConfig

// Definition is the top-level parsed workflow document (§3, §6.1).
type Definition struct {
	Name      string          `yaml:"name"`
	DependsOn DependsOn       `yaml:"depends_on,omitempty"`
	Platform  string          `yaml:"platform,omitempty"`
	Platforms PlatformsConfig `yaml:"platforms,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Before    []Step          `yaml:"before,omitempty"`
	After     []Step          `yaml:"after,omitempty"`
	Jobs      map[string]Job  `yaml:"jobs"`

	// SourcePath is the originating file, attached after parse for error
	// reporting; not part of the YAML surface.
	SourcePath string `yaml:"-"`
}

// UnmarshalYAML rejects the deprecated plural "triggers"-style top-level key
// some earlier workflow documents used, matching the teacher's pattern of
// guarding against stale surface forms during decode.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	type alias Definition
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	for i := 0; i < len(value.Content)-1; i += 2 {
		if value.Content[i].Value == "triggers" {
			return fmt.Errorf("workflow: 'triggers' is not a supported top-level key; use 'jobs'")
		}
	}
	*d = Definition(a)
	return nil
}

// ParseDefinition parses a single workflow YAML document.
func ParseDefinition(data []byte, sourcePath string) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, stageerr.Wrap(stageerr.KindSchema, stageerr.CodeParseError, "workflow.parse",
			fmt.Sprintf("%s: %v", sourcePath, err), err)
	}
	def.SourcePath = sourcePath
	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ApplyDefaults fills in retry-policy defaults and normalizes job names.
func (d *Definition) ApplyDefaults() {
	for name, job := range d.Jobs {
		if job.Name == "" {
			job.Name = name
		}
		for i := range job.Steps {
			if job.Steps[i].Retry != nil {
				job.Steps[i].Retry.ApplyDefaults()
			}
		}
		d.Jobs[name] = job
	}
}

// Validate checks the invariants of §3: job name uniqueness (guaranteed by
// the map type itself), step id uniqueness within a job, and that every
// `needs` entry resolves to a job in the same workflow.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return stageerr.New(stageerr.KindSchema, stageerr.CodeParseError, "workflow.validate",
			fmt.Sprintf("%s: workflow missing required field 'name'", d.SourcePath))
	}

	for jobName, job := range d.Jobs {
		seen := make(map[string]bool)
		for i, step := range job.Steps {
			path := fmt.Sprintf("%s: job %q step %d", d.SourcePath, jobName, i)
			if err := step.Validate(path); err != nil {
				return err
			}
			if step.ID == "" {
				continue
			}
			if seen[step.ID] {
				return stageerr.New(stageerr.KindSchema, stageerr.CodeParseError, "workflow.validate",
					fmt.Sprintf("%s: duplicate step id %q in job %q", d.SourcePath, step.ID, jobName))
			}
			seen[step.ID] = true
		}

		for _, need := range job.Needs {
			if _, ok := d.Jobs[need]; !ok {
				return stageerr.New(stageerr.KindGraph, stageerr.CodeJobNotFound, "workflow.validate",
					fmt.Sprintf("%s: job %q needs unknown job %q", d.SourcePath, jobName, need))
			}
		}
	}

	return nil
}
