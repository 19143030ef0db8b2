// Package expression implements the engine's `${{ ... }}` substitution
// grammar (C1) and the per-run ExecutionContext it reads from (C2).
package expression

import (
	"strings"
	"sync"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// ExecutionContext holds everything a running workflow's expressions can
// reference: environment, secrets, prior step outputs, finished job
// outputs, and run/job/step identity. Behavioral contract per the data
// model: case-sensitive lookup, get-or-none, last-write-wins set, shallow
// copy on Clone. Safe for single-writer use; the executor is the only
// writer, matching "ExecutionContext inside an Executor is single-writer".
type ExecutionContext struct {
	mu sync.RWMutex

	RunID   string
	Env     map[string]string
	Secrets map[string]string

	// steps[step_id][output_name] = value
	steps map[string]map[string]string
	// jobs[job_name][output_name] = value
	jobs map[string]map[string]string

	CurrentJob  string
	CurrentStep string
}

// NewExecutionContext builds a context for a run, seeded with copies of env
// and secrets (so runs built from the same maps never see each other's
// writes) and holding no step or job outputs yet.
func NewExecutionContext(runID string, env, secrets map[string]string) *ExecutionContext {
	return &ExecutionContext{
		RunID:   runID,
		Env:     copyStringMap(env),
		Secrets: copyStringMap(secrets),
		steps:   make(map[string]map[string]string),
		jobs:    make(map[string]map[string]string),
	}
}

// Clone returns a shallow copy: top-level maps are copied one level deep so
// that concurrently scheduled workflows never observe each other's writes
// (the "context isolation" testable property), while the underlying string
// values are shared (they're immutable once written).
func (c *ExecutionContext) Clone() *ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &ExecutionContext{
		RunID:       c.RunID,
		Env:         copyStringMap(c.Env),
		Secrets:     copyStringMap(c.Secrets),
		steps:       copyNestedMap(c.steps),
		jobs:        copyNestedMap(c.jobs),
		CurrentJob:  c.CurrentJob,
		CurrentStep: c.CurrentStep,
	}
	return clone
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyNestedMap(m map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for k, v := range m {
		out[k] = copyStringMap(v)
	}
	return out
}

// SetStepOutput records an output for a step. Per the invariant, this is
// called only after the step's success/failure is known.
func (c *ExecutionContext) SetStepOutput(stepID, name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.steps[stepID]
	if !ok {
		bucket = make(map[string]string)
		c.steps[stepID] = bucket
	}
	bucket[name] = value
}

// SetJobOutput records an output for a finished job.
func (c *ExecutionContext) SetJobOutput(jobName, name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.jobs[jobName]
	if !ok {
		bucket = make(map[string]string)
		c.jobs[jobName] = bucket
	}
	bucket[name] = value
}

// StepOutput returns a prior step's output, or ("", false) if absent.
func (c *ExecutionContext) StepOutput(stepID, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket, ok := c.steps[stepID]
	if !ok {
		return "", false
	}
	v, ok := bucket[name]
	return v, ok
}

// JobOutput returns a finished job's output, or ("", false) if absent.
func (c *ExecutionContext) JobOutput(jobName, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket, ok := c.jobs[jobName]
	if !ok {
		return "", false
	}
	v, ok := bucket[name]
	return v, ok
}

// Lookup resolves one of the dot-qualified reference forms from §4.1:
// env.NAME, secrets.NAME, steps.ID.outputs.NAME, jobs.NAME.outputs.NAME,
// run.id, run.job. It is shared by both string-mode substitution and
// conditional-expression evaluation, per the "single substitution core"
// design note.
func (c *ExecutionContext) Lookup(expr string) (string, error) {
	parts := strings.Split(expr, ".")
	if len(parts) < 2 {
		return "", stageerr.New(stageerr.KindExpression, stageerr.CodeInvalidSyntax,
			"expression.lookup", "malformed reference: "+expr)
	}

	switch parts[0] {
	case "env":
		name := strings.Join(parts[1:], ".")
		c.mu.RLock()
		v, ok := c.Env[name]
		c.mu.RUnlock()
		if !ok {
			return "", unknownVar(expr)
		}
		return v, nil

	case "secrets":
		name := strings.Join(parts[1:], ".")
		c.mu.RLock()
		v, ok := c.Secrets[name]
		c.mu.RUnlock()
		if !ok {
			return "", unknownVar(expr)
		}
		return v, nil

	case "steps":
		if len(parts) < 4 || parts[2] != "outputs" {
			return "", stageerr.New(stageerr.KindExpression, stageerr.CodeInvalidSyntax,
				"expression.lookup", "malformed steps reference: "+expr)
		}
		stepID := parts[1]
		name := strings.Join(parts[3:], ".")
		v, ok := c.StepOutput(stepID, name)
		if !ok {
			return "", unknownVar(expr)
		}
		return v, nil

	case "jobs":
		if len(parts) < 4 || parts[2] != "outputs" {
			return "", stageerr.New(stageerr.KindExpression, stageerr.CodeInvalidSyntax,
				"expression.lookup", "malformed jobs reference: "+expr)
		}
		jobName := parts[1]
		name := strings.Join(parts[3:], ".")
		v, ok := c.JobOutput(jobName, name)
		if !ok {
			return "", unknownVar(expr)
		}
		return v, nil

	case "run":
		c.mu.RLock()
		defer c.mu.RUnlock()
		switch parts[1] {
		case "id":
			return c.RunID, nil
		case "job":
			if c.CurrentJob == "" {
				return "", stageerr.New(stageerr.KindExpression, stageerr.CodeMissingContext,
					"expression.lookup", "run.job referenced outside a job")
			}
			return c.CurrentJob, nil
		default:
			return "", stageerr.New(stageerr.KindExpression, stageerr.CodeMissingContext,
				"expression.lookup", "unknown run.* reference: "+expr)
		}

	default:
		return "", unknownVar(expr)
	}
}

func unknownVar(expr string) error {
	return stageerr.New(stageerr.KindExpression, stageerr.CodeUnknownVariable,
		"expression.lookup", "unknown variable reference: "+expr)
}
