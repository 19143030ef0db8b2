package executor

// StepResult is the outcome of running (or skipping) a single step.
type StepResult struct {
	Success bool
	Skipped bool
	Error   string
	Outputs map[string]string
}

// JobResult is the outcome of running (or skipping) a single job.
type JobResult struct {
	Success bool
	Skipped bool
	Steps   map[string]StepResult
}

// WorkflowResult is the outcome of a single workflow run (§4.7 step 7).
type WorkflowResult struct {
	RunID   string
	Success bool
	Jobs    map[string]JobResult
}
