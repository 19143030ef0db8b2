// Package executor implements the Workflow Executor (C7): per-workflow job
// topo-sort, step dispatch, error-propagation policy, and before/after
// lifecycle hooks.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stagecraft/engine/internal/bridge"
	"github.com/stagecraft/engine/internal/dispatch"
	"github.com/stagecraft/engine/pkg/clock"
	stageerr "github.com/stagecraft/engine/pkg/errors"
	"github.com/stagecraft/engine/pkg/events"
	"github.com/stagecraft/engine/pkg/expression"
	"github.com/stagecraft/engine/pkg/workflow"
)

// Executor runs a single workflow to completion, holding exactly one
// ExecutionContext and one synthetic clock, per §3's lifecycle rules.
type Executor struct {
	Def       *workflow.Definition
	Platforms workflow.PlatformsConfig // merged: def.Platforms overridden by the scheduler's platforms_override
	Emitter   events.Emitter
	Logger    *slog.Logger

	execCtx    *expression.ExecutionContext
	clk        *clock.Clock
	cond       *expression.ConditionEvaluator
	supervisor *bridge.Supervisor

	jobSuccess map[string]bool
	browsers   map[string]*bridge.BrowserBridge
}

// New builds an Executor for a single run of def.
func New(def *workflow.Definition, platformsOverride workflow.PlatformsConfig, runID string, env, secrets map[string]string, emitter events.Emitter, logger *slog.Logger) *Executor {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	merged := workflow.MergePlatforms(def.Platforms, platformsOverride)
	return &Executor{
		Def:        def,
		Platforms:  merged,
		Emitter:    emitter,
		Logger:     logger,
		execCtx:    expression.NewExecutionContext(runID, env, secrets),
		clk:        clock.New(),
		cond:       expression.NewConditionEvaluator(),
		supervisor: bridge.NewSupervisor(merged),
		jobSuccess: make(map[string]bool),
		browsers:   make(map[string]*bridge.BrowserBridge),
	}
}

// Run executes the workflow per §4.7's seven-step sequence and tears down
// every bridge spawned along the way before returning.
func (e *Executor) Run(ctx context.Context) (*WorkflowResult, error) {
	defer func() {
		if err := e.supervisor.Teardown(); err != nil {
			e.Logger.Warn("bridge teardown failed", "workflow", e.Def.Name, "error", err)
		}
	}()

	runID := e.execCtx.RunID
	e.Emitter.Emit(events.Event{EventType: events.TypeRunStarted, RunID: runID, Timestamp: now(), WorkflowName: e.Def.Name})

	for k, v := range e.Def.Env {
		e.execCtx.Env[k] = v
	}

	result := &WorkflowResult{RunID: runID, Jobs: make(map[string]JobResult)}

	if err := e.runHookSteps(ctx, e.Def.Before, ""); err != nil {
		e.Logger.Error("workflow before-hook failed", "workflow", e.Def.Name, "error", err)
		result.Success = false
		_ = e.runHookSteps(ctx, e.Def.After, "")
		e.Emitter.Emit(events.Event{EventType: events.TypeRunCompleted, RunID: runID, Timestamp: now(),
			WorkflowName: e.Def.Name, Success: events.Success(false)})
		return result, nil
	}

	order, err := TopoSortJobs(e.Def.Jobs)
	if err != nil {
		return nil, err
	}

	overallSuccess := true
	for _, jobName := range order {
		job := e.Def.Jobs[jobName]

		if e.anyDependencyFailed(job, result) && !job.ContinueOnError {
			result.Jobs[jobName] = JobResult{Success: false, Steps: map[string]StepResult{}}
			e.jobSuccess[jobName] = false
			overallSuccess = false
			e.Emitter.Emit(events.Event{EventType: events.TypeJobCompleted, RunID: runID, Timestamp: now(),
				WorkflowName: e.Def.Name, JobName: jobName, Success: events.Success(false), Reason: "dependency failed"})
			continue
		}

		e.execCtx.CurrentJob = jobName
		if job.If != "" {
			ok, err := e.cond.Evaluate(job.If, e.execCtx, Outcome(overallSuccess))
			if err != nil {
				e.Logger.Warn("job condition evaluation failed", "job", jobName, "error", err)
			}
			if err == nil && !ok {
				continue // skip silently, no result recorded (§4.7 step 5)
			}
		}

		for k, v := range job.Env {
			e.execCtx.Env[k] = v
		}

		e.Emitter.Emit(events.Event{EventType: events.TypeJobStarted, RunID: runID, Timestamp: now(),
			WorkflowName: e.Def.Name, JobName: jobName})

		jobResult := e.runJob(ctx, job, jobName)
		result.Jobs[jobName] = jobResult
		e.jobSuccess[jobName] = jobResult.Success
		if !jobResult.Success {
			overallSuccess = false
		}

		e.Emitter.Emit(events.Event{EventType: events.TypeJobCompleted, RunID: runID, Timestamp: now(),
			WorkflowName: e.Def.Name, JobName: jobName, Success: events.Success(jobResult.Success)})
	}

	if err := e.runHookSteps(ctx, e.Def.After, ""); err != nil {
		e.Logger.Warn("workflow after-hook failed", "workflow", e.Def.Name, "error", err)
	}

	result.Success = overallSuccess
	e.Emitter.Emit(events.Event{EventType: events.TypeRunCompleted, RunID: runID, Timestamp: now(),
		WorkflowName: e.Def.Name, Success: events.Success(overallSuccess)})

	return result, nil
}

func (e *Executor) anyDependencyFailed(job workflow.Job, result *WorkflowResult) bool {
	for _, need := range job.Needs {
		if jr, ok := result.Jobs[need]; ok {
			if !jr.Success || jr.Skipped {
				return true
			}
		}
	}
	return false
}

// runJob runs job.before (abort on failure), then steps, then job.after
// (logged only), closing any browser opened for this job at the end.
func (e *Executor) runJob(ctx context.Context, job workflow.Job, jobName string) JobResult {
	defer e.closeBrowser(jobName)

	if err := e.runHookSteps(ctx, job.Before, jobName); err != nil {
		e.Logger.Error("job before-hook failed", "job", jobName, "error", err)
		return JobResult{Success: false, Steps: map[string]StepResult{}}
	}

	steps, jobSuccess := e.runSteps(ctx, job, jobName)

	if err := e.runHookSteps(ctx, job.After, jobName); err != nil {
		e.Logger.Warn("job after-hook failed", "job", jobName, "error", err)
	}

	// Job outputs are the union of its steps' outputs, last-step wins on a
	// name collision; this is how jobs.NAME.outputs.NAME resolves (§4.2).
	for i, step := range job.Steps {
		stepID := step.ID
		if stepID == "" {
			stepID = fmt.Sprintf("step-%d", i)
		}
		for name, value := range steps[stepID].Outputs {
			e.execCtx.SetJobOutput(jobName, name, value)
		}
	}

	return JobResult{Success: jobSuccess, Steps: steps}
}

// runSteps runs job.steps in order, honoring if-gating and
// continue_on_error (§4.7 "Step semantics").
func (e *Executor) runSteps(ctx context.Context, job workflow.Job, jobName string) (map[string]StepResult, bool) {
	stepsResult := make(map[string]StepResult)
	jobSuccess := true

	for i, step := range job.Steps {
		stepID := step.ID
		if stepID == "" {
			stepID = fmt.Sprintf("step-%d", i)
		}
		e.execCtx.CurrentStep = stepID

		if step.If != "" {
			ok, err := e.cond.Evaluate(step.If, e.execCtx, Outcome(jobSuccess))
			if err != nil {
				e.Logger.Warn("step condition evaluation failed", "job", jobName, "step", stepID, "error", err)
			}
			if err == nil && !ok {
				continue // skip silently
			}
		}

		res := e.dispatchStep(ctx, step, job, jobName, stepID, false)
		stepsResult[stepID] = res

		e.Emitter.Emit(events.Event{EventType: events.TypeStepCompleted, RunID: e.execCtx.RunID, Timestamp: now(),
			WorkflowName: e.Def.Name, JobName: jobName, StepName: stepID, Success: events.Success(res.Success), Error: res.Error})

		if !res.Success {
			if step.ContinueOnError || job.ContinueOnError {
				continue
			}
			jobSuccess = false
			break
		}
	}

	return stepsResult, jobSuccess
}

// runHookSteps runs a before/after step list with clock auto-advance
// suppressed (§4.7 "Hook semantics" and §9 "hook = step without
// auto-advance"). scope is the job name, or "" for a workflow-scope hook.
func (e *Executor) runHookSteps(ctx context.Context, steps []workflow.Step, scope string) error {
	for i, step := range steps {
		stepID := step.ID
		if stepID == "" {
			stepID = fmt.Sprintf("hook-%d", i)
		}

		if step.If != "" {
			ok, err := e.cond.Evaluate(step.If, e.execCtx, Outcome(true))
			if err == nil && !ok {
				continue
			}
		}

		res := e.dispatchStep(ctx, step, workflow.Job{}, scope, stepID, true)
		if !res.Success && !step.ContinueOnError {
			return stageerr.New(stageerr.KindRuntime, stageerr.CodeStepFailed, "executor.hook",
				fmt.Sprintf("hook step %q failed: %s", stepID, res.Error))
		}
	}
	return nil
}

// dispatchStep evaluates `with`, resolves the platform, dispatches to the
// appropriate adapter, persists outputs on success, and runs the
// post-dispatch clock auto-advance/broadcast for non-hook steps.
func (e *Executor) dispatchStep(ctx context.Context, step workflow.Step, job workflow.Job, jobName, stepID string, isHook bool) StepResult {
	category, action, err := dispatch.ParseUses(step.Uses)
	if err != nil {
		return StepResult{Success: false, Error: err.Error()}
	}

	platform := dispatch.ResolvePlatform(step.Platform, job.Platform, e.Def.Platform, category)
	if err := dispatch.CheckCompatible(category, platform); err != nil {
		return StepResult{Success: false, Error: err.Error()}
	}

	var outputs map[string]interface{}
	var dispatchErr error
	var calledBridge bridge.Bridge

	switch {
	case category == dispatch.CategoryWait || category == dispatch.CategoryFail ||
		category == dispatch.CategoryClock || category == dispatch.CategoryBash:
		resolved, err := e.resolveStringWith(step.With)
		if err != nil {
			return StepResult{Success: false, Error: err.Error()}
		}
		res := dispatch.DispatchBuiltin(ctx, category, action, resolved, e.clk)
		outputs, dispatchErr = res.Outputs, res.Err

	default:
		resolvedArgs, err := expression.SubstituteStructural(stepWithAsMap(step.With), e.execCtx)
		if err != nil {
			return StepResult{Success: false, Error: err.Error()}
		}
		outputs, calledBridge, dispatchErr = e.dispatchToBridge(ctx, platform, category, action, jobName, job, resolvedArgs)
	}

	if !isHook {
		e.clk.AutoAdvanceStep()
		if e.clk.IsActive() {
			e.broadcastClockSync(ctx)
		}
	}

	stringOutputs := stringifyOutputs(outputs)
	success := dispatchErr == nil
	if success {
		for name, value := range stringOutputs {
			e.execCtx.SetStepOutput(stepID, name, value)
		}
		if calledBridge != nil {
			if err := calledBridge.SyncStepOutputs(ctx, stepID, stringOutputs); err != nil && !stageerr.Is(err, stageerr.CodeUnsupportedAction) {
				e.Logger.Warn("step output sync failed", "job", jobName, "step", stepID, "error", err)
			}
		}
	}

	errMsg := ""
	if dispatchErr != nil {
		errMsg = dispatchErr.Error()
	}
	return StepResult{Success: success, Error: errMsg, Outputs: stringOutputs}
}

// dispatchToBridge routes a non-built-in category to the resolved bridge's
// matching operation (§4.5's uniform operation set, via §4.6's category
// table).
func (e *Executor) dispatchToBridge(ctx context.Context, platform string, category dispatch.Category, action string, jobName string, job workflow.Job, args interface{}) (map[string]interface{}, bridge.Bridge, error) {
	var b bridge.Bridge
	var err error

	if platform == "playwright" {
		b = e.ensureBrowserBridge(jobName, job)
	} else {
		b, err = e.supervisor.Get(platform)
		if err != nil {
			return nil, nil, err
		}
		e.setExecutionInfo(ctx, b, jobName)
	}

	switch category {
	case dispatch.CategoryCtx:
		out, err := e.dispatchCtx(ctx, b, action, args)
		return out, b, err

	case dispatch.CategoryMock:
		switch action {
		case "set":
			m, _ := args.(map[string]interface{})
			return nil, b, b.MockSet(ctx, fmt.Sprintf("%v", m["target"]), m["value"])
		case "clear":
			return nil, b, b.MockClear(ctx)
		default:
			return nil, b, stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction, "executor.dispatch_mock",
				"unknown mock action: "+action)
		}

	case dispatch.CategoryHook:
		return nil, b, b.HookCall(ctx, action)

	case dispatch.CategoryAssert:
		if action == "custom" {
			m, _ := args.(map[string]interface{})
			name := fmt.Sprintf("%v", m["name"])
			ar, err := b.AssertCustom(ctx, name, args)
			if err != nil {
				return nil, b, err
			}
			out := map[string]interface{}{"success": ar.Success, "message": ar.Message, "actual": ar.Actual, "expected": ar.Expected}
			if !ar.Success {
				return out, b, stageerr.New(stageerr.KindRuntime, stageerr.CodeAssertionFailed, "executor.dispatch_assert", ar.Message)
			}
			return out, b, nil
		}
		// Built-in assertions (assert/visible, assert/text, ...) are plain
		// named calls against whichever bridge the step resolved to.
		raw, err := b.Call(ctx, action, args)
		if err != nil {
			return nil, b, err
		}
		return rawToMap(raw), b, nil

	default:
		raw, err := b.Call(ctx, action, args)
		if err != nil {
			return nil, b, err
		}
		return rawToMap(raw), b, nil
	}
}

func (e *Executor) dispatchCtx(ctx context.Context, b bridge.Bridge, action string, args interface{}) (map[string]interface{}, error) {
	m, _ := args.(map[string]interface{})
	switch action {
	case "get":
		key := fmt.Sprintf("%v", m["key"])
		raw, found, err := b.CtxGet(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return map[string]interface{}{"found": false}, nil
		}
		return map[string]interface{}{"found": true, "value": rawToAny(raw)}, nil

	case "set":
		key := fmt.Sprintf("%v", m["key"])
		return nil, b.CtxSet(ctx, key, m["value"])

	case "clear":
		pattern := fmt.Sprintf("%v", m["pattern"])
		count, err := b.CtxClear(ctx, pattern)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"count": count}, nil

	default:
		return nil, stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction, "executor.dispatch_ctx",
			"unknown ctx action: "+action)
	}
}

func (e *Executor) ensureBrowserBridge(jobName string, job workflow.Job) *bridge.BrowserBridge {
	if b, ok := e.browsers[jobName]; ok {
		return b
	}
	headless := true
	if job.Headless != nil {
		headless = *job.Headless
	}
	b := bridge.NewBrowserBridge(job.Browser, headless)
	e.browsers[jobName] = b
	return b
}

func (e *Executor) closeBrowser(jobName string) {
	if b, ok := e.browsers[jobName]; ok {
		_ = b.Close()
		delete(e.browsers, jobName)
	}
}

// setExecutionInfo propagates run/job/step identity to a non-browser bridge
// before it handles a step, for the bridge's own logging (§4.5, §6.3
// `ctx.setExecutionInfo`). Best-effort: a bridge without context support
// returns UnsupportedAction, which is expected and not worth a warning.
func (e *Executor) setExecutionInfo(ctx context.Context, b bridge.Bridge, jobName string) {
	err := b.SetExecutionInfo(ctx, e.execCtx.RunID, jobName, e.execCtx.CurrentStep)
	if err != nil && !stageerr.Is(err, stageerr.CodeUnsupportedAction) {
		e.Logger.Warn("set execution info failed", "job", jobName, "error", err)
	}
}

// broadcastClockSync mirrors the current sync state to every bridge that
// declared clock support. Failures are warnings, not errors (§4.3, §4.7).
func (e *Executor) broadcastClockSync(ctx context.Context) {
	state := e.clk.GetSyncState()
	for _, b := range e.supervisor.BridgesWithClockSupport() {
		if err := b.SyncClock(ctx, state); err != nil {
			e.Logger.Warn("clock sync broadcast failed", "workflow", e.Def.Name, "error", err)
		}
	}
}

func (e *Executor) resolveStringWith(with map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(with))
	for k, v := range with {
		if s, ok := v.(string); ok {
			resolved, err := expression.Substitute(s, e.execCtx)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
			continue
		}
		out[k] = v
	}
	return out, nil
}

func stepWithAsMap(with map[string]interface{}) map[string]interface{} {
	if with == nil {
		return map[string]interface{}{}
	}
	return with
}

func stringifyOutputs(outputs map[string]interface{}) map[string]string {
	out := make(map[string]string, len(outputs))
	for k, v := range outputs {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprintf("%v", v)
			continue
		}
		out[k] = string(data)
	}
	return out
}

func rawToMap(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var any interface{}
	if err := json.Unmarshal(raw, &any); err == nil {
		return map[string]interface{}{"result": any}
	}
	return nil
}

func rawToAny(raw json.RawMessage) interface{} {
	var v interface{}
	_ = json.Unmarshal(raw, &v)
	return v
}

// Outcome is a convenience constructor for expression.Outcome from a plain
// bool, used throughout this file.
func Outcome(success bool) expression.Outcome {
	return expression.Outcome{Success: success}
}

func now() time.Time { return time.Now().UTC() }
