// Package events defines the run-event schema (§6.4) emitted at every
// step/job/workflow boundary. Transport is external to the engine; this
// package only defines the schema and an Emitter seam for callers to wire
// up however they like (log line, channel, HTTP push).
package events

import "time"

// Type enumerates the event kinds of the run-event schema. The executor
// emits RunStarted, RunCompleted, JobStarted, JobCompleted and
// StepCompleted; the scheduler emits none itself.
type Type string

const (
	TypeRunStarted         Type = "RunStarted"
	TypeRunCompleted       Type = "RunCompleted"
	TypeWorkflowStarted    Type = "WorkflowStarted"
	TypeWorkflowCompleted  Type = "WorkflowCompleted"
	TypeWorkflowSkipped    Type = "WorkflowSkipped"
	TypeJobStarted         Type = "JobStarted"
	TypeJobCompleted       Type = "JobCompleted"
	TypeStepStarted        Type = "StepStarted"
	TypeStepCompleted      Type = "StepCompleted"
)

// Event is the single typed payload emitted for every boundary.
type Event struct {
	EventType    Type      `json:"event_type"`
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	WorkflowName string    `json:"workflow_name,omitempty"`
	JobName      string    `json:"job_name,omitempty"`
	StepIndex    *int      `json:"step_index,omitempty"`
	StepName     string    `json:"step_name,omitempty"`
	Success      *bool     `json:"success,omitempty"`
	Error        string    `json:"error,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// Emitter receives events as they occur. Implementations must not block the
// caller for long; the executor calls Emit synchronously on its own
// goroutine.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Used when the caller hasn't wired up
// telemetry.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// ChannelEmitter forwards events onto a buffered channel for an external
// consumer to drain. Emit drops the event rather than blocking if the
// channel is full, since telemetry delivery is explicitly best-effort.
type ChannelEmitter struct {
	C chan Event
}

// NewChannelEmitter returns a ChannelEmitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	return &ChannelEmitter{C: make(chan Event, buffer)}
}

func (e *ChannelEmitter) Emit(ev Event) {
	select {
	case e.C <- ev:
	default:
	}
}

func boolPtr(b bool) *bool { return &b }

// Success returns a *bool helper for building Events.
func Success(b bool) *bool { return boolPtr(b) }

func intPtr(i int) *int { return &i }

// StepIndex returns an *int helper for building Events.
func StepIndex(i int) *int { return intPtr(i) }
