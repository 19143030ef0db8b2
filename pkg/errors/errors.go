// Package errors defines the typed error taxonomy used across the engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind groups errors into the categories the engine's callers branch on.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindSchema        Kind = "schema"
	KindGraph         Kind = "graph"
	KindExpression    Kind = "expression"
	KindTransport     Kind = "transport"
	KindRuntime       Kind = "runtime"
)

// Code names the specific error condition within a Kind, per the taxonomy
// in §7 of the specification this engine implements.
type Code string

const (
	// Configuration
	CodeMissingPlatformConfig Code = "missing_platform_config"
	CodeBadBridgeConfig       Code = "bad_bridge_config"
	CodeInvalidTimeFormat     Code = "invalid_time_format"
	CodeInvalidDurationFormat Code = "invalid_duration_format"
	CodeInvalidTimezone       Code = "invalid_timezone"

	// Schema
	CodeParseError       Code = "parse_error"
	CodeUnknownAction    Code = "unknown_action"
	CodePlatformMismatch Code = "platform_mismatch"
	CodeMissingParameter Code = "missing_parameter"
	CodeInvalidParameter Code = "invalid_parameter"

	// Graph
	CodeJobNotFound         Code = "job_not_found"
	CodeCircularDependency  Code = "circular_dependency"
	CodeMissingDependency   Code = "missing_dependency"
	CodeCyclicDependency    Code = "cyclic_dependency"
	CodeDuplicateName       Code = "duplicate_name"

	// Expression
	CodeUnknownVariable Code = "unknown_variable"
	CodeInvalidSyntax   Code = "invalid_syntax"
	CodeMissingContext  Code = "missing_context"

	// Transport
	CodeStartupFailed    Code = "startup_failed"
	CodeDisconnected     Code = "disconnected"
	CodeTimeout          Code = "timeout"
	CodeServerError      Code = "server_error"
	CodeUnsupportedAction Code = "unsupported_action"

	// Runtime
	CodeStepFailed      Code = "step_failed"
	CodeJobFailed       Code = "job_failed"
	CodeAssertionFailed Code = "assertion_failed"
	CodeHTTPError       Code = "http_error"
)

// StageError is the engine's single error type. Callers branch on Kind/Code
// via errors.As rather than type-switching over distinct Go types, matching
// the "kinds, not types" framing of the taxonomy this implements.
type StageError struct {
	Kind    Kind
	Code    Code
	Op      string // the operation that failed, e.g. "clock.forward_until"
	Message string
	Cause   error

	// Status carries CodeHTTPError's status; Message carries its message.
	Status int
}

func (e *StageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// New builds a StageError with no underlying cause.
func New(kind Kind, code Code, op, message string) *StageError {
	return &StageError{Kind: kind, Code: code, Op: op, Message: message}
}

// Wrap builds a StageError that carries an underlying cause.
func Wrap(kind Kind, code Code, op, message string, cause error) *StageError {
	return &StageError{Kind: kind, Code: code, Op: op, Message: message, Cause: cause}
}

// HTTPError builds the Runtime/HttpError variant with its status code.
func HTTPError(op string, status int, message string) *StageError {
	return &StageError{Kind: KindRuntime, Code: CodeHTTPError, Op: op, Message: message, Status: status}
}

// Is reports whether err is a StageError with the given code.
func Is(err error, code Code) bool {
	var se *StageError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}
