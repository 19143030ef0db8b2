// Package log configures structured logging for the engine using slog,
// matching the field-key and env-driven configuration conventions used
// across the rest of the codebase.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Field keys attached to log records across the engine.
const (
	FieldRunID    = "run_id"
	FieldWorkflow = "workflow"
	FieldJob      = "job_id"
	FieldStep     = "step_id"
	FieldBridge   = "bridge"
	FieldPlatform = "platform"
)

// LevelTrace is a custom level below Debug for very chatty transport logs.
const LevelTrace = slog.Level(-8)

// Format selects the slog handler implementation.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls logger construction.
type Config struct {
	Level     slog.Level
	Format    Format
	Output    *os.File
	AddSource bool
}

// DefaultConfig returns the engine's baseline logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// FromEnv layers environment overrides onto DefaultConfig(), reading
// STAGECRAFT_LOG_LEVEL / LOG_LEVEL, STAGECRAFT_LOG_FORMAT / LOG_FORMAT, and
// STAGECRAFT_LOG_SOURCE.
func FromEnv() Config {
	cfg := DefaultConfig()

	if v := firstNonEmpty(os.Getenv("STAGECRAFT_LOG_LEVEL"), os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Level = parseLevel(v)
	}
	if v := firstNonEmpty(os.Getenv("STAGECRAFT_LOG_FORMAT"), os.Getenv("LOG_FORMAT")); v != "" {
		if strings.EqualFold(v, "json") {
			cfg.Format = FormatJSON
		}
	}
	if os.Getenv("STAGECRAFT_LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a configured *slog.Logger.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// WithRunContext attaches run/workflow identity fields to a logger.
func WithRunContext(l *slog.Logger, runID, workflow string) *slog.Logger {
	return l.With(FieldRunID, runID, FieldWorkflow, workflow)
}

// WithJobContext attaches a job id on top of an existing run-scoped logger.
func WithJobContext(l *slog.Logger, jobID string) *slog.Logger {
	return l.With(FieldJob, jobID)
}

// WithStepContext attaches a step id on top of an existing job-scoped logger.
func WithStepContext(l *slog.Logger, stepID string) *slog.Logger {
	return l.With(FieldStep, stepID)
}

// Trace logs at LevelTrace, used for transport-level wire tracing.
func Trace(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelTrace, msg, args...)
}

// SanitizeSecret redacts a secret value for safe inclusion in logs,
// preserving only enough to distinguish empty from non-empty.
func SanitizeSecret(v string) string {
	if v == "" {
		return ""
	}
	return "***redacted***"
}

// SanitizeMap returns a shallow copy of m with values for keys that look
// like credentials replaced by SanitizeSecret. Used before any With(...)
// call whose argument map may carry step `with` parameters.
func SanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if looksSecret(k) {
			if s, ok := v.(string); ok {
				out[k] = SanitizeSecret(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func looksSecret(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"secret", "token", "password", "api_key", "apikey", "authorization"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
