package chart

import (
	"context"
	"log/slog"
)

// Logger provides logging hooks for statechart processing. The actor runtime
// calls it for usage diagnostics and for log messages produced by actions.
type Logger interface {
	TransitionTaken(ctx context.Context, machine, from, to, event string)
	EventIgnored(ctx context.Context, machine, event, reason string)
	ActorLifecycle(ctx context.Context, machine, actorID, phase string)
	ActionMessage(ctx context.Context, machine string, msg LogMessage)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger creates a logger backed by slog.Default.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{logger: slog.Default()}
}

// NewSlogLogger creates a logger backed by the given slog logger.
func NewSlogLogger(logger *slog.Logger) *DefaultLogger {
	return &DefaultLogger{logger: logger}
}

func (l *DefaultLogger) TransitionTaken(ctx context.Context, machine, from, to, event string) {
	l.logger.DebugContext(ctx, "transition taken",
		"machine", machine,
		"from", from,
		"to", to,
		"event", event,
	)
}

func (l *DefaultLogger) EventIgnored(ctx context.Context, machine, event, reason string) {
	l.logger.WarnContext(ctx, "event ignored",
		"machine", machine,
		"event", event,
		"reason", reason,
	)
}

func (l *DefaultLogger) ActorLifecycle(ctx context.Context, machine, actorID, phase string) {
	l.logger.InfoContext(ctx, "actor lifecycle",
		"machine", machine,
		"actor", actorID,
		"phase", phase,
	)
}

func (l *DefaultLogger) ActionMessage(ctx context.Context, machine string, msg LogMessage) {
	level := slog.LevelInfo

	switch msg.Level {
	case LogDebug:
		level = slog.LevelDebug
	case LogWarn:
		level = slog.LevelWarn
	case LogError:
		level = slog.LevelError
	case LogInfo:
	}

	l.logger.Log(ctx, level, msg.Message, "machine", machine)
}

// NopLogger discards all log calls. Useful in tests and benchmarks.
type NopLogger struct{}

func (NopLogger) TransitionTaken(context.Context, string, string, string, string) {}
func (NopLogger) EventIgnored(context.Context, string, string, string)            {}
func (NopLogger) ActorLifecycle(context.Context, string, string, string)          {}
func (NopLogger) ActionMessage(context.Context, string, LogMessage)               {}
