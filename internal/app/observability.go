package app

import (
	"context"
	"time"
)

// ContextualLogger is the context-aware logging interface the services write
// to. It is dependency-free so any backend (slog, an OpenTelemetry bridge)
// can implement it.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector receives operational metrics from the services:
// operation durations, conflict and timeout counters.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
}

// NoopLogger returns a logger that discards everything.
func NoopLogger() ContextualLogger { return noopLogger{} }

// NoopMetrics returns a collector that discards everything.
func NoopMetrics() MetricsCollector { return noopMetrics{} }

type noopLogger struct{}

func (noopLogger) DebugContext(context.Context, string, ...any) {}
func (noopLogger) InfoContext(context.Context, string, ...any)  {}
func (noopLogger) WarnContext(context.Context, string, ...any)  {}
func (noopLogger) ErrorContext(context.Context, string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) RecordDuration(string, time.Duration, map[string]string) {}
func (noopMetrics) IncrementCounter(string, map[string]string)              {}
