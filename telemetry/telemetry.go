// Package telemetry defines the logging, metrics, and tracing ports used
// throughout the control plane. Workflow code, activities, and glue all log
// and record metrics through these interfaces rather than importing a
// concrete backend directly, so the same code runs against a noop
// implementation in tests and a real backend (zap, Prometheus, OTEL) in
// production.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log lines scoped to a context. Implementations
	// must be safe for concurrent use; workflow code may log from multiple
	// goroutines fanned out over parallel activity futures.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers. Label values are passed as
	// trailing strings in name/value pairs, mirroring the teacher's
	// lightweight metrics port rather than a typed attribute set.
	Metrics interface {
		IncCounter(name string, value float64, labels ...string)
		RecordTimer(name string, d time.Duration, labels ...string)
	}

	// Tracer creates spans for distributed tracing. StartSpan returns a
	// context carrying the new span plus the Span handle to end it.
	Tracer interface {
		StartSpan(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a single unit of tracing work. SetError marks the span as
	// failed without ending it; End finalizes it.
	Span interface {
		SetAttribute(key string, value any)
		SetError(err error)
		End()
	}
)
