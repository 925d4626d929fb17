package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.Logger to the Logger port. Keyvals are passed
// through to zap's SugaredLogger, which accepts alternating key/value pairs.
type ZapLogger struct {
	base *zap.SugaredLogger
}

// NewZapLogger wraps base as a Logger. A nil base is replaced with a no-op
// production logger so callers never need to nil-check.
func NewZapLogger(base *zap.Logger) Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{base: base.Sugar()}
}

func (l *ZapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.base.Debugw(msg, keyvals...)
}

func (l *ZapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.base.Infow(msg, keyvals...)
}

func (l *ZapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.base.Warnw(msg, keyvals...)
}

func (l *ZapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.base.Errorw(msg, keyvals...)
}
