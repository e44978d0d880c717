package logging

import (
	"context"
	"log/slog"
	"time"

	"winecellar/internal/services"
)

// Standard field keys. The console handler lifts component, note_id and stage
// into the line header.
const (
	FieldComponent     = "component"
	FieldNoteID        = "note_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
)

const defaultErrorHint = "check the daemon log for details"

func String(key, value string) slog.Attr { return slog.String(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Any(key string, value any) slog.Attr { return slog.Any(key, value) }

// Error renders err under the "error" key; a nil error is logged explicitly.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attrs for the variadic slog.Logger methods.
func Args(attrs ...slog.Attr) []any {
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}

func NewNop() *slog.Logger {
	return slog.New(discardHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields a
// no-op base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}

// WithContext returns logger tagged with the note id, stage and correlation
// id found in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var attrs []any
	if id, ok := services.NoteIDFromContext(ctx); ok {
		attrs = append(attrs, slog.Int64(FieldNoteID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldCorrelationID, rid))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// WarnWithContext logs a warning classified by eventType. Missing hint and
// impact fields get generic values so every warning can be filtered the same
// way.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, defaultErrorHint)
	attrs = withDefault(attrs, FieldImpact, "note kept locally, sync may be incomplete")
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error classified by eventType.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, defaultErrorHint)
	logger.Error(msg, Args(attrs...)...)
}

func withDefault(attrs []slog.Attr, key, value string) []slog.Attr {
	for _, a := range attrs {
		if a.Key == key {
			return attrs
		}
	}
	return append(attrs, slog.String(key, value))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler { return d }
func (d discardHandler) WithGroup(string) slog.Handler { return d }
