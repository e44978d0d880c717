package services

import "context"

type contextKey int

const (
	noteIDKey contextKey = iota
	stageKey
	requestIDKey
)

// WithNoteID tags ctx with the note being processed.
func WithNoteID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, noteIDKey, id)
}

func NoteIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(noteIDKey).(int64)
	return id, ok
}

// WithStage tags ctx with a sync stage name. Empty names leave ctx untouched.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithRequestID tags ctx with the correlation id shared by one sync run.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	s, ok := ctx.Value(key).(string)
	return s, ok && s != ""
}
