package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\x1b[90m",
	slog.LevelInfo:  "\x1b[34m",
	slog.LevelWarn:  "\x1b[33m",
	slog.LevelError: "\x1b[31m",
}

const colorReset = "\x1b[0m"

type field struct {
	key   string
	value slog.Value
}

// lockedWriter serializes writes shared by every handler derived from one
// logger.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(p)
	return err
}

// lineHandler writes one human-readable line per record:
//
//	2026-10-18 10:07:00 INFO  [pipeline] note #7/image_upload: uploading file=a.jpg
type lineHandler struct {
	out       *lockedWriter
	level     slog.Leveler
	addSource bool
	color     bool
	prefix    string
	fields    []field
}

func newLineHandler(w io.Writer, lvl slog.Leveler, addSource, color bool) *lineHandler {
	return &lineHandler{out: &lockedWriter{w: w}, level: lvl, addSource: addSource, color: color}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.fields = append([]field(nil), h.fields...)
	for _, a := range attrs {
		next.fields = appendField(next.fields, h.prefix, a)
	}
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]field(nil), h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.prefix, a)
		return true
	})

	var component, noteID, stage string
	rest := make([]field, 0, len(fields))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = firstNonEmpty(component, plainValue(f.value))
			continue
		case FieldNoteID:
			noteID = firstNonEmpty(noteID, plainValue(f.value))
			continue
		case FieldStage:
			stage = firstNonEmpty(stage, plainValue(f.value))
			continue
		}
		if i, ok := index[f.key]; ok {
			rest[i] = f
			continue
		}
		index[f.key] = len(rest)
		rest = append(rest, f)
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.Local().Format(timestampLayout))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(r.Level))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	if subject := noteSubject(noteID, stage); subject != "" {
		b.WriteString(" " + subject + ":")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" " + msg)
	for _, f := range rest {
		b.WriteString(" " + f.key + "=" + logfmtValue(f.value))
	}
	if h.addSource {
		if src := r.Source(); src != nil && src.File != "" {
			b.WriteString(" (" + sourceLocation(src) + ")")
		}
	}
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

func (h *lineHandler) levelLabel(level slog.Level) string {
	base := slog.LevelDebug
	switch {
	case level >= slog.LevelError:
		base = slog.LevelError
	case level >= slog.LevelWarn:
		base = slog.LevelWarn
	case level >= slog.LevelInfo:
		base = slog.LevelInfo
	}
	label := base.String()
	label += strings.Repeat(" ", 5-len(label))
	if !h.color {
		return label
	}
	return levelColors[base] + label + colorReset
}

func appendField(dst []field, prefix string, a slog.Attr) []field {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		next := prefix
		if a.Key != "" {
			next = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			dst = appendField(dst, next, ga)
		}
		return dst
	}
	return append(dst, field{key: prefix + a.Key, value: v})
}

func noteSubject(noteID, stage string) string {
	switch {
	case noteID != "" && stage != "":
		return "note #" + noteID + "/" + stage
	case noteID != "":
		return "note #" + noteID
	default:
		return stage
	}
}

func firstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return strings.TrimSpace(candidate)
}
