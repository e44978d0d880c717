// Package logging builds the slog loggers used by the CLI and the daemon.
//
// Console output is one line per record: timestamp, level, component, the
// note/stage subject pulled from the context, the message, then logfmt
// fields. JSON output keeps slog's encoder with shorter keys. WithContext
// tags a logger with the note id, stage and correlation id carried by a
// context.
package logging
