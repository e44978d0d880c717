package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"winecellar/internal/notes"
	"winecellar/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label string
	color text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// paint wraps s in the escape sequence for c. Colouring is decided by the
// caller from the output stream, not by the environment.
func paint(c text.Colors, s string) string {
	return c.EscapeSeq() + s + text.Reset.EscapeSeq()
}

// renderStatusLine formats "  label:   [KIND] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	badge := "[" + style.label + "]"
	if message != "" {
		badge += " " + message
	}
	line := statusIndent + text.Pad(label+":", statusLabelWidth, ' ') + " " + badge
	if colorize {
		return paint(style.color, line)
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	if colorize {
		for i := range lines {
			lines[i] = paint(text.Colors{text.FgBlue, text.Bold}, lines[i])
		}
	}
	return lines
}

// preflightLines renders check results under a pass-count summary.
func preflightLines(results []preflight.Result, colorize bool) []string {
	failed := len(preflight.Failed(results))
	kind := statusOK
	if failed > 0 {
		kind = statusError
	}
	lines := []string{renderStatusLine("Summary", kind,
		fmt.Sprintf("%d/%d checks passed", len(results)-failed, len(results)), colorize)}
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

// syncLines renders note counts per sync state. Empty states render as info.
func syncLines(stats map[notes.SyncState]int, colorize bool) []string {
	order := []struct {
		state notes.SyncState
		label string
		kind  statusKind
	}{
		{notes.SyncSynced, "Synced", statusOK},
		{notes.SyncPending, "Pending", statusWarn},
		{notes.SyncSyncing, "Syncing", statusInfo},
		{notes.SyncFailed, "Failed", statusError},
	}
	lines := make([]string, 0, len(order))
	for _, entry := range order {
		count := stats[entry.state]
		kind := entry.kind
		if count == 0 {
			kind = statusInfo
		}
		lines = append(lines, renderStatusLine(entry.label, kind, strconv.Itoa(count), colorize))
	}
	return lines
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
