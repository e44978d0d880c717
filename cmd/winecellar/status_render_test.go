package main

import (
	"fmt"
	"strings"
	"testing"

	"winecellar/internal/notes"
	"winecellar/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("winecellard", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "winecellard:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("winecellard", statusOK, "Running", true)
	if !strings.HasPrefix(got, "\x1b[") {
		t.Fatalf("expected escape prefix, got %q", got)
	}
	if !strings.Contains(got, "[OK] Running") {
		t.Fatalf("expected badge in %q", got)
	}
	if plain := renderStatusLine("winecellard", statusOK, "Running", false); got == plain {
		t.Fatalf("expected colour codes, got %q", got)
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "Data directory", Passed: true, Detail: "/data"},
		{Name: "Content service", Passed: false, Detail: "connection refused"},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] 1/2 checks passed") {
		t.Fatalf("unexpected summary line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] /data") {
		t.Fatalf("unexpected pass line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[ERROR] connection refused") {
		t.Fatalf("unexpected failure line %q", lines[2])
	}
}

func TestSyncLinesOrderAndKinds(t *testing.T) {
	lines := syncLines(map[notes.SyncState]int{notes.SyncSynced: 4, notes.SyncFailed: 1}, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	wants := []string{"[OK] 4", "[INFO] 0", "[INFO] 0", "[ERROR] 1"}
	for i, want := range wants {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}

func TestStatusCommandOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "== Notes ==")
	requireContains(t, out, "checks passed")
}

func TestRenderTableWrapsWideColumns(t *testing.T) {
	out := renderTable([]column{{Header: "ID", Align: alignRight}, {Header: "Wine", MaxWidth: 10}},
		[][]string{{"1", "Domaine de la Romanee Conti"}})
	if !strings.Contains(out, "Domaine") || strings.Contains(out, "Domaine de la Romanee Conti") {
		t.Fatalf("expected wine column to wrap:\n%s", out)
	}
}
