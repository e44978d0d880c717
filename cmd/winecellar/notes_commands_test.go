package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"winecellar/internal/testsupport"
)

func decodeNotes(t *testing.T, out string) []noteJSON {
	t.Helper()
	var list []noteJSON
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode notes json: %v\n%s", err, out)
	}
	return list
}

func TestCaptureSyncsNewNote(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"capture", env.photo, "--wine", "château test", "--rating", "4", "--notes", "dry"}, env.configPath)
	if err != nil {
		t.Fatalf("capture: %v\n%s", err, out)
	}
	requireContains(t, out, "synced")
	if env.cloud.metadataCount() != 1 {
		t.Fatalf("expected one metadata post, got %d", env.cloud.metadataCount())
	}

	out, _, err = runCLI(t, []string{"notes", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("notes list: %v", err)
	}
	list := decodeNotes(t, out)
	if len(list) != 1 {
		t.Fatalf("expected 1 note, got %d", len(list))
	}
	n := list[0]
	if n.Wine != "Château Test" || n.Rating != "4.0" || n.SyncState != "synced" {
		t.Fatalf("unexpected note %+v", n)
	}
	if n.TextExtract != "CHATEAU TEST 2019" {
		t.Fatalf("expected recognized label text, got %q", n.TextExtract)
	}
	if !strings.HasPrefix(n.RemoteURI, "https://cdn.test/") {
		t.Fatalf("expected remote uri, got %q", n.RemoteURI)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.ThumbsDir(), n.Picture)); err != nil {
		t.Fatalf("expected thumbnail on disk: %v", err)
	}
}

func TestCaptureRejectsBadRating(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"capture", env.photo, "--rating", "9"}, env.configPath); err == nil {
		t.Fatal("expected out-of-range rating to fail")
	}
}

func TestSyncRetriesFailedNotes(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cloud.setFailure(http.StatusInternalServerError)

	out, _, err := runCLI(t, []string{"capture", env.photo, "--wine", "Syrah"}, env.configPath)
	if err != nil {
		t.Fatalf("capture should keep the note locally: %v", err)
	}
	requireContains(t, out, "saved locally; url_fetch failed")

	out, _, err = runCLI(t, []string{"notes", "list", "--state", "failed", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("notes list: %v", err)
	}
	if list := decodeNotes(t, out); len(list) != 1 || list[0].SyncStage != "url_fetch" {
		t.Fatalf("expected one failed note at url_fetch, got %+v", list)
	}

	if _, _, err := runCLI(t, []string{"sync"}, env.configPath); err == nil {
		t.Fatal("expected sync to report failures while the service is down")
	}

	env.cloud.setFailure(0)
	out, _, err = runCLI(t, []string{"sync"}, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	requireContains(t, out, "synced")

	out, _, err = runCLI(t, []string{"sync"}, env.configPath)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	requireContains(t, out, "Nothing to sync")
}

func TestNotesEditShowDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	note := testsupport.NewNote(t, store, "Merlot", "missing.jpg")
	id := strconv.FormatInt(note.ID, 10)

	if _, _, err := runCLI(t, []string{"notes", "edit", id}, env.configPath); err == nil {
		t.Fatal("expected edit without fields to fail")
	}
	if _, _, err := runCLI(t, []string{"notes", "edit", id, "--rating", "3.5", "--notes", "jammy"}, env.configPath); err != nil {
		t.Fatalf("notes edit: %v", err)
	}

	out, _, err := runCLI(t, []string{"notes", "show", id}, env.configPath)
	if err != nil {
		t.Fatalf("notes show: %v", err)
	}
	requireContains(t, out, "Merlot")
	requireContains(t, out, "3.5")
	requireContains(t, out, "jammy")

	out, _, err = runCLI(t, []string{"notes", "delete", id}, env.configPath)
	if err != nil {
		t.Fatalf("notes delete: %v", err)
	}
	requireContains(t, out, "deleted")
	if _, _, err := runCLI(t, []string{"notes", "show", id}, env.configPath); err == nil {
		t.Fatal("expected show of deleted note to fail")
	}
}

func TestNotesListEmptyAndSeed(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"notes", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("notes list: %v", err)
	}
	requireContains(t, out, "No notes")

	if out, _, err = runCLI(t, []string{"notes", "seed"}, env.configPath); err != nil {
		t.Fatalf("notes seed: %v", err)
	}
	requireContains(t, out, "Sample note inserted")

	out, _, err = runCLI(t, []string{"notes", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("notes list: %v", err)
	}
	requireContains(t, out, "WINE")
	requireContains(t, out, "Cabernet Sauvignon")
	requireContains(t, out, "pending")
}

func TestNotesFindRanksMatches(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.NewNote(t, store, "Barolo Riserva", "a.jpg")
	target := testsupport.NewNote(t, store, "Château Margaux", "b.jpg")

	out, _, err := runCLI(t, []string{"notes", "find", "--json", "chateau"}, env.configPath)
	if err != nil {
		t.Fatalf("notes find: %v", err)
	}
	list := decodeNotes(t, out)
	if len(list) != 1 || list[0].ID != target.ID {
		t.Fatalf("expected only note %d, got %+v", target.ID, list)
	}

	out, _, err = runCLI(t, []string{"notes", "find", "riesling"}, env.configPath)
	if err != nil {
		t.Fatalf("notes find: %v", err)
	}
	requireContains(t, out, "No notes match")
}
