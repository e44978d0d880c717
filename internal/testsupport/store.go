package testsupport

import (
	"context"
	"testing"

	"winecellar/internal/config"
	"winecellar/internal/notes"
)

// MustOpenStore opens a notes.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...notes.Option) *notes.Store {
	t.Helper()

	store, err := notes.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("notes.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewNote creates a note for tests using the provided store.
func NewNote(t testing.TB, store *notes.Store, wine, picture string) *notes.Note {
	t.Helper()

	n := notes.New(wine, "4.0", "tasting notes", picture)
	if err := store.Create(context.Background(), n); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return n
}
