package services_test

import (
	"context"
	"testing"

	"winecellar/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithNoteID(ctx, 42)
	ctx = services.WithStage(ctx, "image_upload")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.NoteIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected note id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "image_upload" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}

func TestNoteIDMissing(t *testing.T) {
	if _, ok := services.NoteIDFromContext(context.Background()); ok {
		t.Fatal("expected no note id in empty context")
	}
}
