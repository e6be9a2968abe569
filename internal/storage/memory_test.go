package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
)

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.CreateAssessment(ctx, &Record{
		UserID:     "u1",
		JobID:      "j1",
		FinalScore: 72.5,
		Results:    json.RawMessage(`{"stages":{}}`),
	})
	if err != nil {
		t.Fatalf("creating: %v", err)
	}

	rec, err := m.GetAssessment(ctx, id)
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if rec.UserID != "u1" || rec.FinalScore != 72.5 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}

	if _, err := m.GetAssessment(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryHistoryAppendOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.CreateAssessment(ctx, &Record{FinalScore: 50})
	if err != nil {
		t.Fatalf("creating: %v", err)
	}

	old, updated := 50.0, 65.0
	if _, err := m.AppendHistory(ctx, id, &old, &updated, json.RawMessage(`{"reason":"rescore"}`)); err != nil {
		t.Fatalf("appending: %v", err)
	}
	if _, err := m.AppendHistory(ctx, id, &updated, nil, nil); err != nil {
		t.Fatalf("appending: %v", err)
	}

	items, err := m.ListHistory(ctx, id, 10)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two history items, got %d", len(items))
	}
	// newest first
	if items[0].OldScore == nil || *items[0].OldScore != 65 {
		t.Fatalf("unexpected order: %+v", items)
	}
	if string(items[0].Diff) != `{}` {
		t.Fatalf("nil diff should default to empty object, got %s", items[0].Diff)
	}

	limited, err := m.ListHistory(ctx, id, 1)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %d items", len(limited))
	}
}
