package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestKeyStableAcrossInsertionOrder(t *testing.T) {
	a := map[string]any{}
	a["cleaned_text"] = "go developer"
	a["config"] = map[string]any{"platform": "lever", "prioritize_ats_keywords": true}
	a["ats_candidates"] = []any{"lever"}

	b := map[string]any{}
	b["ats_candidates"] = []any{"lever"}
	b["config"] = map[string]any{"prioritize_ats_keywords": true, "platform": "lever"}
	b["cleaned_text"] = "go developer"

	ka := Key("B_JD_EXTRACT", a, 42)
	kb := Key("B_JD_EXTRACT", b, 42)
	if ka != kb {
		t.Fatalf("keys differ for structurally equal payloads: %s vs %s", ka, kb)
	}
	if !strings.HasPrefix(ka, "pipeline:B_JD_EXTRACT:") {
		t.Fatalf("unexpected key prefix: %s", ka)
	}
}

func TestKeyVariesWithStageSeedAndPayload(t *testing.T) {
	payload := map[string]any{"content": "x"}
	base := Key("A_JD_NORMALIZER", payload, 42)

	if Key("B_JD_EXTRACT", payload, 42) == base {
		t.Fatal("different stage produced the same key")
	}
	if Key("A_JD_NORMALIZER", payload, 43) == base {
		t.Fatal("different seed produced the same key")
	}
	if Key("A_JD_NORMALIZER", map[string]any{"content": "y"}, 42) == base {
		t.Fatal("different payload produced the same key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	clock := time.Now()
	c.now = func() time.Time { return clock }

	if err := c.Set(ctx, "k", []byte(`{"a":1}`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected value: %s", got)
	}

	clock = clock.Add(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to be absent")
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected deleted entry to be absent")
	}
}
