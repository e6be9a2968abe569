package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/resq/internal/domain"
)

type failingRunner struct{ calls int }

func (f *failingRunner) RunStage(context.Context, string, map[string]any, int64) (domain.StageResult, error) {
	f.calls++
	return nil, errors.New("remote adapter unavailable")
}

func TestFacadeFallsBackToLocal(t *testing.T) {
	primary := &failingRunner{}
	f := NewFacade(primary, NewLocal(), zap.NewNop())

	res, err := f.RunStage(context.Background(), domain.StageJDNormalize, map[string]any{"content": "Go  Developer"}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("expected primary to be tried once, got %d", primary.calls)
	}
	if res["cleaned_text"] != "Go Developer" {
		t.Fatalf("expected local adapter result, got %v", res)
	}
}

func TestFacadeWithoutFallbackPropagates(t *testing.T) {
	f := NewFacade(&failingRunner{}, nil, zap.NewNop())
	if _, err := f.RunStage(context.Background(), domain.StageJDNormalize, nil, 42); err == nil {
		t.Fatal("expected error to propagate without fallback")
	}
}

func TestLocalAdapterDeterministic(t *testing.T) {
	l := NewLocal()
	payload := map[string]any{
		"jd":     map[string]any{"keywords": []any{"sql", "power", "bi"}},
		"resume": map[string]any{"skills": []any{"SQL", "Power BI"}},
	}
	a, err := l.RunStage(context.Background(), domain.StageMatcherScore, payload, 123)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := l.RunStage(context.Background(), domain.StageMatcherScore, payload, 123)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ: %v vs %v", a, b)
	}
	if score, _ := a.Number("score"); score != 100 {
		t.Fatalf("expected full keyword coverage, got %v", score)
	}
}

func TestLocalAdapterUnknownStage(t *testing.T) {
	if _, err := NewLocal().RunStage(context.Background(), "X_UNKNOWN", nil, 42); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestHTTPAdapterRetriesThenSucceeds(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"score": 80, "confidence": 0.9}`))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{
		URL:         srv.URL,
		Timeout:     time.Second,
		MaxRetries:  2,
		Backoff:     time.Millisecond,
		BackoffMult: 2,
	})
	res, err := h.RunStage(context.Background(), domain.StageMatcherScore, map[string]any{}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 3 {
		t.Fatalf("expected 3 requests, got %d", requests)
	}
	if score, _ := res.Number("score"); score != 80 {
		t.Fatalf("unexpected score: %v", score)
	}
}

func TestHTTPAdapterExhaustsRetries(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{URL: srv.URL, Timeout: time.Second, MaxRetries: 1, Backoff: time.Millisecond})
	if _, err := h.RunStage(context.Background(), domain.StageJDExtract, nil, 42); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
}
