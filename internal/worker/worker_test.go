package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SirClappington/resq/internal/domain"
	"github.com/SirClappington/resq/internal/objstore"
	"github.com/SirClappington/resq/internal/stream"
)

type stubPipeline struct {
	runs    int
	seeds   []int64
	resumes []map[string]any
}

func (p *stubPipeline) Run(_ context.Context, _, resume map[string]any, seed int64) *domain.Assessment {
	p.runs++
	p.seeds = append(p.seeds, seed)
	p.resumes = append(p.resumes, resume)
	return &domain.Assessment{FinalScore: 50}
}

func newTestWorker(b Broker, p Pipeline, o objstore.Store, opts Options) *Worker {
	if opts.Consumer == "" {
		opts.Consumer = "test-worker"
	}
	return New(b, p, o, zap.NewNop(), opts)
}

func TestWorkerProcessesAndAcks(t *testing.T) {
	ctx := context.Background()
	broker := stream.NewMemory()
	pipe := &stubPipeline{}
	w := newTestWorker(broker, pipe, objstore.NewMemory(), Options{MaxRetries: 2})

	if _, err := broker.Add(ctx, domain.JobPayload{
		JobPayload:    map[string]any{"raw_text": "x"},
		ResumePayload: map[string]any{"file_text": "y"},
	}, ""); err != nil {
		t.Fatalf("adding entry: %v", err)
	}

	if err := w.runIteration(ctx); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if pipe.runs != 1 {
		t.Fatalf("expected one pipeline run, got %d", pipe.runs)
	}
	if broker.Len() != 0 {
		t.Fatalf("entry not removed from stream: %d remaining", broker.Len())
	}
}

func TestWorkerSkipsDuplicateDeliveries(t *testing.T) {
	ctx := context.Background()
	broker := stream.NewMemory()
	pipe := &stubPipeline{}
	w := newTestWorker(broker, pipe, objstore.NewMemory(), Options{MaxRetries: 2})

	payload := domain.JobPayload{
		JobPayload:     map[string]any{"raw_text": "x"},
		ResumePayload:  map[string]any{"file_text": "y"},
		IdempotencyKey: "job-1",
	}
	for i := 0; i < 2; i++ {
		if _, err := broker.Add(ctx, payload, payload.IdempotencyKey); err != nil {
			t.Fatalf("adding entry: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		if err := w.runIteration(ctx); err != nil {
			t.Fatalf("iteration failed: %v", err)
		}
	}
	// the duplicate is acknowledged without a second pipeline run
	if pipe.runs != 1 {
		t.Fatalf("expected one pipeline run, got %d", pipe.runs)
	}
	if broker.Len() != 0 {
		t.Fatalf("duplicate not acknowledged: %d remaining", broker.Len())
	}
}

func TestWorkerDeadLettersAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	broker := stream.NewMemory()
	pipe := &stubPipeline{}
	// empty object store makes enrichment fail every time
	w := newTestWorker(broker, pipe, objstore.NewMemory(), Options{MaxRetries: 1, Bucket: "resumes"})

	if _, err := broker.Add(ctx, domain.JobPayload{
		JobPayload:    map[string]any{"raw_text": "x"},
		ResumePayload: map[string]any{"storage_key": "missing.pdf"},
	}, ""); err != nil {
		t.Fatalf("adding entry: %v", err)
	}

	if err := w.runIteration(ctx); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if pipe.runs != 0 {
		t.Fatalf("pipeline must not run on enrichment failure, got %d runs", pipe.runs)
	}
	letters, err := broker.ReadDLQ(ctx, 10)
	if err != nil {
		t.Fatalf("reading dlq: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(letters))
	}
	if letters[0].Reason != "exceeded 1 retries" {
		t.Fatalf("unexpected reason: %q", letters[0].Reason)
	}
	if broker.Len() != 0 {
		t.Fatalf("dead-lettered entry still on stream: %d remaining", broker.Len())
	}
}

func TestWorkerReclaimsStaleEntries(t *testing.T) {
	ctx := context.Background()
	broker := stream.NewMemory()
	pipe := &stubPipeline{}

	if _, err := broker.Add(ctx, domain.JobPayload{
		JobPayload:    map[string]any{"raw_text": "x"},
		ResumePayload: map[string]any{"file_text": "y"},
	}, ""); err != nil {
		t.Fatalf("adding entry: %v", err)
	}
	// deliver to a consumer that then disappears
	if _, err := broker.ReadNew(ctx, "dead-consumer", 1, 0); err != nil {
		t.Fatalf("delivering entry: %v", err)
	}

	w := newTestWorker(broker, pipe, objstore.NewMemory(), Options{Consumer: "survivor", MaxRetries: 2, ClaimIdle: 0})
	if err := w.runIteration(ctx); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if pipe.runs != 1 {
		t.Fatalf("reclaimed entry not processed: %d runs", pipe.runs)
	}
	if broker.Len() != 0 {
		t.Fatalf("reclaimed entry not acknowledged: %d remaining", broker.Len())
	}
}

func TestWorkerEnrichesFromObjectStore(t *testing.T) {
	ctx := context.Background()
	broker := stream.NewMemory()
	pipe := &stubPipeline{}
	objects := objstore.NewMemory()
	objects.Put("resumes", "cv.txt", []byte("SKILLS\nSQL, Power BI"))
	w := newTestWorker(broker, pipe, objects, Options{MaxRetries: 2, Bucket: "resumes"})

	if _, err := broker.Add(ctx, domain.JobPayload{
		JobPayload:    map[string]any{"raw_text": "x"},
		ResumePayload: map[string]any{"storage_key": "cv.txt"},
	}, ""); err != nil {
		t.Fatalf("adding entry: %v", err)
	}
	if err := w.runIteration(ctx); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if pipe.runs != 1 {
		t.Fatalf("expected one pipeline run, got %d", pipe.runs)
	}
	resume := pipe.resumes[0]
	if resume["file_text"] != "SKILLS\nSQL, Power BI" {
		t.Fatalf("extracted text not attached: %v", resume["file_text"])
	}
	if resume["file_type"] != "txt" {
		t.Fatalf("unexpected file type: %v", resume["file_type"])
	}
}

func TestWorkerSeedPlumbing(t *testing.T) {
	ctx := context.Background()
	broker := stream.NewMemory()
	pipe := &stubPipeline{}
	w := newTestWorker(broker, pipe, objstore.NewMemory(), Options{MaxRetries: 2, DefaultSeed: 42})

	seed := int64(777)
	payloads := []domain.JobPayload{
		{JobPayload: map[string]any{"raw_text": "a"}, ResumePayload: map[string]any{"file_text": "y"}},
		{JobPayload: map[string]any{"raw_text": "b"}, ResumePayload: map[string]any{"file_text": "y"}, Seed: &seed},
	}
	for _, p := range payloads {
		if _, err := broker.Add(ctx, p, ""); err != nil {
			t.Fatalf("adding entry: %v", err)
		}
	}
	for range payloads {
		if err := w.runIteration(ctx); err != nil {
			t.Fatalf("iteration failed: %v", err)
		}
	}
	if len(pipe.seeds) != 2 || pipe.seeds[0] != 42 || pipe.seeds[1] != 777 {
		t.Fatalf("unexpected seeds: %v", pipe.seeds)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	broker := stream.NewMemory()
	w := newTestWorker(broker, &stubPipeline{}, objstore.NewMemory(), Options{MaxRetries: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("unexpected exit error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
