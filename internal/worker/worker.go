// Package worker owns a named consumer identity on the job stream. Each
// iteration claims stale pending entries, reads new ones, enriches their
// payloads and runs the pipeline, then settles every entry with an ack,
// a retry increment, or a dead-letter hand-off. No entry is ever dropped
// silently.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/resq/internal/domain"
	"github.com/SirClappington/resq/internal/extract"
	"github.com/SirClappington/resq/internal/objstore"
)

const (
	idempotencyTTL = 7 * 24 * time.Hour
	retryTTL       = 24 * time.Hour
	claimBatch     = 10
	readBatch      = 1
	emptyReadYield = 50 * time.Millisecond
	errorBackoff   = time.Second
)

// Broker is the client-side protocol against the append-only log.
type Broker interface {
	EnsureGroup(ctx context.Context) error
	ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.Entry, error)
	ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]domain.Entry, error)
	Ack(ctx context.Context, id string) error
	MoveToDLQ(ctx context.Context, e domain.Entry, reason string) error
	IncrRetry(ctx context.Context, id string, ttl time.Duration) (int64, error)
	ClearRetry(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Pipeline runs one enriched job to completion. Stage-level errors are
// contained inside the returned assessment, so a call here only fails at
// the worker level (enrichment), never at the pipeline level.
type Pipeline interface {
	Run(ctx context.Context, job, resume map[string]any, seed int64) *domain.Assessment
}

type Options struct {
	Consumer    string
	MaxRetries  int64
	ClaimIdle   time.Duration
	ReadBlock   time.Duration
	DefaultSeed int64
	Bucket      string
}

type Worker struct {
	broker  Broker
	pipe    Pipeline
	objects objstore.Store
	log     *zap.Logger
	opts    Options
}

func New(broker Broker, pipe Pipeline, objects objstore.Store, log *zap.Logger, opts Options) *Worker {
	if opts.Consumer == "" {
		opts.Consumer = "worker-" + uuid.NewString()[:8]
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	return &Worker{
		broker:  broker,
		pipe:    pipe,
		objects: objects,
		log:     log.With(zap.String("consumer", opts.Consumer)),
		opts:    opts,
	}
}

// Run loops until the context is cancelled. Errors inside an iteration
// are logged and followed by a brief backoff; they never stop the loop.
// Cancellation is honored at iteration boundaries so an in-flight entry
// always reaches a settle decision.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.broker.EnsureGroup(ctx); err != nil {
		return errors.Wrap(err, "ensuring consumer group")
	}
	w.log.Info("worker starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return ctx.Err()
		default:
		}
		if err := w.runIteration(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Error("worker iteration failed", zap.Error(err))
			w.sleep(ctx, errorBackoff)
		}
	}
}

// runIteration performs one claim / read / process cycle. The ordering is
// load-bearing: stale pending entries are recovered before new work.
func (w *Worker) runIteration(ctx context.Context) error {
	w.claimStale(ctx)

	entries, err := w.broker.ReadNew(ctx, w.opts.Consumer, readBatch, w.opts.ReadBlock)
	if err != nil {
		return errors.Wrap(err, "reading new entries")
	}
	if len(entries) == 0 {
		w.sleep(ctx, emptyReadYield)
		return nil
	}
	for _, e := range entries {
		w.settle(ctx, e)
	}
	return nil
}

// claimStale reprocesses entries another consumer started but never
// acknowledged. A successful claim is settled immediately; a failed one
// stays pending for a future claim cycle by any worker.
func (w *Worker) claimStale(ctx context.Context) {
	claimed, err := w.broker.ClaimStale(ctx, w.opts.Consumer, w.opts.ClaimIdle, claimBatch)
	if err != nil {
		w.log.Error("claiming stale entries failed", zap.Error(err))
		return
	}
	for _, e := range claimed {
		w.log.Info("claimed stale entry", zap.String("entry_id", e.ID))
		if w.process(ctx, e) {
			w.ack(ctx, e.ID)
		} else {
			w.log.Warn("reclaimed entry failed processing", zap.String("entry_id", e.ID))
		}
	}
}

// settle processes a freshly delivered entry and performs the outcome
// bookkeeping: ack on success, retry increment on failure, DLQ hand-off
// once retries are exhausted.
func (w *Worker) settle(ctx context.Context, e domain.Entry) {
	if w.process(ctx, e) {
		w.ack(ctx, e.ID)
		return
	}
	retries, err := w.broker.IncrRetry(ctx, e.ID, retryTTL)
	if err != nil {
		// leave the entry pending; it will be reclaimed and retried
		w.log.Error("incrementing retry counter failed", zap.String("entry_id", e.ID), zap.Error(err))
		return
	}
	w.log.Warn("entry failed",
		zap.String("entry_id", e.ID),
		zap.Int64("retries", retries),
		zap.Int64("max_retries", w.opts.MaxRetries),
	)
	if retries < w.opts.MaxRetries {
		return
	}
	reason := fmt.Sprintf("exceeded %d retries", w.opts.MaxRetries)
	if err := w.broker.MoveToDLQ(ctx, e, reason); err != nil {
		w.log.Error("dead-letter hand-off failed", zap.String("entry_id", e.ID), zap.Error(err))
		return
	}
	w.log.Warn("entry moved to dlq", zap.String("entry_id", e.ID), zap.String("reason", reason))
	w.ack(ctx, e.ID)
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.broker.Ack(ctx, id); err != nil {
		w.log.Error("acknowledging entry failed", zap.String("entry_id", id), zap.Error(err))
		return
	}
	if err := w.broker.ClearRetry(ctx, id); err != nil {
		w.log.Error("clearing retry counter failed", zap.String("entry_id", id), zap.Error(err))
	}
}

// process handles a single entry end to end. It reports success; any
// failure (parse, idempotency marker, fetch, decode) routes the entry to
// the retry path. Panics are contained the same way.
func (w *Worker) process(ctx context.Context, e domain.Entry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("panic while processing entry", zap.String("entry_id", e.ID), zap.Any("panic", r))
			ok = false
		}
	}()

	var payload domain.JobPayload
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		w.log.Error("undecodable payload", zap.String("entry_id", e.ID), zap.Error(err))
		return false
	}

	idemKey := e.IdempotencyKey
	if idemKey == "" {
		idemKey = payload.IdempotencyKey
	}
	if idemKey != "" {
		first, err := w.broker.MarkProcessed(ctx, idemKey, idempotencyTTL)
		if err != nil {
			w.log.Error("setting idempotency marker failed", zap.String("entry_id", e.ID), zap.Error(err))
			return false
		}
		if !first {
			w.log.Info("skipping already processed entry",
				zap.String("entry_id", e.ID),
				zap.String("idempotency_key", idemKey),
			)
			return true
		}
	}

	resume := payload.ResumePayload
	if resume == nil {
		resume = map[string]any{}
	}
	if storageKey, _ := resume["storage_key"].(string); storageKey != "" {
		if !w.enrich(ctx, resume, storageKey) {
			return false
		}
	}

	seed := w.opts.DefaultSeed
	if payload.Seed != nil {
		seed = *payload.Seed
	}
	result := w.pipe.Run(ctx, payload.JobPayload, resume, seed)
	w.log.Info("entry processed",
		zap.String("entry_id", e.ID),
		zap.Float64("final_score", result.FinalScore),
		zap.Any("assessment_id", result.AssessmentID),
	)
	return true
}

// enrich fetches the referenced object and attaches extracted text to the
// resume payload. Any failure here is a processing failure and triggers
// the retry path, not a worker crash.
func (w *Worker) enrich(ctx context.Context, resume map[string]any, storageKey string) bool {
	if w.opts.Bucket == "" {
		w.log.Error("storage_key present but no bucket configured", zap.String("storage_key", storageKey))
		return false
	}
	b, err := w.objects.GetObjectBytes(ctx, w.opts.Bucket, storageKey)
	if err != nil {
		w.log.Error("fetching object failed", zap.String("storage_key", storageKey), zap.Error(err))
		return false
	}
	if len(b) == 0 {
		w.log.Warn("empty object", zap.String("storage_key", storageKey))
		return false
	}
	text, kind, err := extract.Text(b)
	if err != nil {
		w.log.Error("extracting text failed", zap.String("storage_key", storageKey), zap.Error(err))
		resume["parse_error"] = err.Error()
		return false
	}
	resume["file_text"] = text
	resume["file_type"] = kind
	return true
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
