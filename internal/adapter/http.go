package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/SirClappington/resq/internal/domain"
)

// HTTPOptions tunes the remote inference adapter.
type HTTPOptions struct {
	URL         string
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	BackoffMult float64
}

// HTTP posts stage invocations to a remote inference service. Transient
// failures are retried with exponential backoff before the error is
// surfaced to the facade.
type HTTP struct {
	opts   HTTPOptions
	client *http.Client
}

func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.BackoffMult <= 1 {
		opts.BackoffMult = 2
	}
	return &HTTP{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

type stageRequest struct {
	Stage string         `json:"stage"`
	Input map[string]any `json:"input"`
	Seed  int64          `json:"seed"`
}

func (h *HTTP) RunStage(ctx context.Context, stage string, payload map[string]any, seed int64) (domain.StageResult, error) {
	if h.opts.URL == "" {
		return nil, errors.New("adapter http url is not configured")
	}
	body, err := json.Marshal(stageRequest{Stage: stage, Input: payload, Seed: seed})
	if err != nil {
		return nil, errors.Wrap(err, "encoding stage request")
	}

	backoff := h.opts.Backoff
	var lastErr error
	for attempt := 0; attempt <= h.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * h.opts.BackoffMult)
		}
		res, err := h.post(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "stage %s exhausted %d retries", stage, h.opts.MaxRetries)
}

func (h *HTTP) post(ctx context.Context, body []byte) (domain.StageResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "posting stage request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out domain.StageResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decoding stage response")
	}
	return out, nil
}
