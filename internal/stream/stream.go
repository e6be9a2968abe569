// Package stream is the client-side protocol for the append-only job log:
// a Redis Stream consumed through a consumer group, with an adjacent DLQ
// stream and per-entry retry / idempotency bookkeeping.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/SirClappington/resq/internal/domain"
)

const (
	StreamKey = "assess:stream"
	GroupName = "assess:workers"
	DLQKey    = "assess:dlq"

	retryPrefix     = "retries:"
	processedPrefix = "processed:"
)

type Client struct{ rdb *r.Client }

func New(rdb *r.Client) *Client { return &Client{rdb} }

// EnsureGroup idempotently creates the stream and consumer group. A
// BUSYGROUP reply means the group already exists and is success.
func (c *Client) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, StreamKey, GroupName, "$").Err()
	if err != nil && !strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return errors.Wrap(err, "creating consumer group")
	}
	return nil
}

// Add appends a job to the stream and returns the broker-assigned id.
func (c *Client) Add(ctx context.Context, payload any, idempotencyKey string) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encoding payload")
	}
	id, err := c.rdb.XAdd(ctx, &r.XAddArgs{
		Stream: StreamKey,
		Values: map[string]any{"payload": string(b), "idempotency_key": idempotencyKey},
	}).Result()
	return id, errors.Wrap(err, "appending to stream")
}

// ReadNew blocks up to the given duration for entries newly assigned to
// this consumer. An empty read is not an error.
func (c *Client) ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.Entry, error) {
	res, err := c.rdb.XReadGroup(ctx, &r.XReadGroupArgs{
		Group:    GroupName,
		Consumer: consumer,
		Streams:  []string{StreamKey, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == r.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading stream")
	}
	var out []domain.Entry
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, entryFromMessage(m))
		}
	}
	return out, nil
}

// ClaimStale scans the pending entries list and claims ownership of those
// idle beyond minIdle. Entries whose claim is won elsewhere are skipped.
func (c *Client) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]domain.Entry, error) {
	pending, err := c.rdb.XPendingExt(ctx, &r.XPendingExtArgs{
		Stream: StreamKey,
		Group:  GroupName,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "scanning pending entries")
	}
	var ids []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	claimed, err := c.rdb.XClaim(ctx, &r.XClaimArgs{
		Stream:   StreamKey,
		Group:    GroupName,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claiming pending entries")
	}
	out := make([]domain.Entry, 0, len(claimed))
	for _, m := range claimed {
		out = append(out, entryFromMessage(m))
	}
	return out, nil
}

// Ack acknowledges an entry and deletes it from the stream.
func (c *Client) Ack(ctx context.Context, id string) error {
	pipe := c.rdb.TxPipeline()
	pipe.XAck(ctx, StreamKey, GroupName, id)
	pipe.XDel(ctx, StreamKey, id)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "acknowledging entry")
}

// MoveToDLQ appends the failed entry to the dead-letter stream.
func (c *Client) MoveToDLQ(ctx context.Context, e domain.Entry, reason string) error {
	err := c.rdb.XAdd(ctx, &r.XAddArgs{
		Stream: DLQKey,
		Values: map[string]any{
			"original_id": e.ID,
			"payload":     e.Payload,
			"reason":      reason,
		},
	}).Err()
	return errors.Wrap(err, "appending to dlq")
}

// IncrRetry atomically bumps the per-entry retry counter and refreshes
// its expiry.
func (c *Client) IncrRetry(ctx context.Context, id string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, retryPrefix+id).Result()
	if err != nil {
		return 0, errors.Wrap(err, "incrementing retry counter")
	}
	if err := c.rdb.Expire(ctx, retryPrefix+id, ttl).Err(); err != nil {
		return n, errors.Wrap(err, "setting retry counter expiry")
	}
	return n, nil
}

func (c *Client) ClearRetry(ctx context.Context, id string) error {
	return errors.Wrap(c.rdb.Del(ctx, retryPrefix+id).Err(), "clearing retry counter")
}

// MarkProcessed sets the idempotency marker if absent. It reports true
// when this call won the marker, false when the key was already handled.
func (c *Client) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, processedPrefix+key, "1", ttl).Result()
	return ok, errors.Wrap(err, "setting idempotency marker")
}

// ReadDLQ returns the newest dead-letter entries, most recent first.
func (c *Client) ReadDLQ(ctx context.Context, limit int64) ([]domain.DeadLetter, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, DLQKey, "+", "-", limit).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading dlq")
	}
	out := make([]domain.DeadLetter, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, domain.DeadLetter{
			OriginalID: str(m.Values["original_id"]),
			Payload:    str(m.Values["payload"]),
			Reason:     str(m.Values["reason"]),
		})
	}
	return out, nil
}

func entryFromMessage(m r.XMessage) domain.Entry {
	return domain.Entry{
		ID:             m.ID,
		Payload:        str(m.Values["payload"]),
		IdempotencyKey: str(m.Values["idempotency_key"]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
