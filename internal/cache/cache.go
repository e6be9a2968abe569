// Package cache holds previously computed stage results keyed by a
// deterministic content fingerprint. The pipeline must stay correct when
// the cache is unavailable, so writes are best-effort at the call site.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Cache interface {
	// Get returns the stored value and whether the key was present.
	// Absence is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key derives the cache key for a stage invocation. The payload is
// canonicalized (sorted map keys, compact separators) so structurally
// equal payloads map to the same key regardless of construction order.
func Key(stage string, payload map[string]any, seed int64) string {
	b, err := json.Marshal(payload)
	if err != nil {
		// non-serializable values should not reach the cache; fall back to
		// a stable textual rendering rather than failing the lookup
		b = []byte(fmt.Sprintf("%v", payload))
	}
	sum := sha256.Sum256([]byte(stage + "|" + strconv.FormatInt(seed, 10) + "|" + string(b)))
	return "pipeline:" + stage + ":" + hex.EncodeToString(sum[:])
}
