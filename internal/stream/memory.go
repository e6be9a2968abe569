package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/SirClappington/resq/internal/domain"
)

// Memory reproduces the stream's consumer-group semantics in process
// memory: exclusive pending ownership, idle-based reclaim, ack+delete and
// a dead-letter list. It backs worker tests and broker-less development.
// Reads never block; an empty read returns immediately.
type Memory struct {
	mu        sync.Mutex
	seq       int64
	entries   []domain.Entry
	pending   map[string]*pendingInfo
	retries   map[string]int64
	processed map[string]bool
	dlq       []domain.DeadLetter
	now       func() time.Time
}

type pendingInfo struct {
	consumer  string
	delivered time.Time
}

func NewMemory() *Memory {
	return &Memory{
		pending:   map[string]*pendingInfo{},
		retries:   map[string]int64{},
		processed: map[string]bool{},
		now:       time.Now,
	}
}

func (m *Memory) EnsureGroup(context.Context) error { return nil }

func (m *Memory) Add(_ context.Context, payload any, idempotencyKey string) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := strconv.FormatInt(m.seq, 10) + "-0"
	m.entries = append(m.entries, domain.Entry{ID: id, Payload: string(b), IdempotencyKey: idempotencyKey})
	return id, nil
}

func (m *Memory) ReadNew(_ context.Context, consumer string, count int64, _ time.Duration) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Entry
	for _, e := range m.entries {
		if int64(len(out)) >= count {
			break
		}
		if _, owned := m.pending[e.ID]; owned {
			continue
		}
		m.pending[e.ID] = &pendingInfo{consumer: consumer, delivered: m.now()}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) ClaimStale(_ context.Context, consumer string, minIdle time.Duration, count int64) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Entry
	for _, e := range m.entries {
		if int64(len(out)) >= count {
			break
		}
		p, owned := m.pending[e.ID]
		if !owned || m.now().Sub(p.delivered) < minIdle {
			continue
		}
		p.consumer = consumer
		p.delivered = m.now()
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Ack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) MoveToDLQ(_ context.Context, e domain.Entry, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, domain.DeadLetter{OriginalID: e.ID, Payload: e.Payload, Reason: reason})
	return nil
}

func (m *Memory) IncrRetry(_ context.Context, id string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[id]++
	return m.retries[id], nil
}

func (m *Memory) ClearRetry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retries, id)
	return nil
}

func (m *Memory) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[key] {
		return false, nil
	}
	m.processed[key] = true
	return true, nil
}

func (m *Memory) ReadDLQ(_ context.Context, limit int64) ([]domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DeadLetter, 0, len(m.dlq))
	for i := len(m.dlq) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, m.dlq[i])
	}
	return out, nil
}

// Len reports how many entries remain on the primary stream.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
