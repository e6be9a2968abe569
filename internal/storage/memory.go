package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the in-memory repository variant for tests and database-less
// runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	history map[string][]HistoryItem
}

func NewMemory() *Memory {
	return &Memory{records: map[string]*Record{}, history: map[string][]HistoryItem{}}
}

func (m *Memory) CreateAssessment(_ context.Context, rec *Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	stored := *rec
	stored.ID = id
	stored.CreatedAt = time.Now().UTC()
	m.records[id] = &stored
	return id, nil
}

func (m *Memory) GetAssessment(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *Memory) AppendHistory(_ context.Context, assessmentID string, oldScore, newScore *float64, diff json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if diff == nil {
		diff = json.RawMessage(`{}`)
	}
	h := HistoryItem{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		OldScore:     oldScore,
		NewScore:     newScore,
		Diff:         diff,
		CreatedAt:    time.Now().UTC(),
	}
	m.history[assessmentID] = append(m.history[assessmentID], h)
	return h.ID, nil
}

func (m *Memory) ListHistory(_ context.Context, assessmentID string, limit int) ([]HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.history[assessmentID]
	var out []HistoryItem
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out, nil
}
