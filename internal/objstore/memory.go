package objstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a bucket/key pair is absent.
var ErrNotFound = errors.New("object not found")

// Memory is a map-backed Store for tests and broker-less runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory { return &Memory{objects: map[string][]byte{}} }

func (m *Memory) Put(bucket, key string, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), b...)
}

func (m *Memory) GetObjectBytes(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", bucket, key)
	}
	return append([]byte(nil), b...), nil
}
