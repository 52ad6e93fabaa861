// Package dedup suppresses duplicate trigger events at the ingress. The bus
// delivers at least once; marking event ids here keeps redelivery from
// racing the enrollment guard.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Deduper marks event ids as seen. Seen returns true when the id was already
// marked inside the retention window.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Memory is an in-process deduper for tests and single-process deployments.
type Memory struct {
	ttl  time.Duration
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemory creates an in-memory deduper retaining ids for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

func (m *Memory) Seen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	for id, markedAt := range m.seen {
		if now.Sub(markedAt) > m.ttl {
			delete(m.seen, id)
		}
	}

	if _, ok := m.seen[eventID]; ok {
		return true, nil
	}

	m.seen[eventID] = now

	return false, nil
}
