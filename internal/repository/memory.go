package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryEventCache is the in-process fallback cache. Entries expire
// lazily on read.
type MemoryEventCache struct {
	mu      sync.RWMutex
	seen    map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewMemoryEventCache(ttl time.Duration) *MemoryEventCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryEventCache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func (m *MemoryEventCache) Seen(ctx context.Context, providerEventID string) (bool, error) {
	m.mu.RLock()
	expiry, ok := m.seen[providerEventID]
	m.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if m.nowFunc().After(expiry) {
		m.mu.Lock()
		delete(m.seen, providerEventID)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (m *MemoryEventCache) MarkSeen(ctx context.Context, providerEventID string) error {
	m.mu.Lock()
	m.seen[providerEventID] = m.nowFunc().Add(m.ttl)
	m.mu.Unlock()
	return nil
}
