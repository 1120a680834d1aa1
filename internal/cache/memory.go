package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Memory is a map-backed Store. Not durable — used in tests and when no
// cache path is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time // overridable in tests
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key, identity string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !e.live(m.now(), identity) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value json.RawMessage, identity string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{
		Value:    value,
		Identity: identity,
		CachedAt: m.now().Unix(),
		TTL:      int64(ttl / time.Second),
	}
	return nil
}

func (m *Memory) Sweep(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }
