// Package cache provides a short-TTL key/value cache used to short-circuit
// duplicate webhook deliveries before touching durable storage.
//
// The cache is an optimization only: callers must treat a miss, an expired
// entry, or a backend failure as "consult durable storage".
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a best-effort TTL cache. Implementations never return errors;
// a failed backend behaves like a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process TTL cache for dev mode and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	// Opportunistic sweep so long-lived processes don't accumulate
	// expired entries between Sets.
	if len(m.entries) > 1024 {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
}
