// Package cache provides the embedding vector cache. The cache is an
// accelerator, never a source of truth: a lost or expired entry costs a
// recompute, not correctness, so adapters swallow backend failures and
// report a miss instead of propagating errors into the pipeline.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores embedding vectors under content-hash keys with a TTL.
// Writes are idempotent (same key always carries the same vector), so
// concurrent setters need no coordination beyond an atomic set.
type Cache interface {
	// Get returns the cached vector and true on a hit. A backend failure
	// is reported as a miss.
	Get(ctx context.Context, key string) ([]float32, bool)

	// Set stores the vector with the given time-to-live.
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration)
}

type memoryEntry struct {
	vector    []float32
	expiresAt time.Time
}

// Memory is an in-process TTL key-value store. Expired entries are evicted
// lazily on access and by Purge.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return entry.vector, true
}

func (m *Memory) Set(_ context.Context, key string, vector []float32, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{vector: vector, expiresAt: m.now().Add(ttl)}
}

// Purge evicts all expired entries and returns how many were removed.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
