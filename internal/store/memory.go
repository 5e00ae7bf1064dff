package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Memory is an in-memory Store for tests and ephemeral runs.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string]map[string]rag.Document // tenant -> id -> doc
	queries map[string][]rag.QueryRecord
	configs map[string][]rag.GenerationConfig
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]map[string]rag.Document),
		queries: make(map[string][]rag.QueryRecord),
		configs: make(map[string][]rag.GenerationConfig),
		now:     time.Now,
	}
}

func (m *Memory) CreateDocument(_ context.Context, doc *rag.Document) error {
	if doc.TenantID == "" || doc.ID == "" {
		return fmt.Errorf("document needs tenant and id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.docs[doc.TenantID]
	if !ok {
		bucket = make(map[string]rag.Document)
		m.docs[doc.TenantID] = bucket
	}
	if _, exists := bucket[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}

	d := *doc
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	d.UpdatedAt = d.CreatedAt
	bucket[doc.ID] = d
	return nil
}

func (m *Memory) GetDocument(_ context.Context, tenantID, id string) (*rag.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[tenantID][id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}
	d := doc
	return &d, nil
}

func (m *Memory) ListDocuments(_ context.Context, tenantID string) ([]rag.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]rag.Document, 0, len(m.docs[tenantID]))
	for _, d := range m.docs[tenantID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateDocumentStatus(_ context.Context, tenantID, id string, status rag.DocumentStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[tenantID][id]
	if !ok {
		return fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}

	doc.Status = status
	if status == rag.StatusFailed {
		doc.Error = errMsg
	} else {
		doc.Error = ""
	}
	doc.UpdatedAt = m.now()
	m.docs[tenantID][id] = doc
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[tenantID][id]; !ok {
		return fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}
	delete(m.docs[tenantID], id)
	return nil
}

func (m *Memory) SaveQuery(_ context.Context, rec *rag.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	m.queries[r.TenantID] = append(m.queries[r.TenantID], r)
	return nil
}

func (m *Memory) ListQueries(_ context.Context, tenantID string, limit int) ([]rag.QueryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.queries[tenantID]
	out := make([]rag.QueryRecord, len(all))
	copy(out, all)

	// Insertion order is chronological; reverse for newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SetConfig(_ context.Context, cfg *rag.GenerationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.Active {
		existing := m.configs[cfg.TenantID]
		for i := range existing {
			existing[i].Active = false
		}
	}
	m.configs[cfg.TenantID] = append(m.configs[cfg.TenantID], *cfg)
	return nil
}

func (m *Memory) GetActiveConfig(_ context.Context, tenantID string) (*rag.GenerationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cfg := range m.configs[tenantID] {
		if cfg.Active {
			c := cfg
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: no active generation config for tenant %s", rag.ErrNotFound, tenantID)
}
