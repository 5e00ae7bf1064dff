package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Memory is a brute-force in-memory vector store. Each tenant gets an
// independent point map; searches scan every point, which is fine for
// tests and small corpora.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]map[string]memoryPoint
	seq     uint64
}

// memoryPoint pairs a point with its insertion sequence. Re-upserting a
// point keeps the original sequence, so equal-score ordering survives
// replacement.
type memoryPoint struct {
	Point
	seq uint64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]map[string]memoryPoint)}
}

func (m *Memory) Upsert(_ context.Context, tenantID string, points []Point) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is required", rag.ErrVectorStore)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.tenants[tenantID]
	if !ok {
		bucket = make(map[string]memoryPoint, len(points))
		m.tenants[tenantID] = bucket
	}

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: point has empty id", rag.ErrVectorStore)
		}
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec

		mp := memoryPoint{Point: p}
		if prev, ok := bucket[p.ID]; ok {
			mp.seq = prev.seq
		} else {
			m.seq++
			mp.seq = m.seq
		}
		bucket[p.ID] = mp
	}
	return nil
}

func (m *Memory) Search(_ context.Context, tenantID string, vector []float32, q Query) ([]Hit, error) {
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", rag.ErrVectorStore)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.tenants[tenantID]
	if len(bucket) == 0 {
		return []Hit{}, nil
	}

	type scoredHit struct {
		Hit
		seq uint64
	}

	scored := make([]scoredHit, 0, len(bucket))
	for _, p := range bucket {
		if !matchesFilter(p.Payload, q.Filter) {
			continue
		}
		score := cosineSimilarity(vector, p.Vector)
		if score < q.ScoreThreshold {
			continue
		}
		scored = append(scored, scoredHit{
			Hit: Hit{
				FragmentID: p.ID,
				DocumentID: p.DocumentID,
				Score:      score,
				Payload:    p.Payload,
			},
			seq: p.seq,
		})
	}

	// Descending score; equal scores resolve by insertion order.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].seq < scored[j].seq
	})

	if len(scored) > q.TopK {
		scored = scored[:q.TopK]
	}

	hits := make([]Hit, len(scored))
	for i, s := range scored {
		hits[i] = s.Hit
	}
	return hits, nil
}

func (m *Memory) DeleteDocument(_ context.Context, tenantID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.tenants[tenantID]
	for id, p := range bucket {
		if p.DocumentID == documentID {
			delete(bucket, id)
		}
	}
	return nil
}

// Count reports the number of points stored for a tenant.
func (m *Memory) Count(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants[tenantID])
}

func matchesFilter(payload map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok {
			return false
		}
		if s, ok := got.(string); !ok || s != want {
			return false
		}
	}
	return true
}

// cosineSimilarity returns similarity in [-1, 1]; mismatched or zero
// vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
