package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertSearch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{1, 0, 0}},
		{ID: "f2", DocumentID: "d1", Vector: []float32{0, 1, 0}},
		{ID: "f3", DocumentID: "d2", Vector: []float32{0.9, 0.1, 0}},
	}))

	hits, err := m.Search(ctx, "acme", []float32{1, 0, 0}, Query{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "f1", hits[0].FragmentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "f3", hits[1].FragmentID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemory_TenantIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{1, 0}},
	}))
	require.NoError(t, m.Upsert(ctx, "globex", []Point{
		{ID: "g1", DocumentID: "d9", Vector: []float32{1, 0}},
	}))

	hits, err := m.Search(ctx, "globex", []float32{1, 0}, Query{TopK: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "g1", hits[0].FragmentID)

	hits, err = m.Search(ctx, "unknown", []float32{1, 0}, Query{TopK: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemory_UpsertReplacesInPlace(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{1, 0}},
	}))
	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{0, 1}},
	}))

	assert.Equal(t, 1, m.Count("acme"))

	hits, err := m.Search(ctx, "acme", []float32{0, 1}, Query{TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestMemory_ScoreThreshold(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{1, 0}},
	}))

	// A threshold above the maximum possible similarity filters everything.
	hits, err := m.Search(ctx, "acme", []float32{1, 0}, Query{TopK: 5, ScoreThreshold: 1.1})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = m.Search(ctx, "acme", []float32{1, 0}, Query{TopK: 5, ScoreThreshold: 0.9})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemory_StableTieOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "b", DocumentID: "d1", Vector: []float32{1, 0}},
		{ID: "a", DocumentID: "d1", Vector: []float32{1, 0}},
		{ID: "c", DocumentID: "d1", Vector: []float32{1, 0}},
	}))

	// Equal scores resolve by insertion order.
	for i := 0; i < 5; i++ {
		hits, err := m.Search(ctx, "acme", []float32{1, 0}, Query{TopK: 3})
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "b", hits[0].FragmentID)
		assert.Equal(t, "a", hits[1].FragmentID)
		assert.Equal(t, "c", hits[2].FragmentID)
	}

	// Re-upserting a point keeps its original position.
	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "b", DocumentID: "d1", Vector: []float32{1, 0}},
	}))
	hits, err := m.Search(ctx, "acme", []float32{1, 0}, Query{TopK: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "b", hits[0].FragmentID)
	assert.Equal(t, "a", hits[1].FragmentID)
	assert.Equal(t, "c", hits[2].FragmentID)
}

func TestMemory_PayloadFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{1, 0}, Payload: map[string]any{"lang": "en"}},
		{ID: "f2", DocumentID: "d2", Vector: []float32{1, 0}, Payload: map[string]any{"lang": "es"}},
	}))

	hits, err := m.Search(ctx, "acme", []float32{1, 0}, Query{
		TopK:   10,
		Filter: map[string]string{"lang": "es"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "f2", hits[0].FragmentID)
}

func TestMemory_DeleteDocument(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "acme", []Point{
		{ID: "f1", DocumentID: "d1", Vector: []float32{1, 0}},
		{ID: "f2", DocumentID: "d1", Vector: []float32{0, 1}},
		{ID: "f3", DocumentID: "d2", Vector: []float32{1, 1}},
	}))

	require.NoError(t, m.DeleteDocument(ctx, "acme", "d1"))
	assert.Equal(t, 1, m.Count("acme"))

	// Deleting an unknown document is a no-op.
	require.NoError(t, m.DeleteDocument(ctx, "acme", "missing"))
	require.NoError(t, m.DeleteDocument(ctx, "nobody", "d1"))
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tenant := fmt.Sprintf("tenant-%d", n%2)
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("p-%d-%d", n, j)
				err := m.Upsert(ctx, tenant, []Point{
					{ID: id, DocumentID: "d", Vector: []float32{1, float32(j)}},
				})
				assert.NoError(t, err)
				_, err = m.Search(ctx, tenant, []float32{1, 0}, Query{TopK: 3})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, m.Count("tenant-0"))
	assert.Equal(t, 200, m.Count("tenant-1"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}), "mismatched lengths")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}), "zero vector")
}
