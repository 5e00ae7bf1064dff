//go:build integration

package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a running Qdrant instance:
//
//	docker run -p 6334:6334 qdrant/qdrant
//	go test -tags integration ./internal/vectorstore/

const testDimension = 4

func newTestQdrant(t *testing.T) *QdrantStore {
	t.Helper()

	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := os.Getenv("QDRANT_PORT"); p != "" {
		parsed, err := strconv.Atoi(p)
		require.NoError(t, err)
		port = parsed
	}

	s, err := NewQdrantStore(host, port, testDimension, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTenant(t *testing.T) string {
	return fmt.Sprintf("it_%d", time.Now().UnixNano())
}

func TestQdrant_UpsertSearchDelete(t *testing.T) {
	s := newTestQdrant(t)
	ctx := context.Background()
	tenant := testTenant(t)
	t.Cleanup(func() { s.DropTenant(ctx, tenant) })

	f1, f2 := uuid.NewString(), uuid.NewString()
	require.NoError(t, s.Upsert(ctx, tenant, []Point{
		{ID: f1, DocumentID: "doc-1", Vector: []float32{1, 0, 0, 0}, Payload: map[string]any{"text": "alpha"}},
		{ID: f2, DocumentID: "doc-2", Vector: []float32{0, 1, 0, 0}, Payload: map[string]any{"text": "beta"}},
	}))

	hits, err := s.Search(ctx, tenant, []float32{1, 0, 0, 0}, Query{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, f1, hits[0].FragmentID)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
	assert.Equal(t, "alpha", hits[0].Payload["text"])
	assert.InDelta(t, 1.0, hits[0].Score, 1e-3)

	require.NoError(t, s.DeleteDocument(ctx, tenant, "doc-1"))

	hits, err = s.Search(ctx, tenant, []float32{1, 0, 0, 0}, Query{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, f2, hits[0].FragmentID)
}

func TestQdrant_TenantIsolation(t *testing.T) {
	s := newTestQdrant(t)
	ctx := context.Background()
	a, b := testTenant(t)+"_a", testTenant(t)+"_b"
	t.Cleanup(func() {
		s.DropTenant(ctx, a)
		s.DropTenant(ctx, b)
	})

	require.NoError(t, s.Upsert(ctx, a, []Point{
		{ID: uuid.NewString(), DocumentID: "d", Vector: []float32{1, 0, 0, 0}},
	}))

	hits, err := s.Search(ctx, b, []float32{1, 0, 0, 0}, Query{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, hits, "tenant b must not see tenant a's points")
}

func TestQdrant_SearchUnknownTenant(t *testing.T) {
	s := newTestQdrant(t)

	hits, err := s.Search(context.Background(), testTenant(t), []float32{1, 0, 0, 0}, Query{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQdrant_DimensionMismatch(t *testing.T) {
	s := newTestQdrant(t)
	ctx := context.Background()
	tenant := testTenant(t)

	err := s.Upsert(ctx, tenant, []Point{
		{ID: uuid.NewString(), DocumentID: "d", Vector: []float32{1, 0}},
	})
	require.Error(t, err)

	_, err = s.Search(ctx, tenant, []float32{1, 0}, Query{TopK: 1})
	require.Error(t, err)
}
