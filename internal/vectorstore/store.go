// Package vectorstore persists embedding vectors and serves similarity
// search with hard tenant isolation. Two implementations exist: Memory for
// tests and single-node setups, and Qdrant for production.
package vectorstore

import "context"

// Point is one stored fragment vector with its payload.
type Point struct {
	ID         string
	DocumentID string
	Vector     []float32
	Payload    map[string]any
}

// Query controls a similarity search.
type Query struct {
	TopK           int
	ScoreThreshold float32
	Filter         map[string]string
}

// Hit is one search result, score descending within a result set.
type Hit struct {
	FragmentID string
	DocumentID string
	Score      float32
	Payload    map[string]any
}

// Store is a tenant-isolated vector database. Every operation is scoped to
// a tenant; no call can read or write another tenant's points.
type Store interface {
	// Upsert writes points for a tenant. Re-upserting an existing point ID
	// replaces it in place.
	Upsert(ctx context.Context, tenantID string, points []Point) error

	// Search returns the tenant's nearest points by cosine similarity,
	// score descending, at most q.TopK results at or above
	// q.ScoreThreshold.
	Search(ctx context.Context, tenantID string, vector []float32, q Query) ([]Hit, error)

	// DeleteDocument removes every point belonging to a document. Deleting
	// an unknown document is a no-op.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}
