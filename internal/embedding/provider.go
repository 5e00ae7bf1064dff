// Package embedding converts text into fixed-length vectors. The Service
// adds normalisation, deduplication, a TTL cache and bounded-concurrency
// batching on top of interchangeable model providers.
package embedding

import "context"

// Provider is a single embedding model backend. EmbedBatch must return one
// vector per input text, in input order, each of Dimension() length.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}
