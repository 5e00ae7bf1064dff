// Package store persists documents, query history and per-tenant
// generation configs. The SQLite implementation backs production; the
// memory implementation backs tests.
package store

import (
	"context"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// DocumentStore persists document records and their lifecycle status.
type DocumentStore interface {
	// CreateDocument inserts a new document record.
	CreateDocument(ctx context.Context, doc *rag.Document) error

	// GetDocument returns a tenant's document or ErrNotFound.
	GetDocument(ctx context.Context, tenantID, id string) (*rag.Document, error)

	// ListDocuments returns a tenant's documents, newest first.
	ListDocuments(ctx context.Context, tenantID string) ([]rag.Document, error)

	// UpdateDocumentStatus moves a document through its lifecycle. The
	// error message is only stored for failed status.
	UpdateDocumentStatus(ctx context.Context, tenantID, id string, status rag.DocumentStatus, errMsg string) error

	// DeleteDocument removes a document record or returns ErrNotFound.
	DeleteDocument(ctx context.Context, tenantID, id string) error
}

// QueryStore persists the query audit trail.
type QueryStore interface {
	// SaveQuery appends one query record, successful or failed.
	SaveQuery(ctx context.Context, rec *rag.QueryRecord) error

	// ListQueries returns a tenant's most recent records, newest first,
	// at most limit entries.
	ListQueries(ctx context.Context, tenantID string, limit int) ([]rag.QueryRecord, error)
}

// ConfigStore persists per-tenant generation configs. At most one config
// per tenant is active at a time.
type ConfigStore interface {
	// SetConfig stores a config. If cfg.Active, any previously active
	// config for the tenant is deactivated first.
	SetConfig(ctx context.Context, cfg *rag.GenerationConfig) error

	// GetActiveConfig returns the tenant's active config or ErrNotFound.
	GetActiveConfig(ctx context.Context, tenantID string) (*rag.GenerationConfig, error)
}

// Store bundles the three persistence concerns.
type Store interface {
	DocumentStore
	QueryStore
	ConfigStore
}
