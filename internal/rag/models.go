// Package rag holds the domain types and error taxonomy shared by every
// pipeline stage. Types here carry no behaviour beyond small helpers;
// stages own their own logic.
package rag

import "time"

// DocumentStatus tracks a document through the ingestion state machine.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded source text owned by a single tenant.
// Only the pipeline orchestrator mutates Status and Error.
type Document struct {
	ID        string
	TenantID  string
	Filename  string
	Content   string // extracted text, not raw bytes
	Status    DocumentStatus
	Error     string // populated when Status is failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fragment is a bounded span of a document's text, the unit of embedding
// and retrieval. Immutable once created; deleted only with its document.
// StartOffset/EndOffset are byte offsets into the original content, so a
// fragment can always be traced back to its source span.
type Fragment struct {
	ID          string
	DocumentID  string
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
	Metadata    map[string]any
}

// RetrievalResult is an ephemeral per-query hit. Scores are cosine
// similarities clamped to [0, 1].
type RetrievalResult struct {
	FragmentID string
	DocumentID string
	Text       string
	Score      float32
	Metadata   map[string]any
}

// QueryRecord is the persisted, append-only history of one query flow,
// written once per completed or failed query.
type QueryRecord struct {
	ID               string
	TenantID         string
	Query            string
	Answer           string
	Contexts         []RetrievalResult
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Error            string // empty on success
	CreatedAt        time.Time
}

// GenerationConfig selects and parameterises a language-model provider for
// a tenant. At most one config is active per tenant; the configuration
// store enforces that invariant.
type GenerationConfig struct {
	TenantID    string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string
	Active      bool
}
