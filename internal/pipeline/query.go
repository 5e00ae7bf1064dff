package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DavidOlmos03/rag-base/internal/compressor"
	"github.com/DavidOlmos03/rag-base/internal/llm"
	"github.com/DavidOlmos03/rag-base/internal/rag"
	"github.com/DavidOlmos03/rag-base/internal/retriever"
)

// QueryOptions tunes one query call.
type QueryOptions struct {
	TopK           int
	ScoreThreshold float32
	Filter         map[string]string

	// MaxTokens overrides the active config's generation limit when > 0.
	MaxTokens int
}

// QueryResult is a completed, non-streamed query.
type QueryResult struct {
	RecordID string
	Answer   string
	Contexts []rag.RetrievalResult
	Provider string
	Model    string
	Usage    llm.Usage
}

// queryContext carries the state shared by Query and QueryStream up to
// the generation call.
type queryContext struct {
	record   *rag.QueryRecord
	contexts []rag.RetrievalResult
	started  time.Time
}

// prepare runs retrieval and compression and seeds the query record. A
// nil llm request in the return signals the empty-retrieval short
// circuit.
func (o *Orchestrator) prepare(ctx context.Context, tenantID, query string, opts QueryOptions) (*queryContext, *llm.Request, *rag.GenerationConfig, error) {
	if tenantID == "" {
		return nil, nil, nil, fmt.Errorf("%w: tenant id is required", rag.ErrInvalidRequest)
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil, nil, fmt.Errorf("%w: query is empty", rag.ErrInvalidRequest)
	}

	qc := &queryContext{
		started: time.Now(),
		record: &rag.QueryRecord{
			ID:       uuid.NewString(),
			TenantID: tenantID,
			Query:    query,
		},
	}

	results, err := o.searcher.Retrieve(ctx, tenantID, query, retriever.Options{
		TopK:           opts.TopK,
		ScoreThreshold: opts.ScoreThreshold,
		Filter:         opts.Filter,
	})
	if err != nil {
		return qc, nil, nil, fmt.Errorf("retrieve: %w", err)
	}

	if len(results) == 0 && o.emptyPolicy == EmptyShortCircuit {
		return qc, nil, nil, nil
	}

	compressed := o.compressor.Compress(results)
	qc.contexts = compressed
	qc.record.Contexts = compressed
	o.logger.Debug("context selected",
		"tenant", tenantID,
		"selection", compressor.Describe(results, compressed))

	cfg, err := o.store.GetActiveConfig(ctx, tenantID)
	if err != nil {
		return qc, nil, nil, fmt.Errorf("load generation config: %w", err)
	}
	qc.record.Provider = cfg.Provider
	qc.record.Model = cfg.Model

	maxTokens := cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	p := o.prompts.Build(query, compressed)
	req := &llm.Request{
		System:      p.System,
		User:        p.User,
		Temperature: cfg.Temperature,
		MaxTokens:   maxTokens,
	}
	return qc, req, cfg, nil
}

// saveRecord persists the query record, successful or not. Persistence
// failures are logged, never surfaced: losing an audit row must not fail
// a query that already produced an answer.
func (o *Orchestrator) saveRecord(qc *queryContext) {
	qc.record.LatencyMS = time.Since(qc.started).Milliseconds()
	if err := o.store.SaveQuery(context.Background(), qc.record); err != nil {
		o.logger.Error("failed to save query record",
			"tenant", qc.record.TenantID, "record", qc.record.ID, "error", err)
	}
}

// Query runs the full flow and blocks until the answer is complete. The
// query record is persisted for failures too, with the error preserved.
func (o *Orchestrator) Query(ctx context.Context, tenantID, query string, opts QueryOptions) (*QueryResult, error) {
	qc, req, cfg, err := o.prepare(ctx, tenantID, query, opts)
	if err != nil {
		if qc != nil {
			qc.record.Error = err.Error()
			o.saveRecord(qc)
		}
		return nil, err
	}

	if req == nil {
		// Empty retrieval, short-circuit policy: answer without the model.
		qc.record.Answer = EmptyAnswer
		o.saveRecord(qc)
		return &QueryResult{
			RecordID: qc.record.ID,
			Answer:   EmptyAnswer,
			Contexts: []rag.RetrievalResult{},
		}, nil
	}

	client, err := o.clientFactory(*cfg)
	if err != nil {
		qc.record.Error = err.Error()
		o.saveRecord(qc)
		return nil, fmt.Errorf("build generation client: %w", err)
	}

	resp, err := client.Generate(ctx, *req)
	if err != nil {
		qc.record.Error = err.Error()
		o.saveRecord(qc)
		return nil, fmt.Errorf("generate: %w", err)
	}

	qc.record.Answer = resp.Text
	qc.record.PromptTokens = resp.Usage.PromptTokens
	qc.record.CompletionTokens = resp.Usage.CompletionTokens
	o.saveRecord(qc)

	return &QueryResult{
		RecordID: qc.record.ID,
		Answer:   resp.Text,
		Contexts: qc.contexts,
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Usage:    resp.Usage,
	}, nil
}

// ContextStream is an answer stream that also carries the compressed
// contexts behind it, so transports can attach them to the final event.
type ContextStream interface {
	llm.Stream
	Contexts() []rag.RetrievalResult
}

// QueryStream runs the full flow but streams the answer. The query
// record is persisted when the stream ends, normally or not.
func (o *Orchestrator) QueryStream(ctx context.Context, tenantID, query string, opts QueryOptions) (ContextStream, error) {
	qc, req, cfg, err := o.prepare(ctx, tenantID, query, opts)
	if err != nil {
		if qc != nil {
			qc.record.Error = err.Error()
			o.saveRecord(qc)
		}
		return nil, err
	}

	if req == nil {
		qc.record.Answer = EmptyAnswer
		o.saveRecord(qc)
		return &staticStream{text: EmptyAnswer, contexts: []rag.RetrievalResult{}}, nil
	}

	client, err := o.clientFactory(*cfg)
	if err != nil {
		qc.record.Error = err.Error()
		o.saveRecord(qc)
		return nil, fmt.Errorf("build generation client: %w", err)
	}

	inner, err := client.GenerateStream(ctx, *req)
	if err != nil {
		qc.record.Error = err.Error()
		o.saveRecord(qc)
		return nil, fmt.Errorf("generate stream: %w", err)
	}

	return &recordingStream{inner: inner, orch: o, qc: qc}, nil
}

// Contexts exposes the compressed context set behind a stream so callers
// can attach it to the final result.
func (s *recordingStream) Contexts() []rag.RetrievalResult { return s.qc.contexts }

// recordingStream forwards chunks while accumulating the answer, then
// persists the query record exactly once when the stream finishes.
type recordingStream struct {
	inner llm.Stream
	orch  *Orchestrator
	qc    *queryContext

	answer   strings.Builder
	saveOnce sync.Once
}

func (s *recordingStream) Recv() (llm.Chunk, error) {
	chunk, err := s.inner.Recv()
	if err == io.EOF {
		s.save("")
		return llm.Chunk{}, io.EOF
	}
	if err != nil {
		s.save(err.Error())
		return llm.Chunk{}, err
	}

	s.answer.WriteString(chunk.Text)
	if chunk.Usage != nil {
		s.qc.record.PromptTokens = chunk.Usage.PromptTokens
		s.qc.record.CompletionTokens = chunk.Usage.CompletionTokens
	}
	return chunk, nil
}

func (s *recordingStream) Close() error {
	// Abandoned streams still persist what was received.
	s.save("stream closed before completion")
	return s.inner.Close()
}

func (s *recordingStream) save(errMsg string) {
	s.saveOnce.Do(func() {
		s.qc.record.Answer = s.answer.String()
		s.qc.record.Error = errMsg
		s.orch.saveRecord(s.qc)
	})
}

// staticStream yields one fixed chunk then EOF; used for short-circuit
// answers so streaming callers see a uniform interface.
type staticStream struct {
	text     string
	contexts []rag.RetrievalResult
	sent     bool
}

func (s *staticStream) Contexts() []rag.RetrievalResult { return s.contexts }

func (s *staticStream) Recv() (llm.Chunk, error) {
	if s.sent {
		return llm.Chunk{}, io.EOF
	}
	s.sent = true
	return llm.Chunk{Text: s.text}, nil
}

func (s *staticStream) Close() error { return nil }

// History returns a tenant's recent query records, newest first.
func (o *Orchestrator) History(ctx context.Context, tenantID string, limit int) ([]rag.QueryRecord, error) {
	return o.store.ListQueries(ctx, tenantID, limit)
}

// Documents returns a tenant's documents, newest first.
func (o *Orchestrator) Documents(ctx context.Context, tenantID string) ([]rag.Document, error) {
	return o.store.ListDocuments(ctx, tenantID)
}

// Document returns one document record.
func (o *Orchestrator) Document(ctx context.Context, tenantID, id string) (*rag.Document, error) {
	return o.store.GetDocument(ctx, tenantID, id)
}

// SetGenerationConfig stores a tenant's provider config after checking
// it can actually build a client.
func (o *Orchestrator) SetGenerationConfig(ctx context.Context, cfg rag.GenerationConfig) error {
	if _, err := o.clientFactory(cfg); err != nil {
		return err
	}
	return o.store.SetConfig(ctx, &cfg)
}

// Retrieve exposes raw retrieval without generation, for search-only
// surfaces.
func (o *Orchestrator) Retrieve(ctx context.Context, tenantID, query string, opts QueryOptions) ([]rag.RetrievalResult, error) {
	return o.searcher.Retrieve(ctx, tenantID, query, retriever.Options{
		TopK:           opts.TopK,
		ScoreThreshold: opts.ScoreThreshold,
		Filter:         opts.Filter,
	})
}
