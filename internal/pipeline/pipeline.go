// Package pipeline orchestrates the two RAG flows: ingestion (parse,
// chunk, embed, index) and querying (retrieve, compress, prompt,
// generate). It owns document lifecycle status and the query audit trail.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/DavidOlmos03/rag-base/internal/chunker"
	"github.com/DavidOlmos03/rag-base/internal/compressor"
	"github.com/DavidOlmos03/rag-base/internal/llm"
	"github.com/DavidOlmos03/rag-base/internal/parser"
	"github.com/DavidOlmos03/rag-base/internal/prompt"
	"github.com/DavidOlmos03/rag-base/internal/rag"
	"github.com/DavidOlmos03/rag-base/internal/retriever"
	"github.com/DavidOlmos03/rag-base/internal/store"
	"github.com/DavidOlmos03/rag-base/internal/vectorstore"
)

// EmptyPolicy decides what happens when retrieval finds nothing.
type EmptyPolicy string

const (
	// EmptyShortCircuit answers with a canned response and never calls
	// the language model. The default: no context means any generated
	// answer would be a hallucination.
	EmptyShortCircuit EmptyPolicy = "short_circuit"

	// EmptyGenerate forwards the question to the model with an empty
	// context block.
	EmptyGenerate EmptyPolicy = "generate"
)

// EmptyAnswer is the canned response used by EmptyShortCircuit.
const EmptyAnswer = "I don't have any relevant information to answer this question. " +
	"Try ingesting documents that cover this topic first."

// Embedder is the slice of the embedding service the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher produces ranked context for a query.
type Searcher interface {
	Retrieve(ctx context.Context, tenantID, query string, opts retriever.Options) ([]rag.RetrievalResult, error)
}

// ClientFactory builds a generation client from a tenant's config. It is
// injectable so tests can substitute a fake provider.
type ClientFactory func(cfg rag.GenerationConfig) (llm.Client, error)

// Options tunes the orchestrator.
type Options struct {
	// Workers is the size of the async ingestion pool.
	Workers int

	// QueueSize bounds pending ingestion jobs; Ingest fails fast when
	// the queue is full.
	QueueSize int

	// EmptyPolicy selects the empty-retrieval behaviour.
	EmptyPolicy EmptyPolicy

	// ChunkStrategy, ChunkSize and ChunkOverlap configure the default
	// splitter. Markdown files always use the markdown splitter.
	ChunkStrategy string
	ChunkSize     int
	ChunkOverlap  int
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	store         store.Store
	embedder      Embedder
	vectors       vectorstore.Store
	searcher      Searcher
	compressor    *compressor.Compressor
	prompts       *prompt.Builder
	clientFactory ClientFactory
	logger        *slog.Logger

	splitter         chunker.Splitter
	markdownSplitter chunker.Splitter
	emptyPolicy      EmptyPolicy

	jobs chan ingestJob
	wg   sync.WaitGroup

	closeOnce sync.Once
}

type ingestJob struct {
	tenantID   string
	documentID string
}

// New creates an orchestrator and starts its ingestion workers.
func New(
	st store.Store,
	embedder Embedder,
	vectors vectorstore.Store,
	searcher Searcher,
	comp *compressor.Compressor,
	prompts *prompt.Builder,
	factory ClientFactory,
	logger *slog.Logger,
	opts Options,
) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.EmptyPolicy == "" {
		opts.EmptyPolicy = EmptyShortCircuit
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = chunker.DefaultOverlap
	}
	if factory == nil {
		factory = llm.New
	}

	splitter, err := chunker.New(opts.ChunkStrategy, opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:            st,
		embedder:         embedder,
		vectors:          vectors,
		searcher:         searcher,
		compressor:       comp,
		prompts:          prompts,
		clientFactory:    factory,
		logger:           logger,
		splitter:         splitter,
		markdownSplitter: chunker.NewMarkdown(),
		emptyPolicy:      opts.EmptyPolicy,
		jobs:             make(chan ingestJob, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o, nil
}

// Close stops accepting ingestion jobs and waits for in-flight work.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.jobs)
	})
	o.wg.Wait()
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for job := range o.jobs {
		// Jobs outlive the request that queued them.
		ctx := context.Background()
		if err := o.ProcessDocument(ctx, job.tenantID, job.documentID); err != nil {
			o.logger.Error("document processing failed",
				"tenant", job.tenantID,
				"document", job.documentID,
				"error", err)
		}
	}
}

// Ingest validates and parses an upload, records it as pending and queues
// it for asynchronous processing. The returned document carries the ID
// callers poll for status.
func (o *Orchestrator) Ingest(ctx context.Context, tenantID, filename string, raw []byte) (*rag.Document, error) {
	doc, err := o.createDocument(ctx, tenantID, filename, raw)
	if err != nil {
		return nil, err
	}

	select {
	case o.jobs <- ingestJob{tenantID: tenantID, documentID: doc.ID}:
	default:
		// Queue full. Fail the document rather than blocking the upload.
		_ = o.store.UpdateDocumentStatus(ctx, tenantID, doc.ID, rag.StatusFailed, "ingestion queue full")
		return nil, fmt.Errorf("%w: ingestion queue full", rag.ErrInvalidRequest)
	}

	o.logger.Info("document queued", "tenant", tenantID, "document", doc.ID, "filename", filename)
	return doc, nil
}

// IngestSync records and processes a document in the calling goroutine,
// bypassing the worker pool. One-shot runs use it to report final status
// before exiting.
func (o *Orchestrator) IngestSync(ctx context.Context, tenantID, filename string, raw []byte) (*rag.Document, error) {
	doc, err := o.createDocument(ctx, tenantID, filename, raw)
	if err != nil {
		return nil, err
	}
	if err := o.ProcessDocument(ctx, tenantID, doc.ID); err != nil {
		return nil, err
	}
	return o.store.GetDocument(ctx, tenantID, doc.ID)
}

func (o *Orchestrator) createDocument(ctx context.Context, tenantID, filename string, raw []byte) (*rag.Document, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", rag.ErrInvalidRequest)
	}

	content, err := parser.Parse(filename, raw)
	if err != nil {
		return nil, err
	}

	doc := &rag.Document{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Filename: filename,
		Content:  content,
		Status:   rag.StatusPending,
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// ProcessDocument runs the ingestion flow synchronously: chunk, embed,
// index, then mark completed. Any stage failure marks the document failed
// with the stage error preserved.
func (o *Orchestrator) ProcessDocument(ctx context.Context, tenantID, documentID string) error {
	if err := o.store.UpdateDocumentStatus(ctx, tenantID, documentID, rag.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	err := o.processDocument(ctx, tenantID, documentID)
	if err != nil {
		if statusErr := o.store.UpdateDocumentStatus(ctx, tenantID, documentID, rag.StatusFailed, err.Error()); statusErr != nil {
			o.logger.Error("failed to record document failure",
				"tenant", tenantID, "document", documentID, "error", statusErr)
		}
		return err
	}

	return o.store.UpdateDocumentStatus(ctx, tenantID, documentID, rag.StatusCompleted, "")
}

func (o *Orchestrator) processDocument(ctx context.Context, tenantID, documentID string) error {
	doc, err := o.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return err
	}

	splitter := o.splitter
	if parser.IsMarkdown(doc.Filename) {
		splitter = o.markdownSplitter
	}

	fragments, err := splitter.Split(doc.Content)
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}
	if len(fragments) == 0 {
		o.logger.Warn("document produced no fragments", "tenant", tenantID, "document", documentID)
		return nil
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}

	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed fragments: %w", err)
	}

	points := make([]vectorstore.Point, len(fragments))
	for i, f := range fragments {
		payload := map[string]any{
			"text":         f.Text,
			"index":        f.Index,
			"start_offset": f.StartOffset,
			"end_offset":   f.EndOffset,
			"filename":     doc.Filename,
		}
		for k, v := range f.Metadata {
			payload[k] = v
		}
		points[i] = vectorstore.Point{
			ID:         fragmentID(documentID, f.Index),
			DocumentID: documentID,
			Vector:     vectors[i],
			Payload:    payload,
		}
	}

	if err := o.vectors.Upsert(ctx, tenantID, points); err != nil {
		return fmt.Errorf("index fragments: %w", err)
	}

	o.logger.Info("document indexed",
		"tenant", tenantID,
		"document", documentID,
		"fragments", len(fragments),
		"strategy", splitter.Name())
	return nil
}

// fragmentID derives a stable point ID from the document and fragment
// index. Reprocessing a document therefore replaces its fragments via
// upsert instead of duplicating them.
func fragmentID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s_%d", documentID, index))).String()
}

// DeleteDocument removes a document's vectors and its record.
func (o *Orchestrator) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	// Check the record first so unknown IDs fail before touching vectors.
	if _, err := o.store.GetDocument(ctx, tenantID, documentID); err != nil {
		return err
	}

	if err := o.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := o.store.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	o.logger.Info("document deleted", "tenant", tenantID, "document", documentID)
	return nil
}
