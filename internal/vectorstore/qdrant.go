package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

const upsertBatchSize = 100

// QdrantStore persists vectors in Qdrant with one collection per tenant
// (tenant_<id>). Collections are created lazily on first upsert, so a
// tenant exists the moment it ingests its first document.
type QdrantStore struct {
	client    *qdrant.Client
	logger    *slog.Logger
	dimension uint64
}

// NewQdrantStore connects to Qdrant over gRPC and verifies the server is
// reachable with exponential backoff before returning.
func NewQdrantStore(host string, port int, dimension int, logger *slog.Logger) (*QdrantStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", rag.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", rag.ErrVectorStore, err)
	}

	s := &QdrantStore{
		client:    client,
		logger:    logger,
		dimension: uint64(dimension),
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: qdrant unreachable: %v", rag.ErrVectorStore, err)
	}
	return s, nil
}

func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := newBackoff()
	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// collectionName maps a tenant to its collection. Isolation relies on
// every operation going through this mapping.
func collectionName(tenantID string) string {
	return "tenant_" + tenantID
}

// ensureCollection creates the tenant's collection and payload index if
// missing. Idempotent.
func (s *QdrantStore) ensureCollection(ctx context.Context, tenantID string) error {
	name := collectionName(tenantID)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	// document_id is the delete-by-document filter key; without the index
	// that filter degrades to a full scan.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create document_id index on %s: %w", name, err)
	}

	s.logger.Info("created tenant collection", "tenant", tenantID, "dimension", s.dimension)
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, tenantID string, points []Point) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is required", rag.ErrVectorStore)
	}
	if len(points) == 0 {
		return nil
	}

	for i, p := range points {
		if uint64(len(p.Vector)) != s.dimension {
			return fmt.Errorf("%w: point %d has %d dimensions, want %d",
				rag.ErrVectorStore, i, len(p.Vector), s.dimension)
		}
	}

	if err := s.ensureCollection(ctx, tenantID); err != nil {
		return fmt.Errorf("%w: %v", rag.ErrVectorStore, err)
	}

	name := collectionName(tenantID)

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := points[start:end]
		structs := make([]*qdrant.PointStruct, len(batch))
		for i, p := range batch {
			payload := map[string]any{"document_id": p.DocumentID}
			for k, v := range p.Payload {
				payload[k] = v
			}
			structs[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(payload),
			}
		}

		if err := s.upsertWithRetry(ctx, name, structs); err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %v", rag.ErrVectorStore, start, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	b := newBackoff()

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (s *QdrantStore) Search(ctx context.Context, tenantID string, vector []float32, q Query) ([]Hit, error) {
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", rag.ErrVectorStore)
	}
	if uint64(len(vector)) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			rag.ErrVectorStore, len(vector), s.dimension)
	}

	name := collectionName(tenantID)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: check collection: %v", rag.ErrVectorStore, err)
	}
	if !exists {
		// Tenant has never ingested anything.
		return []Hit{}, nil
	}

	req := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(q.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.ScoreThreshold > 0 {
		req.ScoreThreshold = qdrant.PtrOf(q.ScoreThreshold)
	}
	if len(q.Filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(q.Filter))
		for k, v := range q.Filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		req.Filter = &qdrant.Filter{Must: must}
	}

	results, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", rag.ErrVectorStore, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			payload[k] = valueToAny(v)
		}
		hits = append(hits, Hit{
			FragmentID: r.Id.GetUuid(),
			DocumentID: r.Payload["document_id"].GetStringValue(),
			Score:      r.Score,
			Payload:    payload,
		})
	}
	return hits, nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	name := collectionName(tenantID)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", rag.ErrVectorStore, err)
	}
	if !exists {
		return nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", rag.ErrVectorStore, documentID, err)
	}
	return nil
}

// DropTenant removes a tenant's collection entirely.
func (s *QdrantStore) DropTenant(ctx context.Context, tenantID string) error {
	if err := s.client.DeleteCollection(ctx, collectionName(tenantID)); err != nil {
		return fmt.Errorf("%w: drop tenant %s: %v", rag.ErrVectorStore, tenantID, err)
	}
	return nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// valueToAny converts a Qdrant payload value to a plain Go value.
func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.Values))
		for _, item := range kind.ListValue.Values {
			items = append(items, valueToAny(item))
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]any, len(kind.StructValue.Fields))
		for k, item := range kind.StructValue.Fields {
			fields[k] = valueToAny(item)
		}
		return fields
	default:
		return nil
	}
}
