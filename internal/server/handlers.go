package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/DavidOlmos03/rag-base/internal/pipeline"
	"github.com/DavidOlmos03/rag-base/internal/rag"
)

type documentResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDocumentResponse(d rag.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Filename:  d.Filename,
		Status:    string(d.Status),
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type ingestRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", rag.ErrInvalidRequest, err))
		return
	}
	if req.Filename == "" {
		s.writeError(w, fmt.Errorf("%w: filename is required", rag.ErrInvalidRequest))
		return
	}

	doc, err := s.orch.Ingest(r.Context(), tenant, req.Filename, []byte(req.Content))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDocumentResponse(*doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.orch.Documents(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.orch.Document(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(*doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.orch.DeleteDocument(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float32 `json:"score_threshold"`
	MaxTokens      int     `json:"max_tokens"`
	Stream         bool    `json:"stream"`
}

type contextResponse struct {
	FragmentID string  `json:"fragment_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

type queryResponse struct {
	RecordID         string            `json:"record_id"`
	Answer           string            `json:"answer"`
	Contexts         []contextResponse `json:"contexts"`
	Provider         string            `json:"provider,omitempty"`
	Model            string            `json:"model,omitempty"`
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
}

func toContextResponses(in []rag.RetrievalResult) []contextResponse {
	out := make([]contextResponse, len(in))
	for i, c := range in {
		out[i] = contextResponse{
			FragmentID: c.FragmentID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Score:      c.Score,
		}
	}
	return out
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", rag.ErrInvalidRequest, err))
		return
	}

	opts := pipeline.QueryOptions{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		MaxTokens:      req.MaxTokens,
	}

	if req.Stream {
		s.streamQuery(w, r, tenant, req.Query, opts)
		return
	}

	result, err := s.orch.Query(r.Context(), tenant, req.Query, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		RecordID:         result.RecordID,
		Answer:           result.Answer,
		Contexts:         toContextResponses(result.Contexts),
		Provider:         result.Provider,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
	})
}

// streamQuery sends the answer as server-sent events: zero or more
// "chunk" events followed by one "done" event carrying the retrieved
// contexts. Errors before the first byte map to status codes; errors
// mid-stream become an "error" event.
func (s *Server) streamQuery(w http.ResponseWriter, r *http.Request, tenant, query string, opts pipeline.QueryOptions) {
	stream, err := s.orch.QueryStream(r.Context(), tenant, query, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			done := "{}"
			payload, merr := json.Marshal(map[string]any{
				"contexts": toContextResponses(stream.Contexts()),
			})
			if merr == nil {
				done = string(payload)
			}
			writeSSE(w, "done", done)
			flusher.Flush()
			return
		}
		if err != nil {
			payload, merr := json.Marshal(errorResponse{Error: err.Error()})
			if merr != nil {
				payload = []byte(`{"error":"stream failed"}`)
			}
			writeSSE(w, "error", string(payload))
			flusher.Flush()
			return
		}
		if chunk.Text == "" {
			continue
		}

		payload, merr := json.Marshal(map[string]string{"text": chunk.Text})
		if merr != nil {
			continue
		}
		writeSSE(w, "chunk", string(payload))
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, fmt.Errorf("%w: invalid limit %q", rag.ErrInvalidRequest, v))
			return
		}
		limit = parsed
	}

	recs, err := s.orch.History(r.Context(), r.PathValue("tenant"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type queryRecordResponse struct {
		ID               string    `json:"id"`
		Query            string    `json:"query"`
		Answer           string    `json:"answer"`
		Provider         string    `json:"provider,omitempty"`
		Model            string    `json:"model,omitempty"`
		PromptTokens     int       `json:"prompt_tokens"`
		CompletionTokens int       `json:"completion_tokens"`
		LatencyMS        int64     `json:"latency_ms"`
		Error            string    `json:"error,omitempty"`
		CreatedAt        time.Time `json:"created_at"`
	}

	out := make([]queryRecordResponse, len(recs))
	for i, rec := range recs {
		out[i] = queryRecordResponse{
			ID:               rec.ID,
			Query:            rec.Query,
			Answer:           rec.Answer,
			Provider:         rec.Provider,
			Model:            rec.Model,
			PromptTokens:     rec.PromptTokens,
			CompletionTokens: rec.CompletionTokens,
			LatencyMS:        rec.LatencyMS,
			Error:            rec.Error,
			CreatedAt:        rec.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": out})
}

type configRequest struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", rag.ErrInvalidRequest, err))
		return
	}

	err := s.orch.SetGenerationConfig(r.Context(), rag.GenerationConfig{
		TenantID:    tenant,
		Provider:    req.Provider,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		APIKey:      req.APIKey,
		BaseURL:     req.BaseURL,
		Active:      true,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The API key is write-only; echo everything else.
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": req.Provider,
		"model":    req.Model,
		"active":   true,
	})
}
