package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DavidOlmos03/rag-base/internal/pipeline"
)

// QueryInput is the rag_query tool input.
type QueryInput struct {
	Tenant string `json:"tenant" jsonschema:"tenant whose documents to query"`
	Query  string `json:"query" jsonschema:"the question to answer"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of fragments to retrieve (default 5)"`
}

// QueryOutput is the rag_query tool output.
type QueryOutput struct {
	Answer   string         `json:"answer"`
	Contexts []FragmentInfo `json:"contexts"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
}

// FragmentInfo is one retrieved fragment in tool output.
type FragmentInfo struct {
	FragmentID string  `json:"fragment_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

func makeQueryHandler(orch *pipeline.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (
		*mcp.CallToolResult, QueryOutput, error,
	) {
		result, err := orch.Query(ctx, input.Tenant, input.Query, pipeline.QueryOptions{
			TopK: input.TopK,
		})
		if err != nil {
			return nil, QueryOutput{}, fmt.Errorf("query failed: %w", err)
		}

		contexts := make([]FragmentInfo, 0, len(result.Contexts))
		for _, c := range result.Contexts {
			contexts = append(contexts, FragmentInfo{
				FragmentID: c.FragmentID,
				DocumentID: c.DocumentID,
				Text:       c.Text,
				Score:      c.Score,
			})
		}

		return nil, QueryOutput{
			Answer:   result.Answer,
			Contexts: contexts,
			Provider: result.Provider,
			Model:    result.Model,
		}, nil
	}
}

// SearchInput is the search_fragments tool input.
type SearchInput struct {
	Tenant   string  `json:"tenant" jsonschema:"tenant whose fragments to search"`
	Query    string  `json:"query" jsonschema:"the search text"`
	TopK     int     `json:"top_k,omitempty" jsonschema:"number of fragments to return (default 5)"`
	MinScore float32 `json:"min_score,omitempty" jsonschema:"minimum similarity score in [0,1]"`
}

// SearchOutput is the search_fragments tool output.
type SearchOutput struct {
	Results []FragmentInfo `json:"results"`
	Message string         `json:"message,omitempty"`
}

func makeSearchHandler(orch *pipeline.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		results, err := orch.Retrieve(ctx, input.Tenant, input.Query, pipeline.QueryOptions{
			TopK:           input.TopK,
			ScoreThreshold: input.MinScore,
		})
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := make([]FragmentInfo, 0, len(results))
		for _, r := range results {
			out = append(out, FragmentInfo{
				FragmentID: r.FragmentID,
				DocumentID: r.DocumentID,
				Text:       r.Text,
				Score:      r.Score,
			})
		}

		if len(out) == 0 {
			return nil, SearchOutput{
				Results: []FragmentInfo{},
				Message: "No matching fragments found. Try broader search terms.",
			}, nil
		}
		return nil, SearchOutput{Results: out}, nil
	}
}

// ListInput is the list_documents tool input.
type ListInput struct {
	Tenant string `json:"tenant" jsonschema:"tenant whose documents to list"`
}

// DocumentInfo is one document in tool output.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOutput is the list_documents tool output.
type ListOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

func makeListHandler(orch *pipeline.Orchestrator) func(
	context.Context, *mcp.CallToolRequest, ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (
		*mcp.CallToolResult, ListOutput, error,
	) {
		docs, err := orch.Documents(ctx, input.Tenant)
		if err != nil {
			return nil, ListOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		out := make([]DocumentInfo, 0, len(docs))
		for _, d := range docs {
			out = append(out, DocumentInfo{
				ID:        d.ID,
				Filename:  d.Filename,
				Status:    string(d.Status),
				Error:     d.Error,
				CreatedAt: d.CreatedAt,
			})
		}
		return nil, ListOutput{Documents: out, Count: len(out)}, nil
	}
}
