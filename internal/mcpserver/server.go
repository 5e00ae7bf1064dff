// Package mcpserver exposes the pipeline to MCP clients over stdio, so
// agents and editors can query a tenant's knowledge base as tools.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DavidOlmos03/rag-base/internal/pipeline"
)

// Server wraps the MCP server with its pipeline dependency.
type Server struct {
	server *mcp.Server
	orch   *pipeline.Orchestrator
}

// New creates a configured MCP server with tools registered.
func New(orch *pipeline.Orchestrator) *Server {
	impl := &mcp.Implementation{
		Name:    "rag-base",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_query",
		Description: "Ask a question against a tenant's ingested documents. Retrieves relevant fragments and generates a grounded answer.",
	}, makeQueryHandler(orch))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_fragments",
		Description: "Semantic search over a tenant's document fragments. Returns matching fragments with scores, without generating an answer.",
	}, makeSearchHandler(orch))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List a tenant's ingested documents with their processing status.",
	}, makeListHandler(orch))

	return &Server{server: server, orch: orch}
}

// Run starts the server with stdio transport (blocks until the client
// disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
