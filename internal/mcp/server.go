package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// ChatService is the part of *chat.Service the tools call.
type ChatService interface {
	Ask(ctx context.Context, req chat.Request) (*chat.Response, error)
	Retrieve(ctx context.Context, query, docName string) (*retrieval.Context, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Chat    ChatService
	Catalog catalog.Catalog
	Index   storage.VectorIndex
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "docqa", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the indexed documents. Greetings and off-topic messages get a fixed reply. Pass session_id to continue a conversation.",
	}, makeAskHandler(cfg.Chat))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search the indexed documents and return the ranked sections with their scores, without generating an answer.",
	}, makeSearchHandler(cfg.Chat))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List every indexed document with its source, chunk count and summary.",
	}, makeListHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the vector index backend, entry count, embedding dimension, document count and the latest training run.",
	}, makeStatusHandler(cfg.Index, cfg.Catalog))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
