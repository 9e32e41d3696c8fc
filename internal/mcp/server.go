package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/arxiv-corpus/internal/record"
	"github.com/bull/arxiv-corpus/internal/retrieval"
	"github.com/bull/arxiv-corpus/internal/storage"
)

// Searcher is the retrieval side of the paper index.
type Searcher interface {
	Search(ctx context.Context, q retrieval.Query) (*retrieval.Response, error)
	Get(ctx context.Context, id string) (*record.MetadataRow, error)
	Stats() retrieval.Stats
}

// Mirror is the optional Qdrant copy of the index.
type Mirror interface {
	HealthChecker
	Collection() string
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	index  Searcher
	mirror Mirror
}

// Config holds server dependencies. Mirror may be nil.
type Config struct {
	Index   Searcher
	Mirror  Mirror
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "arxiv-corpus-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_papers",
		Description: "Search indexed arXiv papers semantically by their abstracts. Supports filters on authors, categories, affiliations, language and publication year. Returns metadata and similarity scores.",
	}, makeSearchHandler(cfg.Index))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_paper",
		Description: "Retrieve the indexed metadata of one arXiv paper by its identifier.",
	}, makeGetHandler(cfg.Index))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the status of the paper index: row count, embedding model, build time, languages and the optional Qdrant mirror.",
	}, makeStatusHandler(cfg.Index, cfg.Mirror))

	return &Server{
		server: server,
		index:  cfg.Index,
		mirror: cfg.Mirror,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
