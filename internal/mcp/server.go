package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/probelabs/hindsight/internal/jobs"
	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/search"
	"github.com/probelabs/hindsight/internal/service"
)

const (
	// ServerName is the MCP server name advertised to clients.
	ServerName = "hindsight"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
)

// Server exposes the diagnosis pipeline over the Model Context Protocol so
// external AI agents can drive it as tools. It runs on its own port, apart
// from the REST API.
type Server struct {
	mcp  *server.MCPServer
	http *server.StreamableHTTPServer
	addr string

	analysis *service.AnalysisService
	search   *search.Service
	sync     *service.SyncService
	registry *jobs.Registry
	store    port.Store
}

// NewServer creates an MCP server with all tools registered.
func NewServer(analysis *service.AnalysisService, searchSvc *search.Service, syncSvc *service.SyncService, registry *jobs.Registry, store port.Store, mcpPort string) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		addr:     ":" + mcpPort,
		analysis: analysis,
		search:   searchSvc,
		sync:     syncSvc,
		registry: registry,
		store:    store,
	}
	s.registerTools()
	s.http = server.NewStreamableHTTPServer(s.mcp)
	return s
}

// registerTools wires every tool definition to its handler.
func (s *Server) registerTools() {
	s.mcp.AddTool(analyzeBugTool(), s.handleAnalyzeBug)
	s.mcp.AddTool(searchHistoryTool(), s.handleSearchHistory)
	s.mcp.AddTool(startSyncTool(), s.handleStartSync)
	s.mcp.AddTool(syncStatusTool(), s.handleSyncStatus)
}

// Start serves MCP over streamable HTTP and blocks until Shutdown.
func (s *Server) Start() error {
	slog.Info("MCP server starting", "addr", s.addr)
	return s.http.Start(s.addr)
}

// Shutdown stops the MCP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
