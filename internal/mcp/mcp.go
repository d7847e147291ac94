// Package mcp exposes an episode store as Model Context Protocol tools
// over stdio, so agent frameworks can store and recall episodes without
// going through the HTTP gateway.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/agentmem/internal/tenant"
)

// Server wraps one tenant store in an MCP tool server.
type Server struct {
	store  tenant.Backend
	logger *slog.Logger
	mcp    *server.MCPServer
}

// Options configures a Server.
type Options struct {
	// Store receives every tool call. Required.
	Store tenant.Backend
	// Logger defaults to slog.Default(). MCP owns stdout, so the
	// logger must write elsewhere (stderr, a file).
	Logger *slog.Logger
	// Version is reported to clients during the MCP handshake.
	Version string
}

// New builds a Server with the four memory tools registered.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{store: opts.Store, logger: logger}
	s.mcp = server.NewMCPServer("agentmem", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(storeTool(), s.handleStore)
	s.mcp.AddTool(queryTool(), s.handleQuery)
	s.mcp.AddTool(pruneTool(), s.handlePrune)
	s.mcp.AddTool(statsTool(), s.handleStats)
	return s
}

// Run serves MCP over the given streams until ctx is cancelled or the
// client closes its end. Pass os.Stdin and os.Stdout for a real session.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening", "transport", "stdio")

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: serve: %w", err)
	}
	return nil
}
