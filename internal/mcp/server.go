// Package mcp exposes the Godot bridge through Model Context Protocol tools.
//
// The tools drive an in-process host the way an IDE would:
//
// Host (always available):
//   - host_open_project: Open a project file, registering the Godot integration
//   - host_close_solution: Close the solution and release everything registered for it
//   - host_debugger_mode: Report that the host's debugger left its run mode
//
// Debugging:
//   - debug_start: Start a debugger session in PlayInEditor, Launch or Attach mode
//   - debug_list_sessions: List debugger sessions
//   - debug_stop: Dispose a debugger session
//
// Editor:
//   - editor_status: Report the editor connection
//   - editor_request: Send play, stopPlay or reloadScripts to the editor
package mcp

import (
	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/godot-bridge/internal/host"
	"github.com/ctagard/godot-bridge/internal/logger"
	"github.com/ctagard/godot-bridge/internal/version"
)

// Server wraps the MCP server around a host
type Server struct {
	mcpServer *server.MCPServer
	host      *host.Host
	log       logr.Logger
}

// NewServer creates the MCP server for h
func NewServer(h *host.Host, log logr.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"godot-bridge",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		host:      h,
		log:       logger.OrDiscard(log).WithName("mcp"),
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Close shuts down the host
func (s *Server) Close() error {
	return s.host.Close()
}
