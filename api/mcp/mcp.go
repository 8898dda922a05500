// Package mcp provides an MCP (Model Context Protocol) server exposing the
// guarded cities SQL tool to external agents.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/citysql/pkg/agent"
	"github.com/papercomputeco/citysql/pkg/utils"
)

type Config struct {
	// Querier runs guarded read-only SQL for the execute_sql tool.
	Querier agent.Querier

	// Noop for an MCP server without tools
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the execute_sql and
// describe_cities tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "citysql",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Querier == nil {
			return nil, errors.New("querier is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        agent.ToolName,
			Description: executeSQLDescription,
		}, s.handleExecuteSQL)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        describeToolName,
			Description: describeDescription,
		}, s.handleDescribe)
	}

	s.mcpServer = mcpServer
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, for transports other than
// streamable HTTP.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
