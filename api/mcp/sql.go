package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/citysql/pkg/agent"
)

var (
	executeSQLDescription = "Execute a read-only SQL query (SELECT or WITH) against the cities database and return the matching rows. Any other statement is rejected before it reaches the database."

	describeToolName    = "describe_cities"
	describeDescription = "Return the schema of the cities table."
)

// ExecuteSQLOutput is the result of the execute_sql tool.
type ExecuteSQLOutput struct {
	Query string           `json:"query"`
	Rows  []map[string]any `json:"rows"`
	Count int              `json:"count"`
}

// DescribeInput takes no arguments.
type DescribeInput struct{}

// DescribeOutput is the result of the describe_cities tool.
type DescribeOutput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

func (s *Server) handleExecuteSQL(ctx context.Context, _ *mcp.CallToolRequest, input agent.ToolInput) (*mcp.CallToolResult, ExecuteSQLOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP execute_sql request", "sql", input.Query)

	rows, err := agent.ExecuteTool(ctx, s.config.Querier, input)
	if err != nil {
		logger.Warn("MCP execute_sql failed", "err", err)
		// The SDK reports a returned error as an IsError tool result.
		return nil, ExecuteSQLOutput{}, err
	}

	return nil, ExecuteSQLOutput{
		Query: input.Query,
		Rows:  rows,
		Count: len(rows),
	}, nil
}

func (s *Server) handleDescribe(_ context.Context, _ *mcp.CallToolRequest, _ DescribeInput) (*mcp.CallToolResult, DescribeOutput, error) {
	return nil, DescribeOutput{Table: "cities", Schema: agent.Schema}, nil
}
