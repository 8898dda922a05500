package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/papercomputeco/citysql/pkg/cities"
)

// ToolName is the name the model calls to run SQL.
const ToolName = "execute_sql"

// Querier executes a guarded read-only query.
type Querier interface {
	Query(ctx context.Context, query string) (*cities.Result, error)
}

// ToolInput is the execute_sql argument object.
type ToolInput struct {
	Query string `json:"query" jsonschema:"SQL query to execute against the cities database"`
}

// ToolError is returned by ExecuteTool for any failure, wrapping the cause.
type ToolError struct {
	Err error
}

func (e *ToolError) Error() string {
	return "Failed to execute SQL query: " + e.Err.Error()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExecuteTool runs input.Query through q and returns the rows as
// column-keyed records.
func ExecuteTool(ctx context.Context, q Querier, input ToolInput) ([]map[string]any, error) {
	if input.Query == "" {
		return nil, &ToolError{Err: errors.New("query is required")}
	}
	res, err := q.Query(ctx, input.Query)
	if err != nil {
		return nil, &ToolError{Err: err}
	}
	return res.Records(), nil
}

func toolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        ToolName,
			Description: openai.String("Executes a SQL query against the cities database and returns the results"),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "SQL query to execute against the cities database",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// runToolCall executes one model tool call and renders the tool message
// content. Failures are returned to the model as text so it can correct
// the query.
func (a *Agent) runToolCall(ctx context.Context, name, arguments string) (content string, query string) {
	if name != ToolName {
		return fmt.Sprintf("unknown tool %q", name), ""
	}

	var input ToolInput
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return (&ToolError{Err: fmt.Errorf("invalid arguments: %w", err)}).Error(), ""
	}

	records, err := ExecuteTool(ctx, a.querier, input)
	if err != nil {
		a.logger.Debug("tool call failed", "err", err)
		return err.Error(), input.Query
	}

	b, err := json.Marshal(records)
	if err != nil {
		return (&ToolError{Err: err}).Error(), input.Query
	}
	return string(b), input.Query
}
