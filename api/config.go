// Package api provides the HTTP surface of citysql: the streaming chat route,
// one-shot search, the cities table and the query history.
package api

import (
	"context"
	"net/http"

	"github.com/papercomputeco/citysql/pkg/agent"
	"github.com/papercomputeco/citysql/pkg/history"
	"github.com/papercomputeco/citysql/pkg/worker"
	"github.com/papercomputeco/citysql/relay"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string

	// Streaming relays model output token by token. When false, chat answers
	// are generated whole and relayed as a single fragment.
	Streaming bool

	// Agent answers natural-language questions.
	Agent Answerer

	// Querier runs the guarded read-only SQL behind /api/data.
	Querier agent.Querier

	// Relay pumps chat sessions. Defaults to relay.New(relay.Config{}).
	Relay *relay.Relay

	// Recorder receives a history entry for every answered question.
	// Optional.
	Recorder Recorder

	// History serves /api/history. Optional.
	History history.Driver

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// AnswerSource is a relay.Source that also reports the SQL it ran.
type AnswerSource interface {
	relay.Source
	LastQuery() string
}

// Answerer is the SQL agent as the handlers see it.
type Answerer interface {
	Stream(question string) AnswerSource
	Generate(ctx context.Context, question string) (agent.Answer, error)
}

// Recorder accepts history jobs without blocking.
type Recorder interface {
	Enqueue(job worker.Job) error
}

// FromAgent adapts an *agent.Agent to Answerer.
func FromAgent(a *agent.Agent) Answerer {
	return agentAnswerer{a}
}

type agentAnswerer struct {
	*agent.Agent
}

func (a agentAnswerer) Stream(question string) AnswerSource {
	return a.Agent.Stream(question)
}
