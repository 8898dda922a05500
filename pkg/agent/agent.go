// Package agent answers natural-language questions about the cities table
// with a hosted chat-completions model that can run read-only SQL through a
// single tool.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/papercomputeco/citysql/relay"
)

const (
	DefaultModel         = "gpt-4o-mini"
	DefaultMaxToolRounds = 5
)

// ErrTooManyToolRounds is returned when the model keeps calling tools past
// Config.MaxToolRounds.
var ErrTooManyToolRounds = errors.New("model did not produce an answer within the tool call limit")

// Config configures an Agent.
type Config struct {
	// BaseURL overrides the API endpoint, e.g. for an OpenAI-compatible
	// gateway. Empty uses the SDK default.
	BaseURL string
	APIKey  string
	Model   string

	// Temperature is sent only when non-nil.
	Temperature *float64

	// MaxToolRounds bounds the number of model turns in one answer.
	MaxToolRounds int

	// MaxRetries is the number of SDK retries for rate limits and server
	// errors.
	MaxRetries int

	Querier    Querier
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Agent turns questions into streamed answers.
type Agent struct {
	client      openai.Client
	model       string
	temperature *float64
	maxRounds   int
	querier     Querier
	logger      *slog.Logger
}

// Answer is a complete, non-streamed reply.
type Answer struct {
	Text string

	// SQL is the first SELECT statement quoted in Text, falling back to the
	// last query the model executed. Empty when neither exists.
	SQL string
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Querier == nil {
		return nil, errors.New("agent requires a querier")
	}

	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = DefaultMaxToolRounds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Agent{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxRounds:   rounds,
		querier:     cfg.Querier,
		logger:      logger,
	}, nil
}

// Stream returns a relay.Source yielding the answer to question as it is
// generated. No request is made until the first call to Next.
func (a *Agent) Stream(question string) *Stream {
	return &Stream{
		agent: a,
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt()),
			openai.UserMessage(question),
		},
	}
}

// Generate drains Stream and returns the whole answer.
func (a *Agent) Generate(ctx context.Context, question string) (Answer, error) {
	s := a.Stream(question)
	defer s.Close()

	var text strings.Builder
	for {
		frag, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Answer{}, err
		}
		text.WriteString(frag)
	}

	ans := Answer{Text: text.String(), SQL: ExtractSQL(text.String())}
	if ans.SQL == "" {
		ans.SQL = s.LastQuery()
	}
	return ans, nil
}

func (a *Agent) params(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
		Tools:    []openai.ChatCompletionToolParam{toolDefinition()},
	}
	if a.temperature != nil {
		p.Temperature = openai.Float(*a.temperature)
	}
	return p
}

// Stream is the relay.Source for one answer. Content deltas from each model
// turn are yielded as they arrive; tool calls requested at the end of a
// turn are executed before the next turn starts.
type Stream struct {
	agent    *Agent
	messages []openai.ChatCompletionMessageParamUnion

	stream *ssestream.Stream[openai.ChatCompletionChunk]
	acc    openai.ChatCompletionAccumulator
	rounds int

	queries []string
	done    bool
}

var _ relay.Source = (*Stream)(nil)

// Next returns the next content fragment, or io.EOF once the model has
// answered without requesting further tool calls.
func (s *Stream) Next(ctx context.Context) (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", context.Cause(ctx)
		}

		if s.stream == nil {
			if s.rounds >= s.agent.maxRounds {
				return "", ErrTooManyToolRounds
			}
			s.rounds++
			s.acc = openai.ChatCompletionAccumulator{}
			s.stream = s.agent.client.Chat.Completions.NewStreaming(ctx, s.agent.params(s.messages))
		}

		for s.stream.Next() {
			chunk := s.stream.Current()
			s.acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				return chunk.Choices[0].Delta.Content, nil
			}
		}

		err := s.stream.Err()
		s.closeStream()
		if err != nil {
			return "", upstreamError(err)
		}

		if err := s.runTools(ctx); err != nil {
			return "", err
		}
	}
}

// runTools appends the finished turn and the results of any tool calls it
// requested to the conversation. A turn without tool calls ends the answer.
func (s *Stream) runTools(ctx context.Context) error {
	if len(s.acc.Choices) == 0 {
		s.done = true
		return nil
	}

	msg := s.acc.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		s.done = true
		return nil
	}

	s.messages = append(s.messages, msg.ToParam())
	for _, call := range msg.ToolCalls {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		content, query := s.agent.runToolCall(ctx, call.Function.Name, call.Function.Arguments)
		if query != "" {
			s.queries = append(s.queries, query)
		}
		s.agent.logger.Debug("tool call", "tool", call.Function.Name, "sql", query)
		s.messages = append(s.messages, openai.ToolMessage(content, call.ID))
	}
	return nil
}

// LastQuery returns the most recent SQL the model executed.
func (s *Stream) LastQuery() string {
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

// Close releases the in-flight upstream response, if any.
func (s *Stream) Close() error {
	s.done = true
	return s.closeStream()
}

func (s *Stream) closeStream() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}

// UpstreamError carries the provider's human-readable message for a failed
// API call.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstreamError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("model request failed with status %d", apiErr.StatusCode)
		}
		return &UpstreamError{StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return err
}
