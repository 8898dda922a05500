package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/citysql/pkg/agent"
	"github.com/papercomputeco/citysql/pkg/cities"
	"github.com/papercomputeco/citysql/pkg/history"
	"github.com/papercomputeco/citysql/pkg/sse"
	"github.com/papercomputeco/citysql/pkg/worker"
	"github.com/papercomputeco/citysql/relay"
)

const invalidQueryMessage = "Invalid request. Please provide a natural language query as a string."

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one message of a chat thread. Content is either a plain
// string or a list of typed parts of which only "text" parts are read.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ContentPart is one element of a structured message content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text returns the message's text content.
func (m ChatMessage) Text() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}

	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Question returns the text of the last user message.
func (r ChatRequest) Question() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return strings.TrimSpace(r.Messages[i].Text())
		}
	}
	return ""
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the body of a successful POST /api/search.
type SearchResponse struct {
	Result   string  `json:"result"`
	SQLQuery *string `json:"sqlQuery"`
	Success  bool    `json:"success"`
}

// DataResponse is the body of a successful GET /api/data.
type DataResponse struct {
	TableData cities.TableData `json:"tableData"`
	Success   bool             `json:"success"`
}

// HistoryResponse lists recent history entries, newest first.
type HistoryResponse struct {
	Count   int              `json:"count"`
	Entries []*history.Entry `json:"entries"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleChat answers the last user message as an event stream.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: invalidQueryMessage})
	}

	question := req.Question()
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: invalidQueryMessage})
	}

	session := uuid.NewString()
	src := s.source(question)

	c.Set(fiber.HeaderContentType, sse.ContentType)
	c.Set(fiber.HeaderCacheControl, sse.CacheControl)
	c.Set(fiber.HeaderConnection, sse.Connection)

	// fasthttp closes the reader with an error when the client goes away,
	// which surfaces as a failed write on pw.
	pr, pw := io.Pipe()
	go s.pumpChat(session, question, src, pw)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// source picks the upstream shape for one chat session.
func (s *Server) source(question string) AnswerSource {
	if s.config.Streaming {
		return s.config.Agent.Stream(question)
	}
	return newGeneratedSource(s.config.Agent, question)
}

// pumpChat runs one relay session to completion and records it. It runs on
// its own goroutine with a background context because fasthttp recycles the
// request context once the handler returns.
func (s *Server) pumpChat(id, question string, src AnswerSource, pw *io.PipeWriter) {
	started := time.Now()
	res := s.relay.Pump(context.Background(), relay.Session{
		ID:     id,
		Source: src,
		Sink:   relay.NewOnceSink(pw),
	})

	entry := &history.Entry{
		ID:        res.ID,
		Kind:      history.KindChat,
		Question:  question,
		Answer:    res.Message,
		SQL:       sqlFor(res.Message, src.LastQuery()),
		Outcome:   string(res.Outcome),
		StartedAt: started,
		Duration:  res.Duration,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	s.record(entry)
}

// handleSearch answers a question in one response.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: invalidQueryMessage})
	}

	started := time.Now()
	entry := &history.Entry{
		ID:        uuid.NewString(),
		Kind:      history.KindSearch,
		Question:  req.Query,
		StartedAt: started,
	}
	defer s.record(entry)

	answer, err := s.config.Agent.Generate(c.UserContext(), req.Query)
	entry.Duration = time.Since(started)
	if err != nil {
		s.logger.Error("search failed", "err", err)
		entry.Outcome = string(relay.OutcomeError)
		entry.Error = err.Error()
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "An error occurred while processing your query: " + err.Error(),
		})
	}

	entry.Outcome = string(relay.OutcomeDone)
	entry.Answer = answer.Text
	entry.SQL = answer.SQL

	resp := SearchResponse{Result: answer.Text, Success: true}
	if sql := agent.ExtractSQL(answer.Text); sql != "" {
		resp.SQLQuery = &sql
	}
	return c.JSON(resp)
}

// handleData returns the whole cities table, formatted for display.
func (s *Server) handleData(c *fiber.Ctx) error {
	res, err := s.config.Querier.Query(c.UserContext(), cities.DataQuery)
	if err != nil {
		s.logger.Error("loading cities failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "Failed to execute SQL query: " + err.Error(),
		})
	}
	if len(res.Rows) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "No data found in the database"})
	}

	return c.JSON(DataResponse{TableData: cities.NewTableData(res), Success: true})
}

// handleListHistory returns recent history entries.
func (s *Server) handleListHistory(c *fiber.Ctx) error {
	if s.config.History == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "history is not configured"})
	}

	limit := history.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = parsed
	}

	entries, err := s.config.History.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Error("listing history failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list history"})
	}
	if entries == nil {
		entries = []*history.Entry{}
	}

	return c.JSON(HistoryResponse{Count: len(entries), Entries: entries})
}

// handleGetHistory returns a single history entry.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	if s.config.History == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "history is not configured"})
	}

	entry, err := s.config.History.Get(c.UserContext(), c.Params("id"))
	var notFound history.NotFoundError
	if errors.As(err, &notFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "history entry not found"})
	}
	if err != nil {
		s.logger.Error("loading history entry failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load history entry"})
	}

	return c.JSON(entry)
}

func (s *Server) record(e *history.Entry) {
	if s.config.Recorder == nil {
		return
	}
	if err := s.config.Recorder.Enqueue(worker.Job{Entry: e}); err != nil {
		s.logger.Debug("history entry not recorded", "id", e.ID, "err", err)
	}
}

// sqlFor prefers the statement quoted in the answer and falls back to the
// last one the model executed.
func sqlFor(answer, executed string) string {
	if sql := agent.ExtractSQL(answer); sql != "" {
		return sql
	}
	return executed
}
