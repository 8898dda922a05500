// Package chatclient talks to a running citysql server. Stream drives the
// event-stream decoder over POST /api/chat; the remaining calls wrap the JSON
// endpoints.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/citysql/api"
	"github.com/papercomputeco/citysql/pkg/cities"
	"github.com/papercomputeco/citysql/pkg/history"
	"github.com/papercomputeco/citysql/pkg/sse"
)

// DefaultTimeout bounds the JSON endpoints. Streams are bounded by the
// caller's context and the server's session timeout instead.
const DefaultTimeout = 2 * time.Minute

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int

	// Message is the server's error body, when it sent one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is a citysql API client.
type Client struct {
	target string

	// streamClient carries no timeout: a stream lives as long as its answer.
	streamClient *http.Client
	jsonClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.streamClient = hc
		c.jsonClient = hc
	}
}

// WithLogger sets the logger passed on to stream decoders.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client for the server at target, e.g. "http://localhost:3000".
func New(target string, opts ...Option) *Client {
	c := &Client{
		target:       strings.TrimRight(target, "/"),
		streamClient: &http.Client{},
		jsonClient:   &http.Client{Timeout: DefaultTimeout},
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []api.ContentPart `json:"content"`
}

// Stream asks question over /api/chat and returns a decoder yielding the
// cumulative answer. The caller must Close the decoder if it stops reading
// before the stream terminates. Cancelling ctx aborts the stream.
func (c *Client) Stream(ctx context.Context, question string, opts ...sse.DecoderOption) (*sse.Decoder, error) {
	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{{
			Role:    "user",
			Content: []api.ContentPart{{Type: "text", Text: question}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	opts = append([]sse.DecoderOption{sse.WithLogger(c.logger)}, opts...)
	return sse.NewDecoder(resp.Body, opts...), nil
}

// Search asks question over /api/search.
func (c *Client) Search(ctx context.Context, question string) (*api.SearchResponse, error) {
	body, err := json.Marshal(api.SearchRequest{Query: question})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var out api.SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/search", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Data fetches the formatted cities table.
func (c *Client) Data(ctx context.Context) (*cities.TableData, error) {
	var out api.DataResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/data", nil, &out); err != nil {
		return nil, err
	}
	return &out.TableData, nil
}

// History lists up to limit recent entries, newest first. A limit of zero
// uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]*history.Entry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var out api.HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.target+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.jsonClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// checkStatus turns a non-2xx response into a *StatusError, reading the
// server's {"error": ...} body when present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	serr := &StatusError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body api.ErrorResponse
	if json.Unmarshal(raw, &body) == nil {
		serr.Message = body.Error
	}
	return serr
}
