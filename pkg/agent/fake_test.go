package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/citysql/pkg/cities"
)

// fakeLLM serves /v1/chat/completions as a stream, one scripted turn per
// request.
type fakeLLM struct {
	server *httptest.Server

	mu       sync.Mutex
	turns    []func(w http.ResponseWriter)
	requests []chatRequest
}

type chatRequest struct {
	Model    string           `json:"model"`
	Stream   bool             `json:"stream"`
	Messages []map[string]any `json:"messages"`
	Tools    []map[string]any `json:"tools"`
}

func newFakeLLM(turns ...func(w http.ResponseWriter)) *fakeLLM {
	f := &fakeLLM{turns: turns}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeLLM) URL() string {
	return f.server.URL + "/v1/"
}

func (f *fakeLLM) Close() {
	f.server.Close()
}

func (f *fakeLLM) Requests() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.requests...)
}

func (f *fakeLLM) handle(w http.ResponseWriter, r *http.Request) {
	defer GinkgoRecover()
	Expect(r.URL.Path).To(Equal("/v1/chat/completions"))

	body, err := io.ReadAll(r.Body)
	Expect(err).NotTo(HaveOccurred())
	var req chatRequest
	Expect(json.Unmarshal(body, &req)).To(Succeed())

	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	var turn func(w http.ResponseWriter)
	if n < len(f.turns) {
		turn = f.turns[n]
	} else {
		turn = f.turns[len(f.turns)-1]
	}
	f.mu.Unlock()

	turn(w)
}

func chunk(id string, delta map[string]any, finish any) string {
	b, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	})
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

func writeStream(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// textTurn answers with content split into the given deltas.
func textTurn(id string, deltas ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		chunks := []string{chunk(id, map[string]any{"role": "assistant", "content": ""}, nil)}
		for _, d := range deltas {
			chunks = append(chunks, chunk(id, map[string]any{"content": d}, nil))
		}
		chunks = append(chunks, chunk(id, map[string]any{}, "stop"))
		writeStream(w, chunks...)
	}
}

// toolTurn requests one execute_sql call.
func toolTurn(id, callID, query string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		args, err := json.Marshal(map[string]string{"query": query})
		Expect(err).NotTo(HaveOccurred())
		writeStream(w,
			chunk(id, map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{{
					"index": 0,
					"id":    callID,
					"type":  "function",
					"function": map[string]any{
						"name":      "execute_sql",
						"arguments": string(args),
					},
				}},
			}, nil),
			chunk(id, map[string]any{}, "tool_calls"),
		)
	}
}

func errorTurn(status int, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":%q,"type":"invalid_request_error","param":null,"code":null}}`, message)
	}
}

// fakeQuerier records queries and answers with a fixed result or error.
type fakeQuerier struct {
	mu      sync.Mutex
	queries []string
	result  *cities.Result
	err     error
}

func (q *fakeQuerier) Query(_ context.Context, query string) (*cities.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, query)
	if q.err != nil {
		return nil, q.err
	}
	return q.result, nil
}
