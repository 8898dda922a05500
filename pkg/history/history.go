// Package history records answered questions: what was asked, what the
// model replied, the SQL it used and how the session ended.
package history

import (
	"context"
	"time"
)

// Kind is the route that produced an entry.
type Kind string

const (
	KindChat   Kind = "chat"
	KindSearch Kind = "search"
)

// Entry is one answered (or abandoned) question.
type Entry struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	SQL      string `json:"sqlQuery,omitempty"`

	// Outcome is the terminal signal of the session: done, error or
	// stopped.
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Driver persists entries.
type Driver interface {
	// Put stores e, replacing any entry with the same ID.
	Put(ctx context.Context, e *Entry) error

	// Get returns the entry with the given ID or a NotFoundError.
	Get(ctx context.Context, id string) (*Entry, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	// Close releases any resources held by the driver.
	Close() error
}

// DefaultRecentLimit is used by callers that do not specify a limit.
const DefaultRecentLimit = 50

// NotFoundError is returned when an entry doesn't exist.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "history entry not found"
	}
	return "history entry not found: " + e.ID
}
