// Package inmemory provides a history.Driver backed by a map. Entries are
// lost on restart.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/papercomputeco/citysql/pkg/history"
)

// Driver implements history.Driver in memory.
type Driver struct {
	mu      sync.RWMutex
	entries map[string]*history.Entry
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		entries: make(map[string]*history.Entry),
	}
}

// Put stores a copy of e.
func (d *Driver) Put(_ context.Context, e *history.Entry) error {
	if e == nil {
		return errors.New("cannot store nil entry")
	}
	if e.ID == "" {
		return errors.New("entry id is required")
	}

	cp := *e
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[e.ID] = &cp
	return nil
}

// Get returns a copy of the entry with the given id.
func (d *Driver) Get(_ context.Context, id string) (*history.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[id]
	if !ok {
		return nil, history.NotFoundError{ID: id}
	}
	cp := *e
	return &cp, nil
}

// Recent returns up to limit entries ordered by StartedAt, newest first.
func (d *Driver) Recent(_ context.Context, limit int) ([]*history.Entry, error) {
	d.mu.RLock()
	out := make([]*history.Entry, 0, len(d.entries))
	for _, e := range d.entries {
		cp := *e
		out = append(out, &cp)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
