// Package worker provides an asynchronous worker pool for persisting history
// entries using the provided history.Driver.
//
// The pool keeps storage off the request path: a slow or failing history
// backend never delays a chat stream or a search response.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/citysql/pkg/history"
	"github.com/papercomputeco/citysql/pkg/metrics"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 5 * time.Second
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("worker pool closed")

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Entry *history.Entry
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the history backend entries are written to.
	Driver history.Driver

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single Put (defaults to 5s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes history jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("history driver is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job without blocking. A full queue drops the job and
// counts it in citysql_history_dropped_total.
func (p *Pool) Enqueue(job Job) error {
	if job.Entry == nil {
		return errors.New("job has no entry")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- job:
		p.logger.Debug("history job queued", "id", job.Entry.ID, "kind", job.Entry.Kind)
		return nil
	default:
		metrics.IncrementHistoryDropped()
		p.logger.Error("history job not queued, queue full, job dropped",
			"id", job.Entry.ID,
			"kind", job.Entry.Kind,
		)
		return fmt.Errorf("queue full: entry %s dropped", job.Entry.ID)
	}
}

// Close stops accepting jobs and waits for queued ones to drain. Call it
// after the HTTP server has stopped. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("history worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("history worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := p.config.Driver.Put(ctx, job.Entry); err != nil {
		p.logger.Error("storing history entry failed", "id", job.Entry.ID, "err", err)
		return
	}

	p.logger.Debug("history entry stored",
		"id", job.Entry.ID,
		"kind", job.Entry.Kind,
		"outcome", job.Entry.Outcome,
	)
}
