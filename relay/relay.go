// Package relay turns a stream of upstream text fragments into an event
// stream for a single HTTP client.
//
// Each fragment extends the session's cumulative message and is sent as a
// text frame carrying the whole message so far. A session ends with exactly
// one of: a done frame, an error frame, or a silent stop when the client is
// gone or the caller cancelled.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/citysql/pkg/metrics"
	"github.com/papercomputeco/citysql/pkg/sse"
)

// ErrSessionTimeout is reported to the client when a session outlives
// Config.SessionTimeout.
var ErrSessionTimeout = errors.New("session timed out")

// ErrorFrameTimeout bounds the write of an error frame, which may happen after
// the session context is done.
const ErrorFrameTimeout = time.Second

// Outcome is the terminal signal a session ended with.
type Outcome string

const (
	// OutcomeDone means the source was exhausted and the done frame was
	// written.
	OutcomeDone Outcome = "done"

	// OutcomeError means the source failed and an error frame was written.
	OutcomeError Outcome = "error"

	// OutcomeStopped means the session ended without a terminal frame: the
	// client disconnected, the caller cancelled, or the final frame could
	// not be written.
	OutcomeStopped Outcome = "stopped"
)

// Session is one inbound request's relay work. The relay owns both ends for
// the lifetime of Pump and closes each exactly once.
type Session struct {
	// ID identifies the session in logs. Generated when empty.
	ID string

	Source Source
	Sink   Sink
}

// Result summarizes a finished session.
type Result struct {
	ID      string
	Outcome Outcome

	// Message is the cumulative text assembled from every fragment pulled.
	Message   string
	Fragments int

	// Err is the upstream failure for OutcomeError, and the disconnect or
	// cancellation cause for OutcomeStopped.
	Err error

	Duration time.Duration
}

// Relay pumps sessions. A single Relay serves any number of concurrent
// sessions; sessions share no state.
type Relay struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Relay.
func New(config Config) *Relay {
	timeout := config.SessionTimeout
	if timeout == 0 {
		timeout = DefaultSessionTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Relay{
		timeout: timeout,
		logger:  logger,
	}
}

// Pump pulls fragments from s.Source and writes frames to s.Sink until the
// source is exhausted, it fails, a write fails or ctx is done. Pump never
// returns an error: failures are either reported to the client in-band or,
// when the client is unreachable, recorded in the Result and dropped. A write
// the client has not accepted by the time ctx is done is abandoned by closing
// the sink.
func (r *Relay) Pump(ctx context.Context, s Session) (res Result) {
	start := time.Now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	res.ID = s.ID
	log := r.logger.With("session_id", s.ID)

	ctx, cancel := r.sessionContext(ctx)
	defer cancel()

	// The sink is closed either here or by a write interrupted by ctx.
	closeSink := sync.OnceValue(s.Sink.Close)
	w := &frameWriter{sink: s.Sink, close: closeSink}

	defer func() {
		if err := s.Source.Close(); err != nil {
			log.Debug("closing source", "err", err)
		}
		if err := closeSink(); err != nil {
			log.Debug("closing sink", "err", err)
		}

		res.Duration = time.Since(start)
		metrics.ObserveRelaySession(string(res.Outcome), res.Fragments, res.Duration)
		log.Debug("relay session finished",
			"outcome", res.Outcome,
			"fragments", res.Fragments,
			"duration", res.Duration,
		)
	}()

	var message strings.Builder
	for {
		if ctx.Err() != nil {
			r.fail(ctx, log, w, &res, context.Cause(ctx))
			return res
		}

		frag, err := s.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			if werr := w.write(ctx, sse.Done()); werr != nil {
				res.Outcome = OutcomeStopped
				res.Err = werr
				log.Debug("client gone before done frame", "err", werr)
				return res
			}
			res.Outcome = OutcomeDone
			return res
		}
		if err != nil {
			r.fail(ctx, log, w, &res, err)
			return res
		}

		message.WriteString(frag)
		res.Fragments++
		res.Message = message.String()

		if werr := w.write(ctx, sse.Text(res.Message)); werr != nil {
			res.Outcome = OutcomeStopped
			res.Err = werr
			log.Debug("client gone, stopping relay", "err", werr)
			return res
		}
	}
}

// fail ends the session after an upstream error or a done context.
func (r *Relay) fail(ctx context.Context, log *slog.Logger, w *frameWriter, res *Result, err error) {
	if IsCancellation(ctx, err) {
		res.Outcome = OutcomeStopped
		res.Err = err
		log.Debug("relay cancelled", "err", err)
		return
	}

	if errors.Is(context.Cause(ctx), ErrSessionTimeout) {
		err = ErrSessionTimeout
	}
	res.Err = err
	log.Warn("upstream failed", "err", err)

	// ctx may already be done; the error frame gets its own deadline.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ErrorFrameTimeout)
	defer cancel()

	if werr := w.write(wctx, sse.Error(err.Error())); werr != nil {
		res.Outcome = OutcomeStopped
		log.Debug("error frame not delivered", "err", werr)
		return
	}
	res.Outcome = OutcomeError
}

// frameWriter writes frames to a session's sink. A write still blocked when
// its context is done is failed by closing the sink.
type frameWriter struct {
	sink  Sink
	close func() error
}

func (w *frameWriter) write(ctx context.Context, f sse.Frame) error {
	b, err := sse.Encode(f)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = w.close() })
	defer stop()

	if _, err := w.sink.Write(b); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", err, context.Cause(ctx))
		}
		return err
	}
	return nil
}

func (r *Relay) sessionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, r.timeout, ErrSessionTimeout)
}

// IsCancellation reports whether err means the session should stop without
// telling the client anything: the client went away or the caller aborted.
// A session timeout is not a cancellation.
func IsCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, ErrClientGone) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, ErrSessionTimeout) || errors.Is(context.Cause(ctx), ErrSessionTimeout) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}
