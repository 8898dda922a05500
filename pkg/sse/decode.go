package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const readChunkSize = 4 * 1024

// Decoder reads an event-stream body and yields the cumulative message after
// every text frame.
//
// ┌────────────────────┐
// │ body io.ReadCloser │
// └────────────────────┘
// │ arbitrary chunks
// ▼
// ┌────────────────────┐   ┌────────────────┐
// │  buffer + split    │──▶│  tee io.Writer │ (optional, raw bytes)
// └────────────────────┘   └────────────────┘
// │ complete frames
// ▼
// ┌────────────────────┐
// │  Decoder.Next()    │ ──▶ cumulative message
// └────────────────────┘
//
// Frames may be split across reads at any byte offset. The split happens on
// raw bytes, so a multi-byte UTF-8 sequence cut by the transport is only
// decoded once its frame is complete.
//
// A Decoder is not safe for concurrent use, except for Close which may be
// called from another goroutine to abort a blocked read.
type Decoder struct {
	body   io.ReadCloser
	tee    io.Writer
	logger *slog.Logger

	// buf only ever holds the bytes after the last frame boundary seen.
	buf     []byte
	pending []string
	readErr error

	message string
	err     error

	aborted   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithTee copies every raw byte read from the body to w.
func WithTee(w io.Writer) DecoderOption {
	return func(d *Decoder) {
		d.tee = w
	}
}

// WithLogger sets the logger used to report malformed frames.
func WithLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		d.logger = l
	}
}

// NewDecoder returns a Decoder reading from body. The decoder owns body and
// closes it exactly once, either when the stream terminates or when Close is
// called.
func NewDecoder(body io.ReadCloser, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		body:   body,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next blocks until the next text frame and returns the cumulative message
// it carries.
//
// The sequence ends with io.EOF after a done frame or a clean end of body, with
// a *ProtocolError after an error frame, with a *TransportError when the
// body fails to read and with ErrClosed after Close. Once terminated, Next
// keeps returning the same error and the body has been released.
func (d *Decoder) Next() (string, error) {
	if d.err != nil {
		return "", d.err
	}

	for {
		if d.aborted.Load() {
			return "", d.terminate(ErrClosed)
		}

		for len(d.pending) > 0 {
			seg := d.pending[0]
			d.pending = d.pending[1:]

			msg, ok, err := d.handle(seg)
			if err != nil {
				return "", d.terminate(err)
			}
			if ok {
				return msg, nil
			}
		}

		if d.readErr != nil {
			if errors.Is(d.readErr, io.EOF) {
				if len(bytes.TrimSpace(d.buf)) > 0 {
					d.logger.Debug("discarding unterminated frame at end of stream", "bytes", len(d.buf))
				}
				return "", d.terminate(io.EOF)
			}
			return "", d.terminate(&TransportError{Err: d.readErr})
		}

		d.fill()
	}
}

// Message returns the latest cumulative message.
func (d *Decoder) Message() string {
	return d.message
}

// Close aborts the stream and releases the body. It is safe to call more than
// once and from a goroutine other than the one calling Next.
func (d *Decoder) Close() error {
	d.aborted.Store(true)
	return d.release()
}

func (d *Decoder) release() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.body.Close()
	})
	return d.closeErr
}

// fill performs one read and moves every complete frame into pending.
func (d *Decoder) fill() {
	chunk := make([]byte, readChunkSize)
	n, err := d.body.Read(chunk)
	if n > 0 {
		if d.tee != nil {
			if _, terr := d.tee.Write(chunk[:n]); terr != nil {
				d.logger.Warn("tee write failed", "err", terr)
				d.tee = nil
			}
		}
		d.buf = append(d.buf, chunk[:n]...)
		d.split()
	}
	if err != nil {
		d.readErr = err
	}
}

func (d *Decoder) split() {
	for {
		i := bytes.Index(d.buf, []byte(boundary))
		if i < 0 {
			return
		}
		d.pending = append(d.pending, string(d.buf[:i]))
		d.buf = append(d.buf[:0], d.buf[i+len(boundary):]...)
	}
}

// handle interprets one complete frame. ok reports whether the message was
// updated.
func (d *Decoder) handle(seg string) (string, bool, error) {
	if strings.TrimSpace(seg) == "" {
		return "", false, nil
	}

	payload, found := strings.CutPrefix(seg, dataPrefix)
	if !found {
		return "", false, nil
	}
	if payload == doneSentinel {
		return "", false, io.EOF
	}

	var b body
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		d.logger.Warn("skipping malformed frame", "err", err, "payload", payload)
		return "", false, nil
	}

	switch b.Type {
	case KindText:
		if b.Value == "" {
			return "", false, nil
		}
		d.message = b.Value
		return d.message, true, nil
	case KindError:
		msg := b.Value
		if msg == "" {
			msg = UnknownErrorMessage
		}
		return "", false, &ProtocolError{Message: msg}
	default:
		d.logger.Debug("ignoring frame of unknown type", "type", b.Type)
		return "", false, nil
	}
}

func (d *Decoder) terminate(err error) error {
	d.err = err
	d.pending = nil
	d.buf = nil
	if cerr := d.release(); cerr != nil {
		d.logger.Debug("closing event stream body", "err", cerr)
	}
	return err
}
