package relay

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClientGone marks a failed write to the outbound sink. The client is no
// longer reading, so nothing further can be reported to it.
var ErrClientGone = errors.New("client disconnected")

// Sink is the outbound byte stream of one session.
type Sink interface {
	io.Writer
	io.Closer
}

// OnceSink wraps w so that Close runs at most once and every write failure
// is classified as ErrClientGone.
type OnceSink struct {
	w    io.WriteCloser
	once sync.Once
	err  error

	mu     sync.Mutex
	closed bool
}

// NewOnceSink returns a Sink over w. It is typically the writer half of an
// io.Pipe whose reader backs an HTTP response body.
func NewOnceSink(w io.WriteCloser) *OnceSink {
	return &OnceSink{w: w}
}

func (s *OnceSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("%w: %w", ErrClientGone, io.ErrClosedPipe)
	}

	n, err := s.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrClientGone, err)
	}
	return n, nil
}

// Close closes the underlying writer on the first call and returns the same
// result on every later call.
func (s *OnceSink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.err = s.w.Close()
	})
	return s.err
}
