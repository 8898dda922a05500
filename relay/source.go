package relay

import (
	"context"
	"io"
)

// Source is a finite, non-restartable sequence of text fragments produced by
// an upstream generator. Next returns io.EOF once the sequence is exhausted;
// any other error is an upstream failure whose message is shown to the user.
// Implementations must return promptly once ctx is done.
type Source interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Deferred adapts an upstream that produces one complete result rather than
// a stream. fn runs on the first call to Next and its text becomes the only
// fragment.
func Deferred(fn func(ctx context.Context) (string, error)) Source {
	return &deferredSource{fn: fn}
}

type deferredSource struct {
	fn   func(ctx context.Context) (string, error)
	done bool
}

func (s *deferredSource) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true

	text, err := s.fn(ctx)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *deferredSource) Close() error {
	s.done = true
	return nil
}
