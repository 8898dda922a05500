package sse

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned by Encode for a frame kind outside text, error
// and done.
var ErrUnknownKind = errors.New("unknown frame kind")

// ErrClosed is returned by Decoder.Next after the caller closed the decoder.
var ErrClosed = errors.New("event stream closed")

// UnknownErrorMessage replaces the message of an error frame with an empty
// value.
const UnknownErrorMessage = "Unknown error"

// ProtocolError is the terminal failure reported when the server sends an
// error frame.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// TransportError wraps a failure reading the response body. It is distinct
// from ProtocolError: the server never reported anything, the connection
// simply broke.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("reading event stream: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
