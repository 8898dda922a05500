// Package sse implements the citysql event-stream protocol: the frames the
// chat relay writes to an HTTP response body and the decoder clients use to
// turn that body back into message updates.
//
// Every frame is a single "data: " line followed by a blank line. Text and
// error frames carry a JSON body of the form {"type":...,"value":...}; the
// stream ends with the literal "data: [DONE]". Text frames always carry the
// full message produced so far, so clients overwrite rather than append.
//
// Framing follows the WHATWG server-sent events format:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Kind identifies one of the three frame variants.
type Kind string

const (
	KindText  Kind = "text"
	KindError Kind = "error"
	KindDone  Kind = "done"
)

// Response headers for an event-stream body.
const (
	ContentType  = "text/event-stream"
	CacheControl = "no-cache"
	Connection   = "keep-alive"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
	boundary     = "\n\n"
)

// Frame is one logical event on the wire.
type Frame struct {
	Kind Kind

	// Value is the cumulative message for text frames and the error message
	// for error frames. Unused for done frames.
	Value string
}

// Text returns a text frame carrying the cumulative message.
func Text(message string) Frame {
	return Frame{Kind: KindText, Value: message}
}

// Error returns an error frame carrying msg.
func Error(msg string) Frame {
	return Frame{Kind: KindError, Value: msg}
}

// Done returns the terminal frame.
func Done() Frame {
	return Frame{Kind: KindDone}
}

// body is the JSON payload of text and error frames.
type body struct {
	Type  Kind   `json:"type"`
	Value string `json:"value"`
}
