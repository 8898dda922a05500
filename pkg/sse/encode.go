package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode renders f as wire bytes, including the trailing blank line.
func Encode(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(dataPrefix)

	switch f.Kind {
	case KindDone:
		buf.WriteString(doneSentinel)
	case KindText, KindError:
		// Browsers parse the payload with JSON.parse, so HTML escaping of
		// <, > and & would only add noise.
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body{Type: f.Kind, Value: f.Value}); err != nil {
			return nil, fmt.Errorf("encoding %s frame: %w", f.Kind, err)
		}
		// json.Encoder terminates every value with a newline.
		buf.Truncate(buf.Len() - 1)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}

	buf.WriteString(boundary)
	return buf.Bytes(), nil
}
