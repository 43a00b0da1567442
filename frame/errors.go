package frame

import "fmt"

// ParseError reports a malformed frame on the wire. The stream position
// is unrecoverable after a parse error, so the connection must be closed.
// Raw holds the offending bytes for diagnostics when available.
type ParseError struct {
	Message string
	Raw     []byte
	Err     error
}

func (e *ParseError) Error() string {
	msg := "stomp: parse error: " + e.Message
	if len(e.Raw) > 0 {
		msg += fmt.Sprintf(" (input: %q)", e.Raw)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// EncodeError reports a frame that cannot be represented on the wire,
// such as a header value containing a newline or terminator byte.
// The frame was rejected before any bytes were written; the connection
// remains usable.
type EncodeError struct {
	Message string
}

func (e *EncodeError) Error() string {
	return "stomp: encode error: " + e.Message
}
