package frame

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
)

// terminator ends every frame on the wire.
const terminator = 0x00

// Buffer pool for serializing frames.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufferPool.Put(buf)
}

// WriteFrame serializes f and writes it to w with a single Write call,
// so concurrent writers that serialize on a lock cannot interleave bytes
// within a frame boundary.
//
// The frame is validated before any bytes are written:
//   - the command must be part of the STOMP 1.0 frame set
//   - header names must not contain ':', CR or LF
//   - header values must not contain CR, LF or the terminator byte
//   - a body containing the terminator byte requires a content-length
//     header, and a content-length header must match len(Body)
//
// WriteFrame never injects headers; callers that need content-length set
// it when building the frame. A heartbeat frame writes a bare terminator.
func WriteFrame(w io.Writer, f *Frame) error {
	if err := validateFrame(f); err != nil {
		return err
	}

	buf := getBuffer()
	defer putBuffer(buf)

	if !f.IsHeartbeat() {
		buf.WriteString(f.Command)
		buf.WriteByte('\n')
		for _, h := range f.Headers {
			buf.WriteString(h.Name)
			buf.WriteByte(':')
			buf.WriteString(h.Value)
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
		buf.Write(f.Body)
	}
	buf.WriteByte(terminator)

	_, err := w.Write(buf.Bytes())
	return err
}

// Marshal returns the wire representation of f.
func Marshal(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateFrame(f *Frame) error {
	if f.IsHeartbeat() {
		return nil
	}
	if !ValidCommand(f.Command) {
		return &EncodeError{Message: fmt.Sprintf("invalid command %q", f.Command)}
	}

	for _, h := range f.Headers {
		if h.Name == "" {
			return &EncodeError{Message: "empty header name"}
		}
		if strings.ContainsAny(h.Name, ":\r\n") {
			return &EncodeError{Message: fmt.Sprintf("header name %q contains a reserved character", h.Name)}
		}
		if strings.ContainsAny(h.Value, "\r\n\x00") {
			return &EncodeError{Message: fmt.Sprintf("header %q value contains a reserved character", h.Name)}
		}
	}

	n, ok, err := f.ContentLength()
	if err != nil {
		return &EncodeError{Message: "malformed content-length header"}
	}
	if ok && n != len(f.Body) {
		return &EncodeError{Message: fmt.Sprintf("content-length %d does not match body length %d", n, len(f.Body))}
	}
	if !ok && bytes.IndexByte(f.Body, terminator) >= 0 {
		// Without content-length the body is terminator-delimited and
		// would be truncated at the embedded NUL.
		return &EncodeError{Message: "body contains the terminator byte but no content-length header"}
	}
	return nil
}
