package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// Reader decodes frames from a byte stream.
//
// Errors at a frame boundary (io.EOF on a cleanly closed stream, read
// deadline expiry while idle) are returned unchanged. Any error once a
// frame has started decoding is wrapped in a *ParseError because the
// stream position is no longer trustworthy.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// ReadFrame decodes the next frame.
//
// An empty frame on the wire (a bare terminator, or a newline between
// frames) decodes to a heartbeat frame, not an error. Duplicate header
// names keep the first value.
//
// Commands are accepted by shape, not by name: a syntactically valid
// command this client does not know still decodes into a Frame, so a
// single unknown frame cannot poison the stream. Callers decide what to
// do with commands they do not handle.
func (r *Reader) ReadFrame() (*Frame, error) {
	c, err := r.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch c {
	case terminator, '\n':
		return &Frame{}, nil
	case '\r':
		if c, err = r.r.ReadByte(); err != nil {
			return nil, unterminated(nil, err)
		}
		if c != '\n' {
			return nil, &ParseError{Message: "bare CR between frames", Raw: []byte{'\r', c}}
		}
		return &Frame{}, nil
	}
	_ = r.r.UnreadByte()

	command, err := r.readLine()
	if err != nil {
		return nil, err
	}
	if !wellFormedCommand(command) {
		return nil, &ParseError{Message: "malformed command", Raw: command}
	}

	f := &Frame{Command: string(command)}
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			break
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, &ParseError{Message: "header line missing colon", Raw: line}
		}
		name := string(line[:colon])
		if !f.Headers.Contains(name) {
			f.Headers.Add(name, string(line[colon+1:]))
		}
	}

	body, err := r.readBody(f.Headers)
	if err != nil {
		return nil, err
	}
	f.Body = body
	return f, nil
}

// readBody reads the frame body, sized by content-length when present and
// terminator-delimited otherwise, and consumes the terminator.
func (r *Reader) readBody(headers Headers) ([]byte, error) {
	v, sized := headers.Get(HdrContentLength)
	if !sized {
		data, err := r.r.ReadBytes(terminator)
		if err != nil {
			return nil, unterminated(data, err)
		}
		return trimEmpty(data[:len(data)-1]), nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil, &ParseError{Message: "malformed content-length header", Raw: []byte(v)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, unterminated(nil, err)
	}
	c, err := r.r.ReadByte()
	if err != nil {
		return nil, unterminated(body, err)
	}
	if c != terminator {
		return nil, &ParseError{Message: "content-length does not reach the frame terminator", Raw: []byte{c}}
	}
	return trimEmpty(body), nil
}

// readLine reads one LF-terminated line with the trailing LF (and an
// optional CR before it) removed.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.r.ReadBytes('\n')
	if err != nil {
		return nil, unterminated(line, err)
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// wellFormedCommand reports whether line is a plausible command token:
// non-empty printable ASCII with no colon, so a stray header line or
// binary garbage is still rejected.
func wellFormedCommand(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	for _, c := range line {
		if c <= ' ' || c >= 0x7f || c == ':' {
			return false
		}
	}
	return true
}

func unterminated(raw []byte, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &ParseError{Message: "unterminated frame", Raw: raw, Err: err}
}

func trimEmpty(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	return body
}
