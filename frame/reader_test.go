package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadFrame(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *Frame
	}{
		{
			name:     "command only",
			input:    "DISCONNECT\n\n\x00",
			expected: New(CmdDisconnect),
		},
		{
			name:  "headers no body",
			input: "CONNECTED\nsession:abc-123\n\n\x00",
			expected: New(CmdConnected,
				Header{Name: HdrSession, Value: "abc-123"},
			),
		},
		{
			name:  "body without content-length",
			input: "MESSAGE\ndestination:/queue/a\nmessage-id:m1\n\nhello\x00",
			expected: &Frame{
				Command: CmdMessage,
				Headers: Headers{
					{Name: HdrDestination, Value: "/queue/a"},
					{Name: HdrMessageID, Value: "m1"},
				},
				Body: []byte("hello"),
			},
		},
		{
			name:  "sized body with embedded terminator",
			input: "MESSAGE\ncontent-length:5\n\na\x00b\x00c\x00",
			expected: &Frame{
				Command: CmdMessage,
				Headers: Headers{{Name: HdrContentLength, Value: "5"}},
				Body:    []byte("a\x00b\x00c"),
			},
		},
		{
			name:  "duplicate header keeps first value",
			input: "MESSAGE\nfoo:first\nfoo:second\n\n\x00",
			expected: New(CmdMessage,
				Header{Name: "foo", Value: "first"},
			),
		},
		{
			name:  "header value containing colons",
			input: "MESSAGE\ndestination:/queue/a:b:c\n\n\x00",
			expected: New(CmdMessage,
				Header{Name: HdrDestination, Value: "/queue/a:b:c"},
			),
		},
		{
			name:  "CRLF line endings",
			input: "RECEIPT\r\nreceipt-id:r1\r\n\r\n\x00",
			expected: New(CmdReceipt,
				Header{Name: HdrReceiptID, Value: "r1"},
			),
		},
		{
			name:  "unknown command decodes",
			input: "GREETING\nversion:2\n\nhello\x00",
			expected: &Frame{
				Command: "GREETING",
				Headers: Headers{{Name: "version", Value: "2"}},
				Body:    []byte("hello"),
			},
		},
		{
			name:     "heartbeat bare terminator",
			input:    "\x00",
			expected: &Frame{},
		},
		{
			name:     "heartbeat newline",
			input:    "\n",
			expected: &Frame{},
		},
		{
			name:     "heartbeat CRLF",
			input:    "\r\n",
			expected: &Frame{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewReader(strings.NewReader(tt.input)).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			assertFrameEqual(t, f, tt.expected)
		})
	}
}

func TestReadFrameSequence(t *testing.T) {
	input := "CONNECTED\nsession:s1\n\n\x00" + "\n" + "MESSAGE\ndestination:/q\n\nhi\x00"
	r := NewReader(strings.NewReader(input))

	f, err := r.ReadFrame()
	if err != nil || f.Command != CmdConnected {
		t.Fatalf("first frame = %v, %v, want CONNECTED", f, err)
	}
	f, err = r.ReadFrame()
	if err != nil || !f.IsHeartbeat() {
		t.Fatalf("second frame = %v, %v, want heartbeat", f, err)
	}
	f, err = r.ReadFrame()
	if err != nil || f.Command != CmdMessage || string(f.Body) != "hi" {
		t.Fatalf("third frame = %v, %v, want MESSAGE with body hi", f, err)
	}
	if _, err = r.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("after last frame, error = %v, want io.EOF", err)
	}
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "command containing a colon",
			input: "BO:GUS\n\n\x00",
		},
		{
			name:  "command containing a space",
			input: "LOREM IPSUM\n\n\x00",
		},
		{
			name:  "command containing control bytes",
			input: "MES\x01SAGE\n\n\x00",
		},
		{
			name:  "header line missing colon",
			input: "MESSAGE\nnocolon\n\n\x00",
		},
		{
			name:  "malformed content-length",
			input: "MESSAGE\ncontent-length:abc\n\n\x00",
		},
		{
			name:  "negative content-length",
			input: "MESSAGE\ncontent-length:-1\n\n\x00",
		},
		{
			name:  "content-length short of terminator",
			input: "MESSAGE\ncontent-length:2\n\nhello\x00",
		},
		{
			name:  "truncated mid-headers",
			input: "MESSAGE\ndestination:/q",
		},
		{
			name:  "truncated mid-body",
			input: "MESSAGE\ncontent-length:10\n\nshort",
		},
		{
			name:  "missing terminator",
			input: "DISCONNECT\n\n",
		},
		{
			name:  "bare CR between frames",
			input: "\rMESSAGE\n\n\x00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input)).ReadFrame()
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("ReadFrame() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestReadFrameTruncatedWrapsUnexpectedEOF(t *testing.T) {
	_, err := NewReader(strings.NewReader("MESSAGE\ncontent-length:10\n\nshort")).ReadFrame()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadFrame() error = %v, want io.ErrUnexpectedEOF in the chain", err)
	}
}

func TestReadFrameBoundaryEOFIsBare(t *testing.T) {
	_, err := NewReader(strings.NewReader("")).ReadFrame()
	if err != io.EOF {
		t.Errorf("ReadFrame() on empty stream = %v, want bare io.EOF", err)
	}
}

func TestRoundTrip(t *testing.T) {
	frames := []*Frame{
		{},
		New(CmdDisconnect),
		New(CmdConnect, Header{Name: HdrLogin, Value: "guest"}),
		{
			Command: CmdSend,
			Headers: Headers{
				{Name: HdrDestination, Value: "/queue/a"},
				{Name: HdrTransaction, Value: "tx-1"},
			},
			Body: []byte("payload"),
		},
		{
			Command: CmdSend,
			Headers: Headers{
				{Name: HdrDestination, Value: "/queue/a"},
				{Name: HdrContentLength, Value: "5"},
			},
			Body: []byte("a\x00b\x00c"),
		},
	}

	for _, original := range frames {
		data, err := Marshal(original)
		if err != nil {
			t.Fatalf("Marshal(%+v) error = %v", original, err)
		}
		decoded, err := NewReader(bytes.NewReader(data)).ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame(%q) error = %v", data, err)
		}
		assertFrameEqual(t, decoded, original)
	}
}

func assertFrameEqual(t *testing.T, got, want *Frame) {
	t.Helper()
	if got.Command != want.Command {
		t.Errorf("Command = %q, want %q", got.Command, want.Command)
	}
	if len(got.Headers) != len(want.Headers) {
		t.Fatalf("Headers = %+v, want %+v", got.Headers, want.Headers)
	}
	for i := range want.Headers {
		if got.Headers[i] != want.Headers[i] {
			t.Errorf("Headers[%d] = %+v, want %+v", i, got.Headers[i], want.Headers[i])
		}
	}
	if !bytes.Equal(got.Body, want.Body) {
		t.Errorf("Body = %q, want %q", got.Body, want.Body)
	}
}
