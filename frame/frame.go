// Package frame implements the STOMP 1.0 wire format.
//
// A frame is a command line, a set of headers, a blank line, an optional
// body and a single NUL terminator. Header order is preserved so that a
// frame serializes deterministically; duplicate header names keep the
// first value, matching typical broker semantics.
package frame

import "strconv"

// Client commands.
const (
	CmdConnect     = "CONNECT"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdAck         = "ACK"
	CmdBegin       = "BEGIN"
	CmdCommit      = "COMMIT"
	CmdAbort       = "ABORT"
	CmdDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CmdConnected = "CONNECTED"
	CmdMessage   = "MESSAGE"
	CmdReceipt   = "RECEIPT"
	CmdError     = "ERROR"
)

// Standard header names.
const (
	HdrDestination   = "destination"
	HdrMessageID     = "message-id"
	HdrReceiptID     = "receipt-id"
	HdrTransaction   = "transaction"
	HdrContentLength = "content-length"
	HdrAck           = "ack"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrSession       = "session"
	HdrLogin         = "login"
	HdrPasscode      = "passcode"
	HdrReceipt       = "receipt"
	HdrMessage       = "message"
)

// validCommands is the documented STOMP 1.0 frame set, both directions.
// It gates what WriteFrame will emit; the reader accepts any well-formed
// command so unknown inbound frames decode and can be dropped downstream.
var validCommands = map[string]bool{
	CmdConnect:     true,
	CmdSend:        true,
	CmdSubscribe:   true,
	CmdUnsubscribe: true,
	CmdAck:         true,
	CmdBegin:       true,
	CmdCommit:      true,
	CmdAbort:       true,
	CmdDisconnect:  true,
	CmdConnected:   true,
	CmdMessage:     true,
	CmdReceipt:     true,
	CmdError:       true,
}

// ValidCommand reports whether cmd is part of the STOMP 1.0 frame set
// this client will emit.
func ValidCommand(cmd string) bool {
	return validCommands[cmd]
}

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an insertion-ordered header list.
//
// The zero value is ready to use. Lookups scan linearly; frames carry a
// handful of headers so this beats a map plus a separate order slice.
type Headers []Header

// Get returns the value of the first header with the given name.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if hdr.Name == name {
			return hdr.Value, true
		}
	}
	return "", false
}

// Contains reports whether a header with the given name is present.
func (h Headers) Contains(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Set replaces the value of the first header with the given name,
// appending a new header if none is present.
func (h *Headers) Set(name, value string) {
	for i := range *h {
		if (*h)[i].Name == name {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Add appends a header without checking for duplicates.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Del removes every header with the given name.
func (h *Headers) Del(name string) {
	kept := (*h)[:0]
	for _, hdr := range *h {
		if hdr.Name != name {
			kept = append(kept, hdr)
		}
	}
	*h = kept
}

// Clone returns a copy that can be mutated independently.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	return append(Headers(nil), h...)
}

// Frame is one STOMP message unit. A Frame is built once, by a client
// operation or by the decoder, and not mutated afterwards.
type Frame struct {
	Command string
	Headers Headers
	Body    []byte
}

// New builds a frame from a command and optional headers.
func New(command string, headers ...Header) *Frame {
	return &Frame{Command: command, Headers: headers}
}

// IsHeartbeat reports whether the frame is a heartbeat: an empty frame
// (a bare terminator or newline on the wire) that carries no command.
func (f *Frame) IsHeartbeat() bool {
	return f.Command == ""
}

// Header returns the value of the named header, or "" if absent.
func (f *Frame) Header(name string) string {
	v, _ := f.Headers.Get(name)
	return v
}

// ContentLength returns the parsed content-length header.
// ok is false if the header is absent.
func (f *Frame) ContentLength() (n int, ok bool, err error) {
	v, ok := f.Headers.Get(HdrContentLength)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	return n, true, err
}
