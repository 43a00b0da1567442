package stompclient

import (
	"strconv"

	"github.com/pior/stompclient/frame"
)

// AckMode is the flow-control setting of a subscription.
type AckMode string

const (
	// AckAuto delivers without acknowledgement; the broker considers a
	// message handled as soon as it is sent.
	AckAuto AckMode = "auto"

	// AckClient requires the client to acknowledge each message-id
	// explicitly via Ack.
	AckClient AckMode = "client"
)

// The builders below construct one frame per protocol operation.
//
// Caller-supplied extra headers are merged first and the operation's
// mandated headers applied on top, so extras can add custom headers (or
// a receipt request) but can never override a protocol-mandated value.

func connectFrame(login, passcode string, extra frame.Headers) *frame.Frame {
	f := &frame.Frame{Command: frame.CmdConnect, Headers: extra.Clone()}
	if login != "" {
		f.Headers.Set(frame.HdrLogin, login)
	}
	if passcode != "" {
		f.Headers.Set(frame.HdrPasscode, passcode)
	}
	return f
}

func sendFrame(destination string, body []byte, transaction string, extra frame.Headers) *frame.Frame {
	f := &frame.Frame{Command: frame.CmdSend, Headers: extra.Clone(), Body: body}
	f.Headers.Set(frame.HdrDestination, destination)
	if transaction != "" {
		f.Headers.Set(frame.HdrTransaction, transaction)
	}
	if len(body) > 0 {
		f.Headers.Set(frame.HdrContentLength, strconv.Itoa(len(body)))
	}
	return f
}

func subscribeFrame(destination, id string, ack AckMode, extra frame.Headers) *frame.Frame {
	f := &frame.Frame{Command: frame.CmdSubscribe, Headers: extra.Clone()}
	f.Headers.Set(frame.HdrDestination, destination)
	f.Headers.Set(frame.HdrID, id)
	f.Headers.Set(frame.HdrAck, string(ack))
	return f
}

func unsubscribeFrame(id string, extra frame.Headers) *frame.Frame {
	f := &frame.Frame{Command: frame.CmdUnsubscribe, Headers: extra.Clone()}
	f.Headers.Set(frame.HdrID, id)
	return f
}

func ackFrame(messageID, transaction string, extra frame.Headers) *frame.Frame {
	f := &frame.Frame{Command: frame.CmdAck, Headers: extra.Clone()}
	f.Headers.Set(frame.HdrMessageID, messageID)
	if transaction != "" {
		f.Headers.Set(frame.HdrTransaction, transaction)
	}
	return f
}

// txFrame builds BEGIN, COMMIT and ABORT: a bare command plus the opaque
// transaction identifier. The client keeps no transaction state; the
// broker owns consistency.
func txFrame(command, transaction string, extra frame.Headers) *frame.Frame {
	f := &frame.Frame{Command: command, Headers: extra.Clone()}
	f.Headers.Set(frame.HdrTransaction, transaction)
	return f
}

func disconnectFrame(extra frame.Headers) *frame.Frame {
	return &frame.Frame{Command: frame.CmdDisconnect, Headers: extra.Clone()}
}
