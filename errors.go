package stompclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned by Connection.ReceiveFrame when the read
	// timeout elapses before any byte of a frame arrives. It is a poll
	// signal, not a failure: the connection is still usable.
	ErrNoData = errors.New("stompclient: no data within read timeout")

	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("stompclient: connection closed")

	// ErrClientShutdown resolves pending response waits when the receive
	// loop stops, so no caller is left blocked.
	ErrClientShutdown = errors.New("stompclient: client is shutting down")

	// ErrPoolClosed is returned by Acquire after ReleaseAll.
	ErrPoolClosed = errors.New("stompclient: pool closed")

	// ErrResponseTimeout is returned when the broker does not answer a
	// response-capable operation within the configured response timeout.
	ErrResponseTimeout = errors.New("stompclient: timed out waiting for broker response")
)

// ConnectionError wraps socket-level failures: refused, timed out or
// closed connections. The PublishClient reacts to it by replacing the
// connection and retrying once; the DuplexClient never retries, because a
// replacement socket would be unknown to the receive loop.
type ConnectionError struct {
	Op  string // operation that failed: "dial", "read", "write"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stompclient: connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a socket-level failure that
// broke the connection.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// CapabilityError reports an operation the current client variant cannot
// fulfil, such as requesting a receipt from a PublishClient or awaiting a
// response without a running receive loop. It fails fast and never
// degrades silently.
type CapabilityError struct {
	Message string
}

func (e *CapabilityError) Error() string {
	return "stompclient: " + e.Message
}

// BrokerError carries an ERROR frame from the server: the message header
// and the optional diagnostic body.
type BrokerError struct {
	Message string
	Body    []byte
}

func (e *BrokerError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("stompclient: broker error: %s: %s", e.Message, e.Body)
	}
	return "stompclient: broker error: " + e.Message
}
