package stompclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pior/stompclient/frame"
)

// Connection wraps exactly one socket to one broker.
//
// A Connection may be shared between one reader (the duplex receive loop)
// and any number of writers: writes serialize on a lock and each frame is
// written with a single Write call, while the read path proceeds
// independently on the full-duplex socket. There is no cross-lock between
// the read and write paths.
type Connection struct {
	addr   string
	conn   net.Conn
	reader *frame.Reader

	// writeMu serializes writers against each other so interleaved
	// goroutines cannot corrupt a frame boundary.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewConnection wraps an established net.Conn.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		addr:   conn.RemoteAddr().String(),
		conn:   conn,
		reader: frame.NewReader(conn),
	}
}

// Dial opens a TCP connection to a broker address ("host:port").
// A nil dialer uses the default net.Dialer; connect timeouts are
// configured on the dialer or carried by ctx.
func Dial(ctx context.Context, addr string, dialer *net.Dialer) (*Connection, error) {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	conn := NewConnection(netConn)
	conn.addr = addr // keep the requested form, pools key on it
	return conn, nil
}

// SendFrame serializes f and writes it atomically.
//
// Frames that cannot be represented on the wire fail with
// *frame.EncodeError before any bytes are written; socket failures close
// the connection and fail with *ConnectionError.
func (c *Connection) SendFrame(f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return &ConnectionError{Op: "write", Err: ErrConnectionClosed}
	}

	if err := frame.WriteFrame(c.conn, f); err != nil {
		var ee *frame.EncodeError
		if errors.As(err, &ee) {
			return err // frame rejected, connection untouched
		}
		c.Close()
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// ReceiveFrame blocks until a full frame is decoded or timeout elapses.
// A timeout of zero blocks indefinitely.
//
// When the timeout expires before any byte of a frame arrives the result
// is ErrNoData, so callers can poll a stop condition and try again. A
// peer that closes the socket, or stalls mid-frame past the timeout,
// fails with *ConnectionError; malformed bytes fail with
// *frame.ParseError. Both close the connection.
func (c *Connection) ReceiveFrame(timeout time.Duration) (*frame.Frame, error) {
	if c.IsClosed() {
		return nil, &ConnectionError{Op: "read", Err: ErrConnectionClosed}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.Close()
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	f, err := c.reader.ReadFrame()
	if err == nil {
		return f, nil
	}

	var pe *frame.ParseError
	if errors.As(err, &pe) {
		c.Close()
		if isTimeout(err) {
			// The peer stalled mid-frame; the stream position is
			// unrecoverable, unlike an idle timeout.
			return nil, &ConnectionError{Op: "read", Err: err}
		}
		return nil, err
	}
	if isTimeout(err) {
		return nil, ErrNoData
	}
	c.Close()
	return nil, &ConnectionError{Op: "read", Err: err}
}

// Close closes the connection. It is idempotent and safe to call from a
// goroutine other than the one blocked in ReceiveFrame; closing the
// socket makes that read fail promptly with *ConnectionError.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Addr returns the broker address this connection is attached to.
func (c *Connection) Addr() string {
	return c.addr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
