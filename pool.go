package stompclient

import (
	"context"
	"net"
)

// DialFunc opens a Connection to a broker address. Pools use it to open
// connections lazily; tests and custom transports substitute their own.
type DialFunc func(ctx context.Context, addr string) (*Connection, error)

// NetDialFunc returns a DialFunc backed by the given net.Dialer.
func NetDialFunc(dialer *net.Dialer) DialFunc {
	return func(ctx context.Context, addr string) (*Connection, error) {
		return Dial(ctx, addr, dialer)
	}
}

// PooledConn is a Connection checked out of a ConnectionPool.
type PooledConn interface {
	// Conn returns the underlying connection.
	Conn() *Connection

	// Release hands the connection back to the pool for reuse.
	Release()

	// Destroy removes the connection from the pool and closes it.
	Destroy()
}

// ConnectionPool owns connection lifecycle and reuse policy. Clients
// never close a pooled connection directly except through Destroy or an
// explicit disconnect.
type ConnectionPool interface {
	// Acquire returns a connection for addr, opening one if the pool
	// holds none for its key.
	Acquire(ctx context.Context, addr string) (PooledConn, error)

	// Peek returns the connection for addr only if the pool already
	// holds an open one for the caller's key. It never dials; teardown
	// paths use it to avoid opening a connection just to close it.
	Peek(ctx context.Context, addr string) (PooledConn, bool)

	// ReleaseAll closes every connection and shuts the pool down.
	ReleaseAll()

	// Reconnectable reports whether callers may destroy a failed
	// connection and acquire a fresh replacement. Pools whose
	// connections are shared with a concurrent receive loop must report
	// false: a silent reconnect would hand callers a socket the loop
	// knows nothing about.
	Reconnectable() bool
}
