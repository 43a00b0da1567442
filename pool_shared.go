package stompclient

import (
	"context"
	"sync"
)

// SharedPool keeps one connection per address regardless of caller.
//
// It is the default pool of the DuplexClient, whose receive loop and
// sending goroutines must operate on the identical socket. The pool is
// not Reconnectable: replacing a failed connection behind the loop's back
// would violate the shared-connection invariant, so failures surface to
// the caller instead.
type SharedPool struct {
	dial DialFunc

	mu     sync.Mutex
	conns  map[string]*Connection
	closed bool
}

// NewSharedPool creates a SharedPool opening connections with dial.
func NewSharedPool(dial DialFunc) *SharedPool {
	return &SharedPool{
		dial:  dial,
		conns: make(map[string]*Connection),
	}
}

// Acquire returns the connection for addr, opening one on first use.
// Every caller passing the same address gets the same instance.
func (p *SharedPool) Acquire(ctx context.Context, addr string) (PooledConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	conn, ok := p.conns[addr]
	if ok && conn.IsClosed() {
		delete(p.conns, addr)
		ok = false
	}
	if !ok {
		var err error
		conn, err = p.dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		p.conns[addr] = conn
	}
	return &sharedPooledConn{pool: p, addr: addr, conn: conn}, nil
}

// Peek returns the connection for addr if one is pooled and still open,
// without dialing.
func (p *SharedPool) Peek(ctx context.Context, addr string) (PooledConn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false
	}
	conn, ok := p.conns[addr]
	if !ok || conn.IsClosed() {
		return nil, false
	}
	return &sharedPooledConn{pool: p, addr: addr, conn: conn}, true
}

// ReleaseAll closes every pooled connection and marks the pool closed.
func (p *SharedPool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for addr, conn := range p.conns {
		_ = conn.Close()
		delete(p.conns, addr)
	}
}

// Reconnectable reports false: the connection is shared with a receive
// loop and must never be replaced behind it.
func (p *SharedPool) Reconnectable() bool {
	return false
}

type sharedPooledConn struct {
	pool *SharedPool
	addr string
	conn *Connection
}

func (c *sharedPooledConn) Conn() *Connection { return c.conn }

// Release is a no-op: the connection stays shared under its address.
func (c *sharedPooledConn) Release() {}

func (c *sharedPooledConn) Destroy() {
	c.pool.mu.Lock()
	if current, ok := c.pool.conns[c.addr]; ok && current == c.conn {
		delete(c.pool.conns, c.addr)
	}
	c.pool.mu.Unlock()
	_ = c.conn.Close()
}
