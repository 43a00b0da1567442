package stompclient

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ContextPool keeps one connection per (address, execution-context-id).
//
// It is the default pool of the PublishClient: because a connection is
// never shared with a concurrent receiver, a broken one can be replaced
// without races, so the pool reports Reconnectable.
//
// The context id comes from WithContextID. Callers that never set one
// share a single connection per address.
type ContextPool struct {
	dial   DialFunc
	conns  *xsync.MapOf[string, *Connection]
	closed atomic.Bool
}

// NewContextPool creates a ContextPool opening connections with dial.
func NewContextPool(dial DialFunc) *ContextPool {
	return &ContextPool{
		dial:  dial,
		conns: xsync.NewMapOf[string, *Connection](),
	}
}

func (p *ContextPool) key(ctx context.Context, addr string) string {
	return addr + "|" + ContextID(ctx)
}

// Acquire returns the connection for (addr, context-id), opening one on
// first use. A connection closed by a previous failure is evicted and a
// caller holding Reconnectable may dial a replacement via Destroy+Acquire.
func (p *ContextPool) Acquire(ctx context.Context, addr string) (PooledConn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	key := p.key(ctx, addr)
	if conn, ok := p.conns.Load(key); ok {
		if !conn.IsClosed() {
			return &contextPooledConn{pool: p, key: key, conn: conn}, nil
		}
		p.conns.Delete(key)
	}

	conn, err := p.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if existing, loaded := p.conns.LoadOrStore(key, conn); loaded {
		// Two goroutines raced on the same context id; keep the winner.
		_ = conn.Close()
		conn = existing
	}
	return &contextPooledConn{pool: p, key: key, conn: conn}, nil
}

// Peek returns the connection for (addr, context-id) if one is pooled
// and still open, without dialing.
func (p *ContextPool) Peek(ctx context.Context, addr string) (PooledConn, bool) {
	if p.closed.Load() {
		return nil, false
	}
	key := p.key(ctx, addr)
	conn, ok := p.conns.Load(key)
	if !ok || conn.IsClosed() {
		return nil, false
	}
	return &contextPooledConn{pool: p, key: key, conn: conn}, true
}

// ReleaseAll closes every pooled connection and marks the pool closed.
func (p *ContextPool) ReleaseAll() {
	p.closed.Store(true)
	p.conns.Range(func(key string, conn *Connection) bool {
		_ = conn.Close()
		p.conns.Delete(key)
		return true
	})
}

// Reconnectable reports true: context-exclusive connections are safe to
// replace on failure.
func (p *ContextPool) Reconnectable() bool {
	return true
}

type contextPooledConn struct {
	pool *ContextPool
	key  string
	conn *Connection
}

func (c *contextPooledConn) Conn() *Connection { return c.conn }

// Release is a no-op: the connection stays checked in under its key.
func (c *contextPooledConn) Release() {}

func (c *contextPooledConn) Destroy() {
	if current, ok := c.pool.conns.Load(c.key); ok && current == c.conn {
		c.pool.conns.Delete(c.key)
	}
	_ = c.conn.Close()
}
