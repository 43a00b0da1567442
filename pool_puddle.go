package stompclient

import (
	"context"
	"sync"

	"github.com/jackc/puddle/v2"
)

// PuddlePool keeps up to maxSize connections per address, built on
// jackc/puddle. It suits publish-heavy workloads with many goroutines
// sending concurrently: each send checks a connection out, writes, and
// returns it, so writers never contend on a single socket.
//
// The pool is Reconnectable: a checked-out connection is exclusive to its
// holder, so destroying a failed one and acquiring a replacement is safe.
type PuddlePool struct {
	dial    DialFunc
	maxSize int32

	mu     sync.RWMutex
	pools  map[string]*puddle.Pool[*Connection]
	closed bool
}

// NewPuddlePool creates a PuddlePool holding up to maxSize connections
// per broker address.
func NewPuddlePool(dial DialFunc, maxSize int32) *PuddlePool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &PuddlePool{
		dial:    dial,
		maxSize: maxSize,
		pools:   make(map[string]*puddle.Pool[*Connection]),
	}
}

// Acquire checks a connection for addr out of the pool, dialing a new one
// while under the size limit and blocking otherwise until a connection is
// released or ctx is done.
func (p *PuddlePool) Acquire(ctx context.Context, addr string) (PooledConn, error) {
	pool, err := p.poolFor(addr)
	if err != nil {
		return nil, err
	}
	res, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &puddlePooledConn{res: res}, nil
}

// poolFor returns the per-address pool, creating it lazily.
func (p *PuddlePool) poolFor(addr string) (*puddle.Pool[*Connection], error) {
	p.mu.RLock()
	pool, ok := p.pools[addr]
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}
	if ok {
		return pool, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if pool, ok := p.pools[addr]; ok {
		return pool, nil
	}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			return p.dial(ctx, addr)
		},
		Destructor: func(conn *Connection) {
			_ = conn.Close()
		},
		MaxSize: p.maxSize,
	})
	if err != nil {
		return nil, err
	}
	p.pools[addr] = pool
	return pool, nil
}

// Peek checks an idle connection for addr out of the pool, without
// dialing. Checked-out connections are invisible to Peek by design;
// they belong to their holder.
func (p *PuddlePool) Peek(ctx context.Context, addr string) (PooledConn, bool) {
	p.mu.RLock()
	pool, ok := p.pools[addr]
	closed := p.closed
	p.mu.RUnlock()
	if closed || !ok {
		return nil, false
	}

	idle := pool.AcquireAllIdle()
	if len(idle) == 0 {
		return nil, false
	}
	for _, res := range idle[1:] {
		res.Release()
	}
	return &puddlePooledConn{res: idle[0]}, true
}

// ReleaseAll closes every per-address pool and marks the pool closed.
func (p *PuddlePool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for addr, pool := range p.pools {
		pool.Close()
		delete(p.pools, addr)
	}
}

// Reconnectable reports true: checked-out connections are exclusive to
// their holder.
func (p *PuddlePool) Reconnectable() bool {
	return true
}

type puddlePooledConn struct {
	res *puddle.Resource[*Connection]
}

func (c *puddlePooledConn) Conn() *Connection { return c.res.Value() }
func (c *puddlePooledConn) Release()          { c.res.Release() }
func (c *puddlePooledConn) Destroy()          { c.res.Destroy() }
