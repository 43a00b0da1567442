package stompclient

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pior/stompclient/frame"
)

// PublishConfig configures a PublishClient.
type PublishConfig struct {
	// Servers lists the broker addresses. Required.
	Servers Servers

	// SelectServer picks the broker for a destination.
	// If nil, DefaultSelectServer is used.
	SelectServer SelectServerFunc

	// Pool overrides the connection pool. If nil, a ContextPool is used:
	// one connection per (address, execution-context-id), see
	// WithContextID.
	Pool ConnectionPool

	// Dialer is the net.Dialer used to open connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Dial overrides connection opening entirely, for custom transports
	// and tests. Takes precedence over Dialer.
	Dial DialFunc

	// ConnectOnOpen sends a CONNECT frame (with Login/Passcode when set)
	// on every newly opened connection, including replacements dialed by
	// the reconnect path. Without it the caller is responsible for
	// calling Connect once per execution context.
	ConnectOnOpen bool
	Login         string
	Passcode      string

	// NewCircuitBreaker creates a circuit breaker per broker address.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(addr string) *Breaker

	// Logger receives reconnect diagnostics. If nil, the standard logrus
	// logger is used.
	Logger logrus.FieldLogger
}

// PublishClient is a synchronous, publish-only STOMP client.
//
// It never reads from the socket: operations return as soon as the frame
// is written, no session id is observed and receipts are unsupported by
// design (there is no read path to deliver them). In exchange the client
// recovers from a transient disconnect by replacing the connection and
// retrying the failed frame exactly once.
type PublishClient struct {
	servers      Servers
	selectServer SelectServerFunc
	pool         ConnectionPool
	log          logrus.FieldLogger

	newBreaker func(addr string) *Breaker
	mu         sync.Mutex
	breakers   map[string]*Breaker

	stats *clientStatsCollector
}

// NewPublishClient creates a PublishClient.
func NewPublishClient(cfg PublishConfig) (*PublishClient, error) {
	if cfg.Servers == nil || len(cfg.Servers.List()) == 0 {
		return nil, ErrNoServers
	}

	selectServer := cfg.SelectServer
	if selectServer == nil {
		selectServer = DefaultSelectServer
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("component", "stompclient.publish")
	}

	dial := cfg.Dial
	if dial == nil {
		dial = NetDialFunc(cfg.Dialer)
	}
	if cfg.ConnectOnOpen {
		dial = connectOnOpen(dial, cfg.Login, cfg.Passcode)
	}

	pool := cfg.Pool
	if pool == nil {
		pool = NewContextPool(dial)
	}

	return &PublishClient{
		servers:      cfg.Servers,
		selectServer: selectServer,
		pool:         pool,
		log:          log,
		newBreaker:   cfg.NewCircuitBreaker,
		breakers:     make(map[string]*Breaker),
		stats:        newClientStatsCollector(),
	}, nil
}

// connectOnOpen wraps dial so every new connection starts with a CONNECT
// frame. No response is awaited; the publish client has no read path.
func connectOnOpen(dial DialFunc, login, passcode string) DialFunc {
	return func(ctx context.Context, addr string) (*Connection, error) {
		conn, err := dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SendFrame(connectFrame(login, passcode, nil)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// Connect sends a CONNECT frame to every configured broker. The client
// returns as soon as the frames are written; no CONNECTED response is
// awaited. A receipt header in extra fails with *CapabilityError.
func (c *PublishClient) Connect(ctx context.Context, login, passcode string, extra ...frame.Header) error {
	return c.broadcast(ctx, connectFrame(login, passcode, extra))
}

// Send publishes body to a destination. transaction may be "" for an
// untransacted send; extra headers are merged into the frame but cannot
// override the destination, transaction or content-length headers.
func (c *PublishClient) Send(ctx context.Context, destination string, body []byte, transaction string, extra ...frame.Header) error {
	addr, err := c.selectServer(destination, c.servers.List())
	if err != nil {
		return err
	}
	return c.do(ctx, addr, sendFrame(destination, body, transaction, extra))
}

// Begin opens a transaction on every configured broker. The identifier
// is an opaque pass-through; the client tracks no transaction state.
func (c *PublishClient) Begin(ctx context.Context, transaction string, extra ...frame.Header) error {
	return c.broadcast(ctx, txFrame(frame.CmdBegin, transaction, extra))
}

// Commit commits a transaction on every configured broker.
func (c *PublishClient) Commit(ctx context.Context, transaction string, extra ...frame.Header) error {
	return c.broadcast(ctx, txFrame(frame.CmdCommit, transaction, extra))
}

// Abort rolls a transaction back on every configured broker.
func (c *PublishClient) Abort(ctx context.Context, transaction string, extra ...frame.Header) error {
	return c.broadcast(ctx, txFrame(frame.CmdAbort, transaction, extra))
}

// Ack acknowledges receipt of a message by id.
func (c *PublishClient) Ack(ctx context.Context, messageID, transaction string, extra ...frame.Header) error {
	return c.broadcast(ctx, ackFrame(messageID, transaction, extra))
}

// Disconnect sends DISCONNECT to every broker the current execution
// context is connected to and closes those connections. Brokers the
// context never talked to are left alone; no connection is opened just
// to close it. A receipt header in extra fails with *CapabilityError.
func (c *PublishClient) Disconnect(ctx context.Context, extra ...frame.Header) error {
	f := disconnectFrame(extra)
	if f.Headers.Contains(frame.HdrReceipt) {
		return &CapabilityError{Message: "publish-only client cannot observe receipts; use DuplexClient"}
	}

	var firstErr error
	for _, addr := range c.servers.List() {
		pc, ok := c.pool.Peek(ctx, addr)
		if !ok {
			continue
		}
		if err := pc.Conn().SendFrame(f); err != nil && firstErr == nil {
			firstErr = err
		}
		pc.Destroy()
	}
	return firstErr
}

// Close releases every pooled connection. The client is unusable after.
func (c *PublishClient) Close() {
	c.pool.ReleaseAll()
}

// Stats returns a snapshot of the client's operation counters.
func (c *PublishClient) Stats() ClientStats {
	return c.stats.snapshot()
}

// broadcast sends one frame to every configured broker, used for the
// operations that are not addressed by destination (CONNECT and the
// transaction family). First error wins; remaining brokers are still
// attempted.
func (c *PublishClient) broadcast(ctx context.Context, f *frame.Frame) error {
	var firstErr error
	for _, addr := range c.servers.List() {
		if err := c.do(ctx, addr, f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// do writes one frame to one broker, wrapped by the address's circuit
// breaker when configured.
func (c *PublishClient) do(ctx context.Context, addr string, f *frame.Frame) error {
	if f.Headers.Contains(frame.HdrReceipt) {
		return &CapabilityError{Message: "publish-only client cannot observe receipts; use DuplexClient"}
	}

	var err error
	if br := c.breakerFor(addr); br != nil {
		_, err = br.Execute(func() (struct{}, error) {
			return struct{}{}, c.doDirect(ctx, addr, f)
		})
	} else {
		err = c.doDirect(ctx, addr, f)
	}
	if err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordSend()
	return nil
}

// doDirect writes the frame, replacing the connection and retrying
// exactly once after a socket failure when the pool allows it.
func (c *PublishClient) doDirect(ctx context.Context, addr string, f *frame.Frame) error {
	pc, err := c.pool.Acquire(ctx, addr)
	if err != nil {
		return err
	}

	err = pc.Conn().SendFrame(f)
	if err == nil {
		pc.Release()
		return nil
	}
	if !IsConnectionError(err) {
		// Frame rejected before hitting the wire; the connection is fine.
		pc.Release()
		return err
	}

	pc.Destroy()
	if !c.pool.Reconnectable() {
		return err
	}

	c.log.WithError(err).WithField("addr", addr).Debug("send failed, reconnecting")
	c.stats.recordReconnect()
	pc, acquireErr := c.pool.Acquire(ctx, addr)
	if acquireErr != nil {
		return acquireErr
	}
	if err := pc.Conn().SendFrame(f); err != nil {
		pc.Destroy()
		return err
	}
	pc.Release()
	return nil
}

func (c *PublishClient) breakerFor(addr string) *Breaker {
	if c.newBreaker == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[addr]
	if !ok {
		br = c.newBreaker(addr)
		c.breakers[addr] = br
	}
	return br
}
