package stompclient

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pior/stompclient/frame"
)

// Defaults for DuplexConfig.
const (
	// DefaultSocketTimeout is the receive loop's poll interval. It bounds
	// the worst-case shutdown latency, since the timeout check is the
	// loop's only cancellation point.
	DefaultSocketTimeout = 500 * time.Millisecond

	// DefaultResponseTimeout bounds waits for CONNECTED and RECEIPT.
	DefaultResponseTimeout = 10 * time.Second
)

// DuplexConfig configures a DuplexClient.
type DuplexConfig struct {
	// Address is the broker address ("host:port"). Required.
	Address string

	// SocketTimeout is the read timeout of the receive loop. Zero means
	// DefaultSocketTimeout; it must not be unbounded, the loop polls its
	// stop flag on this interval.
	SocketTimeout time.Duration

	// ResponseTimeout bounds waits for CONNECTED and RECEIPT frames.
	// Zero means DefaultResponseTimeout; negative blocks indefinitely.
	ResponseTimeout time.Duration

	// Pool overrides the connection pool. It must not be Reconnectable:
	// the receive loop shares the socket with senders, so a silently
	// replaced connection would be unknown to it. If nil, a SharedPool
	// is used.
	Pool ConnectionPool

	// Dialer is the net.Dialer used to open the connection.
	Dialer *net.Dialer

	// Dial overrides connection opening entirely, for custom transports
	// and tests. Takes precedence over Dialer.
	Dial DialFunc

	// QueueSize enables queueing dispatch when positive: MESSAGE frames
	// are pushed to a buffered hand-off channel drained via Receive or
	// Messages instead of invoking handlers inline. A full channel
	// blocks the receive loop (backpressure).
	QueueSize int

	// OnBrokerError receives ERROR frames that arrive while no caller is
	// waiting on a response. If nil, they are logged.
	OnBrokerError func(*BrokerError)

	// Logger receives dropped-frame warnings and loop diagnostics.
	// If nil, the standard logrus logger is used.
	Logger logrus.FieldLogger
}

// Receive loop states.
const (
	stateNotStarted int32 = iota
	stateRunning
	stateStopping
	stateStopped
)

// DuplexClient is a publish-subscribe STOMP client.
//
// One background goroutine (the receive loop, see Start) owns the read
// side of a single connection shared with the caller's goroutines, and
// multiplexes synchronous response waits against asynchronously delivered
// MESSAGE frames. The loop never reconnects: when the connection fails,
// pending waits fail, Done is closed and Err reports the cause.
type DuplexClient struct {
	addr            string
	socketTimeout   time.Duration
	responseTimeout time.Duration
	pool            ConnectionPool
	log             logrus.FieldLogger
	onBrokerError   func(*BrokerError)

	state    atomic.Int32
	stopFlag atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	conn    *Connection
	loopErr error

	waiters  *waiterTable
	subs     *subscriptionRegistry
	messages chan *frame.Frame
	stats    *clientStatsCollector
}

// NewDuplexClient creates a DuplexClient. The connection is not opened
// until Start.
func NewDuplexClient(cfg DuplexConfig) (*DuplexClient, error) {
	if cfg.Address == "" {
		return nil, ErrNoServers
	}
	if cfg.Pool != nil && cfg.Pool.Reconnectable() {
		return nil, &CapabilityError{Message: "duplex client requires a non-reconnectable pool; the receive loop shares the socket"}
	}

	socketTimeout := cfg.SocketTimeout
	if socketTimeout <= 0 {
		socketTimeout = DefaultSocketTimeout
	}
	responseTimeout := cfg.ResponseTimeout
	if responseTimeout == 0 {
		responseTimeout = DefaultResponseTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("component", "stompclient.duplex")
	}

	dial := cfg.Dial
	if dial == nil {
		dial = NetDialFunc(cfg.Dialer)
	}
	pool := cfg.Pool
	if pool == nil {
		pool = NewSharedPool(dial)
	}

	c := &DuplexClient{
		addr:            cfg.Address,
		socketTimeout:   socketTimeout,
		responseTimeout: responseTimeout,
		pool:            pool,
		log:             log,
		onBrokerError:   cfg.OnBrokerError,
		stopCh:          make(chan struct{}),
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
		waiters:         newWaiterTable(),
		subs:            newSubscriptionRegistry(),
		stats:           newClientStatsCollector(),
	}
	if cfg.QueueSize > 0 {
		c.messages = make(chan *frame.Frame, cfg.QueueSize)
	}
	return c, nil
}

// Start opens the connection and launches the receive loop, returning
// once the loop is polling the socket. It must be called before Connect
// or any response-awaiting operation; a client can be started once.
func (c *DuplexClient) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateNotStarted, stateRunning) {
		return &CapabilityError{Message: "receive loop already started"}
	}

	pooled, err := c.pool.Acquire(ctx, c.addr)
	if err != nil {
		c.state.Store(stateStopped)
		c.finish(err)
		return err
	}

	c.mu.Lock()
	c.conn = pooled.Conn()
	c.mu.Unlock()

	go c.run(pooled.Conn())
	<-c.ready
	return nil
}

// Running reports whether the receive loop is live.
func (c *DuplexClient) Running() bool {
	return c.state.Load() == stateRunning
}

// Done is closed when the receive loop has stopped, whether by Stop,
// Disconnect or a connection failure. Use Err for the cause.
func (c *DuplexClient) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the receive loop, or nil after a
// requested stop. Valid once Done is closed.
func (c *DuplexClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopErr
}

// Stop requests the receive loop to exit and waits for it. Shutdown
// latency is bounded by one SocketTimeout interval, the loop's sole
// cancellation point. Pending response waits fail with ErrClientShutdown.
func (c *DuplexClient) Stop(ctx context.Context) error {
	c.state.CompareAndSwap(stateRunning, stateStopping)
	c.stopFlag.Store(true)
	c.stopOnce.Do(func() { close(c.stopCh) })

	// Never started: there is no loop to wait for.
	if c.state.CompareAndSwap(stateNotStarted, stateStopped) {
		c.finish(nil)
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect sends a CONNECT frame and blocks until the broker's CONNECTED
// frame arrives (carrying the session header, when the broker sets one).
// The receive loop must be running. At most one CONNECT may be in flight;
// a concurrent attempt fails with *CapabilityError.
func (c *DuplexClient) Connect(ctx context.Context, login, passcode string, extra ...frame.Header) (*frame.Frame, error) {
	return c.sendAndWait(ctx, connectFrame(login, passcode, extra), keyConnected)
}

// Send publishes body to a destination. transaction may be "" for an
// untransacted send. A receipt header in extra makes the call block until
// the broker's RECEIPT frame arrives.
func (c *DuplexClient) Send(ctx context.Context, destination string, body []byte, transaction string, extra ...frame.Header) error {
	return c.execute(ctx, sendFrame(destination, body, transaction, extra))
}

// Subscribe registers for MESSAGE frames from a destination. The handler
// is invoked inline by the receive loop unless queueing dispatch is
// enabled, in which case frames are popped via Receive and handler may be
// nil. The subscription id is generated and echoed by the broker.
func (c *DuplexClient) Subscribe(ctx context.Context, destination string, ack AckMode, handler Handler, extra ...frame.Header) (*Subscription, error) {
	if ack == "" {
		ack = AckAuto
	}
	if handler == nil && c.messages == nil {
		return nil, &CapabilityError{Message: "inline dispatch requires a handler; set QueueSize for queueing dispatch"}
	}

	sub := &Subscription{
		ID:          uuid.NewString(),
		Destination: destination,
		Ack:         ack,
		handler:     handler,
	}

	// Register before sending so a fast first delivery cannot race the
	// registry.
	c.subs.add(sub)
	if err := c.execute(ctx, subscribeFrame(destination, sub.ID, ack, extra)); err != nil {
		c.subs.remove(sub.ID)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes a subscription. Frames already received for it may
// still be dispatched; frames arriving after the broker processes the
// UNSUBSCRIBE are dropped with a warning.
func (c *DuplexClient) Unsubscribe(ctx context.Context, sub *Subscription, extra ...frame.Header) error {
	err := c.execute(ctx, unsubscribeFrame(sub.ID, extra))
	if err == nil || IsConnectionError(err) {
		c.subs.remove(sub.ID)
	}
	return err
}

// Ack acknowledges a message by id, for subscriptions in AckClient mode.
func (c *DuplexClient) Ack(ctx context.Context, messageID, transaction string, extra ...frame.Header) error {
	return c.execute(ctx, ackFrame(messageID, transaction, extra))
}

// Begin opens a transaction; the identifier is an opaque pass-through.
func (c *DuplexClient) Begin(ctx context.Context, transaction string, extra ...frame.Header) error {
	return c.execute(ctx, txFrame(frame.CmdBegin, transaction, extra))
}

// Commit commits a transaction.
func (c *DuplexClient) Commit(ctx context.Context, transaction string, extra ...frame.Header) error {
	return c.execute(ctx, txFrame(frame.CmdCommit, transaction, extra))
}

// Abort rolls a transaction back.
func (c *DuplexClient) Abort(ctx context.Context, transaction string, extra ...frame.Header) error {
	return c.execute(ctx, txFrame(frame.CmdAbort, transaction, extra))
}

// Receive pops the next MESSAGE frame under queueing dispatch. It returns
// ErrClientShutdown once the loop has stopped and the queue is drained.
func (c *DuplexClient) Receive(ctx context.Context) (*frame.Frame, error) {
	if c.messages == nil {
		return nil, &CapabilityError{Message: "queueing dispatch not enabled; set QueueSize"}
	}
	select {
	case f, ok := <-c.messages:
		if !ok {
			return nil, ErrClientShutdown
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Messages exposes the hand-off channel of queueing dispatch. It is
// closed when the receive loop stops; nil unless QueueSize is set.
func (c *DuplexClient) Messages() <-chan *frame.Frame {
	return c.messages
}

// Disconnect stops the receive loop, sends DISCONNECT best-effort and
// releases the connection. Stopping first keeps the loop's failure path
// and this close path from racing into a double-close.
func (c *DuplexClient) Disconnect(ctx context.Context, extra ...frame.Header) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}

	if err := c.send(disconnectFrame(extra)); err != nil && !IsConnectionError(err) {
		return err
	}
	c.pool.ReleaseAll()
	return nil
}

// execute sends f, waiting for the broker's RECEIPT when the caller
// requested one via a receipt header.
func (c *DuplexClient) execute(ctx context.Context, f *frame.Frame) error {
	if rid, ok := f.Headers.Get(frame.HdrReceipt); ok {
		_, err := c.sendAndWait(ctx, f, receiptKey(rid))
		return err
	}
	return c.send(f)
}

// send writes one frame on the shared connection. No retry on failure:
// the receive loop still references this socket.
func (c *DuplexClient) send(f *frame.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return &CapabilityError{Message: "client not started; call Start first"}
	}
	if err := conn.SendFrame(f); err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordSend()
	return nil
}

// Stats returns a snapshot of the client's operation counters.
func (c *DuplexClient) Stats() ClientStats {
	return c.stats.snapshot()
}

// sendAndWait registers the response waiter, sends f, and blocks until
// the receive loop resolves the wait, the response timeout elapses, or
// ctx is done.
func (c *DuplexClient) sendAndWait(ctx context.Context, f *frame.Frame, key string) (*frame.Frame, error) {
	if c.state.Load() != stateRunning {
		return nil, &CapabilityError{Message: "response wait requires a running receive loop; call Start first"}
	}

	ch, err := c.waiters.register(key)
	if err != nil {
		return nil, err
	}
	if err := c.send(f); err != nil {
		c.waiters.cancel(key)
		return nil, err
	}

	var timeout <-chan time.Time
	if c.responseTimeout > 0 {
		timer := time.NewTimer(c.responseTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-timeout:
		c.waiters.cancel(key)
		return nil, ErrResponseTimeout
	case <-ctx.Done():
		c.waiters.cancel(key)
		return nil, ctx.Err()
	}
}

// finish records the loop outcome and releases everything a caller could
// be blocked on. Runs exactly once.
func (c *DuplexClient) finish(loopErr error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.loopErr = loopErr
		c.mu.Unlock()

		failErr := loopErr
		if failErr == nil {
			failErr = ErrClientShutdown
		}
		c.waiters.failAll(failErr)
		if c.messages != nil {
			close(c.messages)
		}
		close(c.done)
	})
}
