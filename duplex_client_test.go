package stompclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/stompclient/frame"
	"github.com/pior/stompclient/internal/testutils"
)

// newTestDuplex wires a started DuplexClient to an in-memory broker.
func newTestDuplex(t *testing.T, cfg DuplexConfig) (*DuplexClient, *testutils.Broker) {
	t.Helper()

	broker, clientConn := testutils.NewBroker(t)
	cfg.Address = "broker:61613"
	cfg.SocketTimeout = 20 * time.Millisecond
	cfg.Dial = func(ctx context.Context, addr string) (*Connection, error) {
		return NewConnection(clientConn), nil
	}

	client, err := NewDuplexClient(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	return client, broker
}

type connectResult struct {
	frame *frame.Frame
	err   error
}

func TestDuplexConnect(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})
	ctx := context.Background()

	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(ctx, "guest", "secret")
		resCh <- connectResult{f, err}
	}()

	got := broker.Expect(frame.CmdConnect)
	require.Equal(t, "guest", got.Header(frame.HdrLogin))
	require.Equal(t, "secret", got.Header(frame.HdrPasscode))

	require.NoError(t, broker.Send(frame.New(frame.CmdConnected,
		frame.Header{Name: frame.HdrSession, Value: "session-1"})))

	res := <-resCh
	require.NoError(t, res.err)
	require.Equal(t, "session-1", res.frame.Header(frame.HdrSession))

	require.NoError(t, client.Stop(ctx))
	require.NoError(t, client.Err())
}

func TestDuplexConnectRequiresStart(t *testing.T) {
	client, err := NewDuplexClient(DuplexConfig{Address: "broker:61613"})
	require.NoError(t, err)

	_, err = client.Connect(context.Background(), "", "")
	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
}

func TestDuplexConcurrentConnectRejected(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})
	ctx := context.Background()

	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(ctx, "", "")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)

	_, err := client.Connect(ctx, "", "")
	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)

	require.NoError(t, broker.Send(frame.New(frame.CmdConnected)))
	res := <-resCh
	require.NoError(t, res.err)
}

func TestDuplexSend(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	err := client.Send(context.Background(), "/queue/a", []byte("hello"), "")
	require.NoError(t, err)

	got := broker.Expect(frame.CmdSend)
	require.Equal(t, "/queue/a", got.Header(frame.HdrDestination))
	require.Equal(t, []byte("hello"), got.Body)
}

func TestDuplexSendWithReceipt(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(context.Background(), "/queue/a", []byte("x"), "",
			frame.Header{Name: frame.HdrReceipt, Value: "r1"})
	}()

	got := broker.Expect(frame.CmdSend)
	require.Equal(t, "r1", got.Header(frame.HdrReceipt))

	// The send is still blocked until the receipt lands.
	select {
	case err := <-errCh:
		t.Fatalf("Send returned %v before the RECEIPT arrived", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, broker.Send(frame.New(frame.CmdReceipt,
		frame.Header{Name: frame.HdrReceiptID, Value: "r1"})))
	require.NoError(t, <-errCh)
}

func TestDuplexReceiptedSendBrokerError(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(context.Background(), "/queue/a", []byte("x"), "",
			frame.Header{Name: frame.HdrReceipt, Value: "r1"})
	}()
	broker.Expect(frame.CmdSend)

	errFrame := frame.New(frame.CmdError,
		frame.Header{Name: frame.HdrReceiptID, Value: "r1"},
		frame.Header{Name: frame.HdrMessage, Value: "no such destination"},
	)
	errFrame.Body = []byte("details")
	require.NoError(t, broker.Send(errFrame))

	err := <-errCh
	var be *BrokerError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "no such destination", be.Message)
	require.Equal(t, []byte("details"), be.Body)
}

func TestDuplexResponseTimeout(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{ResponseTimeout: 50 * time.Millisecond})

	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(context.Background(), "", "")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)

	res := <-resCh
	require.ErrorIs(t, res.err, ErrResponseTimeout)
}

func TestDuplexSubscribeInlineDispatch(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})
	ctx := context.Background()

	received := make(chan *frame.Frame, 1)
	sub, err := client.Subscribe(ctx, "/topic/x", AckAuto, func(f *frame.Frame) {
		received <- f
	})
	require.NoError(t, err)

	got := broker.Expect(frame.CmdSubscribe)
	require.Equal(t, "/topic/x", got.Header(frame.HdrDestination))
	require.Equal(t, sub.ID, got.Header(frame.HdrID))
	require.Equal(t, "auto", got.Header(frame.HdrAck))

	msg := frame.New(frame.CmdMessage,
		frame.Header{Name: frame.HdrDestination, Value: "/topic/x"},
		frame.Header{Name: frame.HdrSubscription, Value: sub.ID},
		frame.Header{Name: frame.HdrMessageID, Value: "m1"},
	)
	msg.Body = []byte("payload")
	require.NoError(t, broker.Send(msg))

	select {
	case f := <-received:
		require.Equal(t, []byte("payload"), f.Body)
		require.Equal(t, "m1", f.Header(frame.HdrMessageID))
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}

	// Auto mode: the delivery must not be acknowledged.
	broker.ExpectNone(100 * time.Millisecond)
}

func TestDuplexSubscribeByDestinationFallback(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	received := make(chan *frame.Frame, 1)
	_, err := client.Subscribe(context.Background(), "/queue/a", AckAuto, func(f *frame.Frame) {
		received <- f
	})
	require.NoError(t, err)
	broker.Expect(frame.CmdSubscribe)

	// A broker that does not echo the subscription header.
	require.NoError(t, broker.Send(frame.New(frame.CmdMessage,
		frame.Header{Name: frame.HdrDestination, Value: "/queue/a"})))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked for destination-routed frame")
	}
}

func TestDuplexSubscribeRequiresHandlerOrQueue(t *testing.T) {
	client, _ := newTestDuplex(t, DuplexConfig{})

	_, err := client.Subscribe(context.Background(), "/queue/a", AckAuto, nil)
	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
}

func TestDuplexQueueingDispatch(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{QueueSize: 4})
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, "/queue/a", AckAuto, nil)
	require.NoError(t, err)
	broker.Expect(frame.CmdSubscribe)

	for _, body := range []string{"one", "two"} {
		msg := frame.New(frame.CmdMessage,
			frame.Header{Name: frame.HdrSubscription, Value: sub.ID})
		msg.Body = []byte(body)
		require.NoError(t, broker.Send(msg))
	}

	f, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), f.Body)

	f, err = client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), f.Body)

	// Auto mode: consuming from the queue must not acknowledge.
	broker.ExpectNone(100 * time.Millisecond)
}

func TestDuplexReceiveAfterStop(t *testing.T) {
	client, _ := newTestDuplex(t, DuplexConfig{QueueSize: 1})

	require.NoError(t, client.Stop(context.Background()))

	_, err := client.Receive(context.Background())
	require.ErrorIs(t, err, ErrClientShutdown)
}

func TestDuplexReceiveRequiresQueue(t *testing.T) {
	client, _ := newTestDuplex(t, DuplexConfig{})

	_, err := client.Receive(context.Background())
	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
}

func TestDuplexUnsubscribe(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, "/queue/a", AckAuto, func(*frame.Frame) {})
	require.NoError(t, err)
	broker.Expect(frame.CmdSubscribe)

	require.NoError(t, client.Unsubscribe(ctx, sub))
	got := broker.Expect(frame.CmdUnsubscribe)
	require.Equal(t, sub.ID, got.Header(frame.HdrID))
}

func TestDuplexUnsolicitedBrokerError(t *testing.T) {
	errCh := make(chan *BrokerError, 1)
	client, broker := newTestDuplex(t, DuplexConfig{
		OnBrokerError: func(e *BrokerError) { errCh <- e },
	})
	defer client.Stop(context.Background())

	require.NoError(t, broker.Send(frame.New(frame.CmdError,
		frame.Header{Name: frame.HdrMessage, Value: "session torn down"})))

	select {
	case e := <-errCh:
		require.Equal(t, "session torn down", e.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("OnBrokerError never invoked")
	}
}

func TestDuplexHeartbeatIgnored(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	require.NoError(t, broker.Send(&frame.Frame{}))

	// The loop is still alive and routing frames.
	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(context.Background(), "", "")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)
	require.NoError(t, broker.Send(frame.New(frame.CmdConnected)))
	require.NoError(t, (<-resCh).err)
}

func TestDuplexUnknownCommandIgnored(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	// A frame with a command this client does not know.
	require.NoError(t, broker.SendRaw([]byte("GREETING\nversion:2\n\nhello\x00")))

	// The loop dropped it and is still routing frames.
	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(context.Background(), "", "")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)
	require.NoError(t, broker.Send(frame.New(frame.CmdConnected)))
	require.NoError(t, (<-resCh).err)

	require.True(t, client.Running())
	select {
	case <-client.Done():
		t.Fatalf("receive loop died on an unknown command: %v", client.Err())
	default:
	}
}

func TestDuplexStop(t *testing.T) {
	client, _ := newTestDuplex(t, DuplexConfig{})
	ctx := context.Background()

	require.True(t, client.Running())
	require.NoError(t, client.Stop(ctx))
	require.False(t, client.Running())

	select {
	case <-client.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}
	require.NoError(t, client.Err())

	// Stop is idempotent.
	require.NoError(t, client.Stop(ctx))
}

func TestDuplexStopFailsPendingWaits(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})
	ctx := context.Background()

	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(ctx, "", "")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)

	require.NoError(t, client.Stop(ctx))
	res := <-resCh
	require.ErrorIs(t, res.err, ErrClientShutdown)
}

func TestDuplexConnectionFailureStopsLoop(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{})

	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(context.Background(), "", "")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)

	broker.Close()

	res := <-resCh
	require.Error(t, res.err)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() not closed after connection failure")
	}
	require.True(t, IsConnectionError(client.Err()))
	require.False(t, client.Running())
}

func TestNewDuplexClientRejectsReconnectablePool(t *testing.T) {
	dial := func(ctx context.Context, addr string) (*Connection, error) {
		return NewConnection(testutils.NewConnectionMock()), nil
	}
	_, err := NewDuplexClient(DuplexConfig{
		Address: "broker:61613",
		Pool:    NewContextPool(dial),
	})
	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
}

func TestDuplexEndToEnd(t *testing.T) {
	client, broker := newTestDuplex(t, DuplexConfig{QueueSize: 8})
	ctx := context.Background()

	// Connect.
	resCh := make(chan connectResult, 1)
	go func() {
		f, err := client.Connect(ctx, "guest", "secret")
		resCh <- connectResult{f, err}
	}()
	broker.Expect(frame.CmdConnect)
	require.NoError(t, broker.Send(frame.New(frame.CmdConnected,
		frame.Header{Name: frame.HdrSession, Value: "s1"})))
	require.NoError(t, (<-resCh).err)

	// Subscribe with client acknowledgement.
	sub, err := client.Subscribe(ctx, "/queue/work", AckClient, nil)
	require.NoError(t, err)
	broker.Expect(frame.CmdSubscribe)

	// Publish, broker routes it back.
	require.NoError(t, client.Send(ctx, "/queue/work", []byte("job-1"), ""))
	sent := broker.Expect(frame.CmdSend)

	msg := frame.New(frame.CmdMessage,
		frame.Header{Name: frame.HdrDestination, Value: "/queue/work"},
		frame.Header{Name: frame.HdrSubscription, Value: sub.ID},
		frame.Header{Name: frame.HdrMessageID, Value: "m1"},
	)
	msg.Body = sent.Body
	require.NoError(t, broker.Send(msg))

	received, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("job-1"), received.Body)

	// Acknowledge in a transaction.
	require.NoError(t, client.Begin(ctx, "tx-1"))
	broker.Expect(frame.CmdBegin)
	require.NoError(t, client.Ack(ctx, received.Header(frame.HdrMessageID), "tx-1"))
	ack := broker.Expect(frame.CmdAck)
	require.Equal(t, "m1", ack.Header(frame.HdrMessageID))
	require.Equal(t, "tx-1", ack.Header(frame.HdrTransaction))
	require.NoError(t, client.Commit(ctx, "tx-1"))
	broker.Expect(frame.CmdCommit)

	// Clean shutdown.
	require.NoError(t, client.Disconnect(ctx))
	broker.Expect(frame.CmdDisconnect)

	select {
	case <-client.Done():
	default:
		t.Fatal("Done() not closed after Disconnect")
	}
	require.NoError(t, client.Err())
}
