package testutils

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pior/stompclient/frame"
)

// Broker is an in-memory fake broker backed by net.Pipe. A pump goroutine
// drains frames written by the client into Received, so client writes
// never block on the synchronous pipe. Responses are pushed with Send.
type Broker struct {
	t          *testing.T
	serverConn net.Conn
	clientConn net.Conn

	// Received holds the frames the client wrote, in order.
	Received chan *frame.Frame

	closeOnce sync.Once
}

// NewBroker starts a fake broker and returns it with the client end of
// the pipe. The broker is shut down with Close, typically via t.Cleanup.
func NewBroker(t *testing.T) (*Broker, net.Conn) {
	server, client := net.Pipe()
	b := &Broker{
		t:          t,
		serverConn: server,
		clientConn: client,
		Received:   make(chan *frame.Frame, 64),
	}
	go b.pump()
	t.Cleanup(b.Close)
	return b, client
}

func (b *Broker) pump() {
	reader := frame.NewReader(b.serverConn)
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			close(b.Received)
			return
		}
		b.Received <- f
	}
}

// Send writes one frame to the client. It blocks until the client reads
// it, so the client's receive side must be active.
func (b *Broker) Send(f *frame.Frame) error {
	return frame.WriteFrame(b.serverConn, f)
}

// SendRaw writes raw bytes to the client, for wire sequences the frame
// encoder refuses to produce.
func (b *Broker) SendRaw(data []byte) error {
	_, err := b.serverConn.Write(data)
	return err
}

// Expect pops the next frame the client wrote, failing the test if none
// arrives within two seconds or the command differs.
func (b *Broker) Expect(command string) *frame.Frame {
	b.t.Helper()
	select {
	case f, ok := <-b.Received:
		if !ok {
			b.t.Fatalf("expected %s frame, connection closed", command)
			return nil
		}
		if f.Command != command {
			b.t.Fatalf("expected %s frame, got %s", command, f.Command)
		}
		return f
	case <-time.After(2 * time.Second):
		b.t.Fatalf("expected %s frame, got none", command)
		return nil
	}
}

// ExpectNone fails the test if the client writes any frame within d.
func (b *Broker) ExpectNone(d time.Duration) {
	b.t.Helper()
	select {
	case f, ok := <-b.Received:
		if ok {
			b.t.Fatalf("expected no frame, got %s", f.Command)
		}
	case <-time.After(d):
	}
}

// Close tears down both ends of the pipe.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		b.serverConn.Close()
		b.clientConn.Close()
	})
}
