package stompclient

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/pior/stompclient/frame"
)

// run is the receive loop. It owns the read side of the connection for
// the life of the client: it polls on socketTimeout intervals, checking
// the stop flag between reads, and routes every frame through dispatch.
// It exits on stop or on the first connection failure, never reconnects,
// and settles all pending state through finish.
func (c *DuplexClient) run(conn *Connection) {
	close(c.ready)

	var loopErr error
	for {
		if c.stopFlag.Load() {
			break
		}

		f, err := conn.ReceiveFrame(c.socketTimeout)
		if err != nil {
			if errors.Is(err, ErrNoData) {
				continue
			}
			if c.stopFlag.Load() {
				// Shutdown raced the failure; the stop wins.
				break
			}
			loopErr = err
			c.stats.recordError()
			c.log.WithError(err).Warn("receive loop terminated")
			break
		}
		c.stats.recordReceive()
		c.dispatch(f)
	}

	c.state.Store(stateStopped)
	c.finish(loopErr)
}

// dispatch routes one inbound frame: responses to their waiters, MESSAGE
// frames to their subscription, heartbeats to the floor.
func (c *DuplexClient) dispatch(f *frame.Frame) {
	switch {
	case f.IsHeartbeat():

	case f.Command == frame.CmdConnected:
		if !c.waiters.resolve(keyConnected, f) {
			c.log.Warn("dropping CONNECTED frame with no pending connect")
		}

	case f.Command == frame.CmdReceipt:
		rid, _ := f.Headers.Get(frame.HdrReceiptID)
		if !c.waiters.resolve(receiptKey(rid), f) {
			c.log.WithField("receipt-id", rid).Warn("dropping unsolicited RECEIPT frame")
		}

	case f.Command == frame.CmdError:
		c.dispatchError(f)

	case f.Command == frame.CmdMessage:
		c.dispatchMessage(f)

	default:
		c.log.WithField("command", f.Command).Warn("dropping frame with unexpected command")
	}
}

// dispatchError delivers an ERROR frame to the caller it belongs to. The
// frame carries a receipt-id when it rejects a receipted operation;
// otherwise attribution falls back to the pending CONNECT, then to a sole
// pending waiter. Unattributable errors go to OnBrokerError.
func (c *DuplexClient) dispatchError(f *frame.Frame) {
	msg, _ := f.Headers.Get(frame.HdrMessage)
	brokerErr := &BrokerError{Message: msg, Body: f.Body}

	if rid, ok := f.Headers.Get(frame.HdrReceiptID); ok {
		if c.waiters.fail(receiptKey(rid), brokerErr) {
			return
		}
	}
	if c.waiters.fail(keyConnected, brokerErr) {
		return
	}
	if c.waiters.failSingle(brokerErr) {
		return
	}

	if c.onBrokerError != nil {
		c.onBrokerError(brokerErr)
		return
	}
	c.log.WithFields(logrus.Fields{"message": msg, "body": string(f.Body)}).Warn("broker ERROR frame with no pending operation")
}

// dispatchMessage hands a MESSAGE frame to its subscription, either by
// pushing it on the hand-off channel (queueing dispatch) or by invoking
// the handler inline on this goroutine. Frames for unknown subscriptions
// are dropped with a warning; unsubscribe makes this an expected race.
func (c *DuplexClient) dispatchMessage(f *frame.Frame) {
	subID, _ := f.Headers.Get(frame.HdrSubscription)
	destination, _ := f.Headers.Get(frame.HdrDestination)

	sub := c.subs.lookup(subID, destination)
	if sub == nil {
		c.log.WithFields(logrus.Fields{
			"subscription": subID,
			"destination":  destination,
		}).Warn("dropping MESSAGE frame with no matching subscription")
		return
	}

	c.stats.recordDispatch()
	if c.messages != nil {
		// Backpressure: a full queue blocks the loop until a consumer
		// pops or shutdown begins.
		select {
		case c.messages <- f:
		case <-c.stopCh:
		}
		return
	}
	sub.handler(f)
}
