package stompclient

import (
	"sync"

	"github.com/pior/stompclient/frame"
)

// Correlation keys for pending responses. CONNECT has at most one
// outstanding waiter per connection lifecycle; receipts are keyed by the
// caller-chosen receipt-id.
const keyConnected = "connected"

func receiptKey(id string) string {
	return "receipt:" + id
}

type response struct {
	frame *frame.Frame
	err   error
}

// waiterTable correlates expected broker responses with blocked callers.
// Each entry is a one-shot handle: the receive loop resolves it, the
// issuing call blocks on it.
type waiterTable struct {
	mu      sync.Mutex
	waiters map[string]chan response
	closed  bool
}

func newWaiterTable() *waiterTable {
	return &waiterTable{waiters: make(map[string]chan response)}
}

// register creates the one-shot handle for key. Registering a key that
// already has a waiter fails: concurrent waits for the same response are
// rejected rather than queued.
func (t *waiterTable) register(key string) (<-chan response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClientShutdown
	}
	if _, exists := t.waiters[key]; exists {
		return nil, &CapabilityError{Message: "a response wait is already pending for " + key}
	}
	ch := make(chan response, 1)
	t.waiters[key] = ch
	return ch, nil
}

// cancel drops the waiter for key, if still registered. Safe to call
// after the loop already resolved it; the buffered response is discarded.
func (t *waiterTable) cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.waiters, key)
}

// resolve hands f to the waiter for key. Returns false when nobody is
// waiting, so the loop can log the unsolicited response.
func (t *waiterTable) resolve(key string, f *frame.Frame) bool {
	return t.complete(key, response{frame: f})
}

// fail resolves the waiter for key with an error.
func (t *waiterTable) fail(key string, err error) bool {
	return t.complete(key, response{err: err})
}

func (t *waiterTable) complete(key string, r response) bool {
	t.mu.Lock()
	ch, ok := t.waiters[key]
	if ok {
		delete(t.waiters, key)
	}
	t.mu.Unlock()
	if ok {
		ch <- r
	}
	return ok
}

// failSingle fails the only pending waiter. Used for ERROR frames that
// carry no correlation header: with exactly one caller waiting, the error
// is unambiguously theirs.
func (t *waiterTable) failSingle(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.waiters) != 1 {
		return false
	}
	for key, ch := range t.waiters {
		delete(t.waiters, key)
		ch <- response{err: err}
	}
	return true
}

// failAll resolves every pending waiter with err and refuses further
// registrations. Called once on loop exit so no caller hangs.
func (t *waiterTable) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for key, ch := range t.waiters {
		delete(t.waiters, key)
		ch <- response{err: err}
	}
}
