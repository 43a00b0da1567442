package stompclient

import (
	"sync"

	"github.com/pior/stompclient/frame"
)

// Handler processes one MESSAGE frame. Under inline dispatch it runs on
// the receive loop goroutine: a handler that blocks stalls all further
// delivery, including to other subscriptions and to callers waiting on
// responses, until it returns.
type Handler func(*frame.Frame)

// Subscription is an active subscription of a DuplexClient.
type Subscription struct {
	// ID is the subscription identifier sent to the broker and echoed
	// back on MESSAGE frames.
	ID string

	// Destination is the subscribed queue or topic path.
	Destination string

	// Ack is the flow-control mode the subscription was created with.
	Ack AckMode

	handler Handler
}

// subscriptionRegistry maps MESSAGE frames back to subscriptions, by the
// subscription id the broker echoes, with a secondary index by
// destination for brokers that omit it.
type subscriptionRegistry struct {
	mu            sync.RWMutex
	byID          map[string]*Subscription
	byDestination map[string]*Subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		byID:          make(map[string]*Subscription),
		byDestination: make(map[string]*Subscription),
	}
}

func (r *subscriptionRegistry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[sub.ID] = sub
	// First subscription wins the destination index, consistent with
	// first-wins header handling.
	if _, ok := r.byDestination[sub.Destination]; !ok {
		r.byDestination[sub.Destination] = sub
	}
}

func (r *subscriptionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	if r.byDestination[sub.Destination] == sub {
		delete(r.byDestination, sub.Destination)
		for _, other := range r.byID {
			if other.Destination == sub.Destination {
				r.byDestination[sub.Destination] = other
				break
			}
		}
	}
}

// lookup finds the subscription for a MESSAGE frame: by subscription id
// when the broker echoes one, falling back to the destination index.
func (r *subscriptionRegistry) lookup(id, destination string) *Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id != "" {
		if sub, ok := r.byID[id]; ok {
			return sub
		}
	}
	return r.byDestination[destination]
}
