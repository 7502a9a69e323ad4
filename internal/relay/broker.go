package relay

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

// Event is one server-sent message owned by a session: a screencast
// frame, a tab change, or a failure notice.
type Event struct {
	Session string // owning session id
	Type    string // SSE event name, e.g. "frame", "tabs", "session_failed"
	Payload string // JSON-encoded body
}

// Broker fans session events out to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

// NewBroker creates a new SSE event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: a slow
// client drops frames rather than stalling capture for everyone else.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
