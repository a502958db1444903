// Package broadcast implements the fan-out hub that delivers alert, tick
// and error messages to subscribed listeners, dropping any subscriber that
// cannot keep up rather than letting it stall the pipeline.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/aegisais/detector/internal/monitoring"
)

// Kind identifies the type of a broadcast Message's payload.
type Kind string

const (
	KindAlert Kind = "alert"
	KindTick  Kind = "tick"
	KindError Kind = "error"
)

// Message is the broadcast envelope. Data is serialized to JSON by the
// control surface's SSE handler; Hub itself is transport-agnostic.
type Message struct {
	Kind Kind `json:"kind"`
	Data any  `json:"data,omitempty"`
}

// subscriberBuffer is the size of each subscriber's outbound channel. A
// subscriber that falls this far behind is treated as failed and dropped
// rather than allowed to block the broadcaster.
const subscriberBuffer = 64

// subscriber is one active listener's delivery channel.
type subscriber struct {
	id int64
	ch chan Message
}

// Hub maintains the set of active subscribers and fans out messages to
// them without blocking on a slow consumer.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int64]*subscriber
	nextID      int64

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]*subscriber)}
}

// Subscribe registers a new listener and returns its channel and an
// unsubscribe function. The caller must call unsubscribe when done
// listening, typically in a deferred call when the connection closes.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	sub := &subscriber{id: id, ch: make(chan Message, subscriberBuffer)}
	h.subscribers[id] = sub

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing.ch)
		}
	}
	return sub.ch, unsubscribe
}

// Broadcast delivers msg to every active subscriber. A subscriber whose
// channel is full is evicted immediately: broadcast is best-effort and
// must never stall the replay loop on a stuck consumer.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
			h.delivered.Add(1)
		default:
			monitoring.Logf("broadcast: dropping slow subscriber %d", id)
			delete(h.subscribers, id)
			close(sub.ch)
			h.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of currently active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Stats returns cumulative delivered and dropped message counts.
func (h *Hub) Stats() (delivered, dropped int64) {
	return h.delivered.Load(), h.dropped.Load()
}
