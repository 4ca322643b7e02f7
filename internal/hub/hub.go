// Package hub fans out newly produced log records to connected observers.
package hub

import (
	"sync"

	"github.com/ormanaq/tmate/internal/logstore"
)

// Event is the tagged payload pushed to observers.
type Event struct {
	Kind    string       `json:"kind"`
	Payload logstore.Log `json:"payload"`
}

// NewLogEvent wraps a log record in the wire event shape.
func NewLogEvent(rec logstore.Log) Event {
	return Event{Kind: "log", Payload: rec}
}

// DefaultBuffer is the per-observer channel depth. An observer that falls
// this far behind is treated as disconnected.
const DefaultBuffer = 64

// Observer is one live delivery channel. It has no identity beyond its
// membership in the hub; dropping the connection drops the observer.
type Observer struct {
	id uint64
	ch chan Event
}

// Events returns the receive side of the observer's delivery channel. The
// hub closes it when the observer is removed.
func (o *Observer) Events() <-chan Event { return o.ch }

// Hub maintains the observer set. Delivery is best-effort per observer: a
// full buffer removes that observer without delaying the others.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Observer
	buffer int
	// onDrop is invoked (outside hot paths, same goroutine) when an
	// observer is evicted for falling behind. Used for metrics.
	onDrop func()
}

// New creates a hub with the given per-observer buffer; 0 selects
// DefaultBuffer.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[uint64]*Observer), buffer: buffer}
}

// OnDrop registers a callback fired once per evicted observer.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Subscribe registers a new observer and returns its handle.
func (h *Hub) Subscribe() *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	o := &Observer{id: h.nextID, ch: make(chan Event, h.buffer)}
	h.subs[o.id] = o
	return o
}

// Unsubscribe removes the observer and closes its channel. Safe to call for
// an observer the hub already evicted.
func (h *Hub) Unsubscribe(o *Observer) {
	if o == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(o.id)
}

func (h *Hub) removeLocked(id uint64) {
	if o, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(o.ch)
	}
}

// Publish delivers the event to every observer. It never blocks: an
// observer whose buffer is full is evicted on the spot. Events published
// from a single goroutine are received by each surviving observer in
// publish order.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	var stuck []uint64
	for id, o := range h.subs {
		select {
		case o.ch <- ev:
		default:
			stuck = append(stuck, id)
		}
	}
	dropped := len(stuck)
	for _, id := range stuck {
		h.removeLocked(id)
	}
	fn := h.onDrop
	h.mu.Unlock()
	if fn != nil {
		for i := 0; i < dropped; i++ {
			fn()
		}
	}
}

// Len reports the current observer count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
