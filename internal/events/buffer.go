package events

import "sync"

// Filter selects events. A nil Filter keeps everything.
type Filter func(Event) bool

// ForSession keeps events tagged with the given session id. An empty id
// yields a nil Filter.
func ForSession(id string) Filter {
	if id == "" {
		return nil
	}
	return func(e Event) bool { return e.SessionID() == id }
}

func (f Filter) keep(e Event) bool {
	return f == nil || f(e)
}

// RingBuffer keeps the most recent events in emission order.
type RingBuffer struct {
	mu    sync.RWMutex
	ring  []Event
	next  int
	count int
	total int64
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{ring: make([]Event, size)}
}

func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.ring[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.ring)
	if rb.count < len(rb.ring) {
		rb.count++
	}
	rb.total++
}

// Snapshot returns every retained event, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Select(nil, 0)
}

// Select returns the newest n retained events accepted by f, oldest first.
// n <= 0 means all of them.
func (rb *RingBuffer) Select(f Filter, n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	start := (rb.next - rb.count + len(rb.ring)) % len(rb.ring)
	out := make([]Event, 0, rb.count)
	for i := 0; i < rb.count; i++ {
		e := rb.ring[(start+i)%len(rb.ring)]
		if f.keep(e) {
			out = append(out, e)
		}
	}
	if n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}

// Total returns the number of events added since creation or the last Clear.
func (rb *RingBuffer) Total() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.ring)
	rb.next, rb.count, rb.total = 0, 0, 0
}
