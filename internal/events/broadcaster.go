package events

import "sync"

// Subscriber receives live events. The channel is buffered; a slow reader
// loses events rather than stalling Emit.
type Subscriber chan Event

const subscriberBuffer = 64

var (
	subMu       sync.RWMutex
	subscribers = make(map[Subscriber]Filter)
)

// Subscribe registers a live listener. Only events accepted by f are
// delivered; pass nil for the full stream.
func Subscribe(f Filter) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	subMu.Lock()
	subscribers[ch] = f
	subMu.Unlock()
	return ch
}

// Unsubscribe removes sub and closes its channel. Unsubscribing twice is a
// no-op.
func Unsubscribe(sub Subscriber) {
	subMu.Lock()
	defer subMu.Unlock()
	if _, ok := subscribers[sub]; !ok {
		return
	}
	delete(subscribers, sub)
	close(sub)
}

// CloseAllSubscribers closes every subscriber channel. Called on shutdown.
func CloseAllSubscribers() {
	subMu.Lock()
	defer subMu.Unlock()
	for sub := range subscribers {
		close(sub)
	}
	clear(subscribers)
}

func broadcast(e Event) {
	subMu.RLock()
	defer subMu.RUnlock()

	for sub, f := range subscribers {
		if !f.keep(e) {
			continue
		}
		select {
		case sub <- e:
		default:
		}
	}
}

func SubscriberCount() int {
	subMu.RLock()
	defer subMu.RUnlock()
	return len(subscribers)
}

// RecentEvents returns the last n buffered events accepted by f, oldest
// first. n <= 0 returns all of them.
func RecentEvents(n int, f Filter) []Event {
	return buffer.Select(f, n)
}
