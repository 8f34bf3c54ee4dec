package mqtt

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/orchestrator"
)

const outboxSize = 32

// Topic suffixes under <prefix>/<session>/.
const (
	TopicRender   = "render"
	TopicNotice   = "notice"
	TopicIntent   = "intent"
	TopicPresence = "presence"
)

// Topic joins prefix, session and suffix.
func Topic(prefix, session, suffix string) string {
	return prefix + "/" + session + "/" + suffix
}

type outgoing struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge is a Renderer that publishes payloads to MQTT and turns messages
// on the intent topic into runtime intents. Render and Notify never block:
// publishing happens on Run's goroutine.
type Bridge struct {
	transport Transport
	prefix    string
	session   string
	post      func(orchestrator.Intent) bool
	presence  *Presence

	outbox chan outgoing

	mu         sync.Mutex
	subscribed map[string]bool
	lastRender []byte
}

func NewBridge(t Transport, prefix, session string, post func(orchestrator.Intent) bool) *Bridge {
	return &Bridge{
		transport:  t,
		prefix:     prefix,
		session:    session,
		post:       post,
		outbox:     make(chan outgoing, outboxSize),
		subscribed: make(map[string]bool),
	}
}

// SetPresence routes display heartbeats to p. Call before Subscribe.
func (b *Bridge) SetPresence(p *Presence) {
	b.presence = p
}

func (b *Bridge) Render(_ context.Context, p orchestrator.Payload) error {
	data, err := sonic.Marshal(p)
	if err != nil {
		return err
	}
	retained := p.Kind != orchestrator.PayloadWaiting
	if retained {
		b.mu.Lock()
		b.lastRender = data
		b.mu.Unlock()
	}
	return b.enqueue(outgoing{topic: b.topic(TopicRender), payload: data, retained: retained})
}

func (b *Bridge) Notify(_ context.Context, n orchestrator.Notice) error {
	data, err := sonic.Marshal(n)
	if err != nil {
		return err
	}
	return b.enqueue(outgoing{topic: b.topic(TopicNotice), payload: data})
}

// ErrOutboxFull is returned when the broker cannot keep up.
var ErrOutboxFull = errors.New("mqtt outbox full")

func (b *Bridge) enqueue(m outgoing) error {
	select {
	case b.outbox <- m:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Run publishes queued messages until ctx ends. Messages queued while the
// broker is down are dropped; the retained screen is republished by
// Resubscribe after reconnecting.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.outbox:
			if !b.transport.IsConnected() {
				continue
			}
			if err := b.transport.Publish(m.topic, m.payload, m.retained); err != nil {
				log.Printf("mqtt: publish to %s failed: %v", m.topic, err)
			}
		}
	}
}

func (b *Bridge) topic(suffix string) string {
	return Topic(b.prefix, b.session, suffix)
}

// Subscribe subscribes the intent and presence topics. It is idempotent.
func (b *Bridge) Subscribe() error {
	if err := b.subscribeOnce(b.topic(TopicIntent), b.handleIntent); err != nil {
		return err
	}
	if b.presence != nil {
		return b.subscribeOnce(b.topic(TopicPresence), b.handlePresence)
	}
	return nil
}

func (b *Bridge) subscribeOnce(topic string, h Handler) error {
	b.mu.Lock()
	if b.subscribed[topic] {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.transport.Subscribe(topic, h); err != nil {
		return err
	}

	b.mu.Lock()
	b.subscribed[topic] = true
	b.mu.Unlock()
	return nil
}

// Resubscribe is called after a reconnect: it subscribes again and
// republishes the current screen.
func (b *Bridge) Resubscribe() error {
	b.ClearSubscriptions()
	if err := b.Subscribe(); err != nil {
		return err
	}
	b.mu.Lock()
	last := b.lastRender
	b.mu.Unlock()
	if last != nil {
		return b.enqueue(outgoing{topic: b.topic(TopicRender), payload: last, retained: true})
	}
	return nil
}

// ClearSubscriptions forgets subscription state so Subscribe runs again.
func (b *Bridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}

func (b *Bridge) IsSubscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed[topic]
}

func (b *Bridge) handleIntent(topic string, payload []byte) {
	var wire orchestrator.WireIntent
	if err := sonic.Unmarshal(payload, &wire); err != nil {
		b.reject(topic, "invalid JSON")
		return
	}
	in, err := wire.Intent()
	if err != nil {
		b.reject(topic, err.Error())
		return
	}
	if b.post == nil || !b.post(in) {
		b.reject(topic, "engine busy")
	}
}

func (b *Bridge) reject(topic, reason string) {
	events.Emit("warning", "intent.rejected", reason, map[string]interface{}{
		"session_id": b.session,
		"topic":      topic,
		"transport":  "mqtt",
	})
}

func (b *Bridge) handlePresence(topic string, payload []byte) {
	hb, err := ParseHeartbeat(payload)
	if err != nil {
		b.reject(topic, err.Error())
		return
	}
	b.presence.HandleHeartbeat(hb)
}
