package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/orchestrator"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Message types sent to render clients.
const (
	MessageRender = "render"
	MessageNotice = "notice"
	MessageError  = "error"
)

// Message is the envelope written to /ws/render clients.
type Message struct {
	Type    string                `json:"type"`
	Payload *orchestrator.Payload `json:"payload,omitempty"`
	Notice  *orchestrator.Notice  `json:"notice,omitempty"`
	Error   string                `json:"error,omitempty"`
}

const clientSendBuffer = 16

type renderClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a Renderer that pushes payloads to every connected websocket
// client and posts the intents they send back. A newly connected client
// receives the current screen first.
type Hub struct {
	post func(orchestrator.Intent) bool

	mu      sync.Mutex
	clients map[*renderClient]struct{}
	last    []byte
}

func NewHub(post func(orchestrator.Intent) bool) *Hub {
	return &Hub{
		post:    post,
		clients: make(map[*renderClient]struct{}),
	}
}

func (h *Hub) Render(_ context.Context, p orchestrator.Payload) error {
	b, err := sonic.Marshal(Message{Type: MessageRender, Payload: &p})
	if err != nil {
		return err
	}
	// Waiting markers only patch the current screen.
	if p.Kind != orchestrator.PayloadWaiting {
		h.mu.Lock()
		h.last = b
		h.mu.Unlock()
	}
	h.broadcast(b)
	return nil
}

func (h *Hub) Notify(_ context.Context, n orchestrator.Notice) error {
	b, err := sonic.Marshal(Message{Type: MessageNotice, Notice: &n})
	if err != nil {
		return err
	}
	h.broadcast(b)
	return nil
}

// ClientCount returns the number of connected render clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast never blocks; a client with a full buffer misses the message.
func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

func (h *Hub) register(c *renderClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
}

func (h *Hub) unregister(c *renderClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws render upgrade failed: %v", err)
		return
	}

	c := &renderClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *renderClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var wire orchestrator.WireIntent
		if err := sonic.Unmarshal(msg, &wire); err != nil {
			h.reply(c, "invalid JSON")
			continue
		}
		in, err := wire.Intent()
		if err != nil {
			h.reply(c, err.Error())
			continue
		}
		if h.post == nil || !h.post(in) {
			h.reply(c, "engine busy")
		}
	}
}

func (h *Hub) reply(c *renderClient, errMsg string) {
	b, err := sonic.Marshal(Message{Type: MessageError, Error: errMsg})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *Hub) writePump(c *renderClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
