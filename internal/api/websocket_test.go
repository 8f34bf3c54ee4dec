package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/gorilla/websocket"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	events.Clear()
	for i := 0; i < 5; i++ {
		events.Emit("info", "scene.entered", "", map[string]interface{}{"i": i})
	}

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()
	conn := dial(t, server, "")
	defer conn.Close()

	for i := 0; i < 5; i++ {
		if e := readEvent(t, conn); e.Name != "scene.entered" {
			t.Errorf("expected 'scene.entered', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	events.Clear()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()
	conn := dial(t, server, "")
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "choice.selected", "", map[string]interface{}{"next": "north"})
	}()

	e := readEvent(t, conn)
	if e.Name != "choice.selected" {
		t.Errorf("expected 'choice.selected', got '%s'", e.Name)
	}
	if e.Fields["next"] != "north" {
		t.Errorf("expected next 'north', got '%v'", e.Fields["next"])
	}
}

func TestWebSocketSessionFilter(t *testing.T) {
	events.Clear()
	events.Emit("info", "scene.entered", "", map[string]interface{}{"session_id": "other", "scene_id": "x"})
	events.Emit("info", "scene.entered", "", map[string]interface{}{"session_id": "mine", "scene_id": "y"})

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()
	conn := dial(t, server, "?session=mine")
	defer conn.Close()

	if e := readEvent(t, conn); e.Fields["scene_id"] != "y" {
		t.Fatalf("expected only session events, got %+v", e)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.Emit("info", "audio.started", "", map[string]interface{}{"session_id": "other"})
		events.Emit("info", "audio.ended", "", map[string]interface{}{"session_id": "mine"})
	}()
	if e := readEvent(t, conn); e.Name != "audio.ended" {
		t.Fatalf("expected audio.ended, got %s", e.Name)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()
	conn := dial(t, server, "")

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.Emit("info", "scene.entered", "", map[string]interface{}{"test": "cleanup"})
	}()
	readEvent(t, conn)
	conn.Close()

	// Emit events so the writer notices the close
	for i := 0; i < 5; i++ {
		events.Emit("info", "scene.entered", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}
