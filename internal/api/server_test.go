package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/export"
	"github.com/AaronLay10/StoryEngine/internal/orchestrator"
)

// fakeEngine records posted intents.
type fakeEngine struct {
	mu     sync.Mutex
	posted []orchestrator.Intent
	full   bool
	state  orchestrator.Snapshot
}

func (f *fakeEngine) Post(in orchestrator.Intent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.posted = append(f.posted, in)
	return true
}

func (f *fakeEngine) State() orchestrator.Snapshot {
	return f.state
}

func (f *fakeEngine) intents() []orchestrator.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]orchestrator.Intent, len(f.posted))
	copy(out, f.posted)
	return out
}

func withEngine(t *testing.T, e Engine) {
	t.Helper()
	SetEngine(e)
	t.Cleanup(func() { SetEngine(nil) })
}

func setReadiness(orch, mqtt, mqttOpt, pg, pgOpt bool) {
	readiness.mu.Lock()
	readiness.orchestratorReady = orch
	readiness.mqttConnected = mqtt
	readiness.mqttOptional = mqttOpt
	readiness.postgresConnected = pg
	readiness.postgresOptional = pgOpt
	readiness.mu.Unlock()
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name             string
		orch, mqtt, pg   bool
		mqttOpt, pgOpt   bool
		wantCode         int
		wantMQTT, wantPG string
		wantOrchestrator string
	}{
		{"all ready", true, true, true, false, false, http.StatusOK, "ok", "ok", "ok"},
		{"story not loaded", false, true, true, false, false, http.StatusServiceUnavailable, "ok", "ok", "not_ready"},
		{"optional mqtt down", true, false, true, true, false, http.StatusOK, "unavailable", "ok", "ok"},
		{"required mqtt down", true, false, true, false, false, http.StatusServiceUnavailable, "not_ready", "ok", "ok"},
		{"optional postgres down", true, true, false, false, true, http.StatusOK, "ok", "unavailable", "ok"},
		{"several down", false, false, true, false, false, http.StatusServiceUnavailable, "not_ready", "ok", "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setReadiness(tt.orch, tt.mqtt, tt.mqttOpt, tt.pg, tt.pgOpt)

			w := httptest.NewRecorder()
			readyHandler(w, httptest.NewRequest("GET", "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != (tt.wantCode == http.StatusOK) {
				t.Errorf("unexpected ready=%v", resp.Ready)
			}
			if !resp.Ready && resp.NotReadyMsg == "" {
				t.Error("expected non-empty message")
			}
			if got := resp.Checks["mqtt"].Status; got != tt.wantMQTT {
				t.Errorf("mqtt status %q, want %q", got, tt.wantMQTT)
			}
			if got := resp.Checks["postgres"].Status; got != tt.wantPG {
				t.Errorf("postgres status %q, want %q", got, tt.wantPG)
			}
			if got := resp.Checks["orchestrator"].Status; got != tt.wantOrchestrator {
				t.Errorf("orchestrator status %q, want %q", got, tt.wantOrchestrator)
			}
		})
	}
}

func TestSetReadinessState(t *testing.T) {
	SetOrchestratorReady(true)
	SetMQTTState(false, true)
	SetPostgresState(true, false)

	readiness.mu.RLock()
	defer readiness.mu.RUnlock()
	if !readiness.orchestratorReady {
		t.Error("SetOrchestratorReady(true) didn't set state")
	}
	if readiness.mqttConnected || !readiness.mqttOptional {
		t.Error("SetMQTTState(false, true) didn't set state correctly")
	}
	if !readiness.postgresConnected || readiness.postgresOptional {
		t.Error("SetPostgresState(true, false) didn't set state correctly")
	}
}

func TestIntentEndpoint(t *testing.T) {
	eng := &fakeEngine{}
	withEngine(t, eng)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"choice", `{"type":"choice","next":"north"}`, http.StatusAccepted},
		{"track", `{"type":"track","label":"drums"}`, http.StatusAccepted},
		{"export", `{"type":"export","kind":"comic"}`, http.StatusAccepted},
		{"start", `{"type":"start"}`, http.StatusAccepted},
		{"bad json", `{"type":`, http.StatusBadRequest},
		{"unknown type", `{"type":"completion"}`, http.StatusBadRequest},
		{"choice without next", `{"type":"choice"}`, http.StatusBadRequest},
		{"bad export kind", `{"type":"export","kind":"pdf"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			intentHandler(w, httptest.NewRequest("POST", "/intent", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d (%s)", tt.want, w.Code, w.Body.String())
			}
		})
	}

	got := eng.intents()
	if len(got) != 4 {
		t.Fatalf("expected 4 posted intents, got %d", len(got))
	}
	if c, ok := got[0].(orchestrator.ChoiceSelected); !ok || c.Next != "north" {
		t.Errorf("unexpected first intent %#v", got[0])
	}
	if e, ok := got[2].(orchestrator.ExportRequested); !ok || e.Kind != export.KindComic {
		t.Errorf("unexpected export intent %#v", got[2])
	}
}

func TestIntentEndpointRejects(t *testing.T) {
	w := httptest.NewRecorder()
	intentHandler(w, httptest.NewRequest("GET", "/intent", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}

	SetEngine(nil)
	w = httptest.NewRecorder()
	intentHandler(w, httptest.NewRequest("POST", "/intent", strings.NewReader(`{"type":"start"}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without engine, got %d", w.Code)
	}

	withEngine(t, &fakeEngine{full: true})
	w = httptest.NewRecorder()
	intentHandler(w, httptest.NewRequest("POST", "/intent", strings.NewReader(`{"type":"start"}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when queue full, got %d", w.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	withEngine(t, &fakeEngine{state: orchestrator.Snapshot{SessionID: "s1", SceneID: "north", Started: true}})

	w := httptest.NewRecorder()
	stateHandler(w, httptest.NewRequest("GET", "/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap orchestrator.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.SceneID != "north" || !snap.Started {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestExportEndpoint(t *testing.T) {
	sink := export.NewMemorySink()
	SetExportStore(sink)
	defer SetExportStore(nil)

	now := time.Now()
	sink.Deliver(context.Background(), export.Artifact{Kind: export.KindAudio, SessionID: "old", Data: []byte("RIFF-old"), Created: now.Add(-time.Minute)})
	sink.Deliver(context.Background(), export.Artifact{Kind: export.KindAudio, SessionID: "new", Data: []byte("RIFF-new"), Created: now})

	mux := NewMux(nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/export/audio?session=old", nil))
	if w.Code != http.StatusOK || w.Body.String() != "RIFF-old" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "your-sonic-journey.wav") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if ct := w.Header().Get("Content-Type"); ct != export.KindAudio.ContentType() {
		t.Errorf("unexpected Content-Type %q", ct)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/export/audio", nil))
	if w.Body.String() != "RIFF-new" {
		t.Errorf("expected latest artifact, got %q", w.Body.String())
	}

	for _, path := range []string{"/export/comic", "/export/pdf", "/export/audio?session=none"} {
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestOperatorReset(t *testing.T) {
	auth = nil
	eng := &fakeEngine{state: orchestrator.Snapshot{SessionID: "s1"}}
	withEngine(t, eng)
	events.Clear()

	w := httptest.NewRecorder()
	NewMux(nil).ServeHTTP(w, httptest.NewRequest("POST", "/operator/reset", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	got := eng.intents()
	if len(got) != 1 {
		t.Fatalf("expected one intent, got %d", len(got))
	}
	if _, ok := got[0].(orchestrator.WelcomeRequested); !ok {
		t.Errorf("expected WelcomeRequested, got %#v", got[0])
	}
	snap := events.Snapshot()
	if len(snap) == 0 || snap[len(snap)-1].Name != "operator.reset" {
		t.Error("expected operator.reset event")
	}
}

func TestEventsEndpointFiltersSession(t *testing.T) {
	auth = nil
	events.Clear()
	events.Emit("info", "scene.entered", "", map[string]interface{}{"session_id": "a", "scene_id": "x"})
	events.Emit("info", "scene.entered", "", map[string]interface{}{"session_id": "b", "scene_id": "y"})

	w := httptest.NewRecorder()
	NewMux(nil).ServeHTTP(w, httptest.NewRequest("GET", "/events?session=b", nil))

	var got []events.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Fields["scene_id"] != "y" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestUIOnlyAtRoot(t *testing.T) {
	mux := NewMux(nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/ws/render") {
		t.Errorf("expected player page, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
