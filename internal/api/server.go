package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/export"
	"github.com/AaronLay10/StoryEngine/internal/orchestrator"
	"github.com/bytedance/sonic"
)

// Engine is the slice of the runtime the HTTP surface needs.
type Engine interface {
	Post(in orchestrator.Intent) bool
	State() orchestrator.Snapshot
}

// ExportStore serves delivered artifacts for download.
type ExportStore interface {
	Get(sessionID string, kind export.Kind) (export.Artifact, bool)
	Latest(kind export.Kind) (export.Artifact, bool)
}

var (
	engineMu sync.RWMutex
	engine   Engine
	exports  ExportStore
)

// SetEngine sets the runtime that receives intents.
func SetEngine(e Engine) {
	engineMu.Lock()
	engine = e
	engineMu.Unlock()
}

// SetExportStore sets where /export/* downloads are read from.
func SetExportStore(s ExportStore) {
	engineMu.Lock()
	exports = s
	engineMu.Unlock()
}

func currentEngine() Engine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return engine
}

func currentExports() ExportStore {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return exports
}

// readinessState tracks the dependencies /ready reports on.
type readinessState struct {
	mu                sync.RWMutex
	orchestratorReady bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{mqttOptional: true, postgresOptional: true}

// SetOrchestratorReady marks whether the story is loaded and the runtime is running.
func SetOrchestratorReady(ready bool) {
	readiness.mu.Lock()
	readiness.orchestratorReady = ready
	readiness.mu.Unlock()
}

// SetMQTTState records broker connectivity. Optional dependencies never fail /ready.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// IntentResponse is returned by POST /intent.
type IntentResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	b, err := sonic.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	w.Write(b)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "storyengine",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func dependencyCheck(connected, optional bool) CheckStatus {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	orch := readiness.orchestratorReady
	mqtt := dependencyCheck(readiness.mqttConnected, readiness.mqttOptional)
	pg := dependencyCheck(readiness.postgresConnected, readiness.postgresOptional)
	readiness.mu.RUnlock()

	resp := ReadinessResponse{
		Ready:  true,
		Checks: map[string]CheckStatus{"mqtt": mqtt, "postgres": pg},
	}
	var reasons []string
	if orch {
		resp.Checks["orchestrator"] = CheckStatus{Status: "ok"}
	} else {
		resp.Checks["orchestrator"] = CheckStatus{Status: "not_ready"}
		reasons = append(reasons, "story not loaded")
	}
	if mqtt.Status == "not_ready" {
		reasons = append(reasons, "mqtt not connected")
	}
	if pg.Status == "not_ready" {
		reasons = append(reasons, "postgres not connected")
	}

	status := http.StatusOK
	if len(reasons) > 0 {
		resp.Ready = false
		resp.NotReadyMsg = strings.Join(reasons, "; ")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	f := events.ForSession(r.URL.Query().Get("session"))
	writeJSON(w, http.StatusOK, events.RecentEvents(0, f))
}

func stateHandler(w http.ResponseWriter, r *http.Request) {
	e := currentEngine()
	if e == nil {
		writeJSON(w, http.StatusServiceUnavailable, IntentResponse{Error: "engine not running"})
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

// intentHandler accepts one player intent as JSON, e.g. {"type":"choice","next":"north"}.
func intentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, IntentResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, IntentResponse{Error: "read failed"})
		return
	}
	var wire orchestrator.WireIntent
	if err := sonic.Unmarshal(body, &wire); err != nil {
		writeJSON(w, http.StatusBadRequest, IntentResponse{Error: "invalid JSON"})
		return
	}
	in, err := wire.Intent()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, IntentResponse{Error: err.Error()})
		return
	}

	e := currentEngine()
	if e == nil {
		writeJSON(w, http.StatusServiceUnavailable, IntentResponse{Error: "engine not running"})
		return
	}
	if !e.Post(in) {
		writeJSON(w, http.StatusServiceUnavailable, IntentResponse{Error: "engine busy"})
		return
	}
	writeJSON(w, http.StatusAccepted, IntentResponse{OK: true})
}

// operatorResetHandler sends the player back to the welcome screen.
func operatorResetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, IntentResponse{Error: "method not allowed"})
		return
	}
	e := currentEngine()
	if e == nil {
		writeJSON(w, http.StatusServiceUnavailable, IntentResponse{Error: "engine not running"})
		return
	}
	if !e.Post(orchestrator.WelcomeRequested{}) {
		writeJSON(w, http.StatusServiceUnavailable, IntentResponse{Error: "engine busy"})
		return
	}
	events.Emit("info", "operator.reset", "", map[string]interface{}{
		"session_id": e.State().SessionID,
	})
	writeJSON(w, http.StatusAccepted, IntentResponse{OK: true})
}

// exportHandler serves /export/audio and /export/comic. Without ?session the
// newest artifact of that kind is returned.
func exportHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := export.ParseKind(strings.TrimPrefix(r.URL.Path, "/export/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	store := currentExports()
	if store == nil {
		http.NotFound(w, r)
		return
	}

	var (
		a  export.Artifact
		ok bool
	)
	if session := r.URL.Query().Get("session"); session != "" {
		a, ok = store.Get(session, kind)
	} else {
		a, ok = store.Latest(kind)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", kind.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind.Filename()))
	w.Header().Set("Content-Length", fmt.Sprint(len(a.Data)))
	w.Write(a.Data)
}

// NewMux builds the HTTP surface. hub may be nil when no websocket renderer is attached.
func NewMux(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", uiHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("/ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("/state", stateHandler)
	mux.HandleFunc("/intent", intentHandler)
	mux.HandleFunc("/export/", exportHandler)
	mux.HandleFunc("/operator/reset", RequireAdmin(operatorResetHandler))
	if hub != nil {
		mux.Handle("/ws/render", hub)
	}
	return mux
}

// ListenAndServe starts the API server on the given port, over TLS when
// configured. It blocks until the server exits.
func ListenAndServe(port int, hub *Hub) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: NewMux(hub),
	}
	if tlsCfg := LoadTLSConfig(); tlsCfg != nil {
		srv.TLSConfig = tlsCfg
		log.Printf("API listening on %s (TLS)\n", srv.Addr)
		return srv.ListenAndServeTLS("", "")
	}
	log.Printf("API listening on %s\n", srv.Addr)
	return srv.ListenAndServe()
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int, hub *Hub) {
	go func() {
		if err := ListenAndServe(port, hub); err != nil && err != http.ErrServerClosed {
			log.Printf("api server error: %v", err)
		}
	}()
}
