package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/version"
)

var metricsState = &MetricsState{}

// MetricsState holds process-level values for /metrics.
type MetricsState struct {
	mu         sync.RWMutex
	startTime  time.Time
	engineName string
	hub        *Hub
}

// InitMetrics records the start time. Call once at startup.
func InitMetrics(engineName string, hub *Hub) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.engineName = engineName
	metricsState.hub = hub
}

// GetEngineName returns the name used in metric labels and alerts.
func GetEngineName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.engineName
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metricsState.mu.RLock()
	startTime := metricsState.startTime
	engineName := metricsState.engineName
	hub := metricsState.hub
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	ready := readiness.orchestratorReady
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	renderClients := 0
	if hub != nil {
		renderClients = hub.ClientCount()
	}

	var visitedImages, visitedAudio int
	started := false
	if e := currentEngine(); e != nil {
		st := e.State()
		started = st.Started
		visitedImages = st.Images
		visitedAudio = st.Audio
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`engine=%q,instance=%q,version=%q`, engineName, hostname, version.Version)

	writeMetric("storyengine_uptime_seconds", "gauge",
		"Number of seconds since the engine started", time.Since(startTime).Seconds(), labels)
	writeMetric("storyengine_ready", "gauge",
		"Whether the story is loaded and the runtime is running", boolGauge(ready), labels)
	writeMetric("storyengine_journey_started", "gauge",
		"Whether the player has left the welcome screen", boolGauge(started), labels)
	writeMetric("storyengine_journey_images", "gauge",
		"Distinct images visited in the current journey", visitedImages, labels)
	writeMetric("storyengine_journey_audio", "gauge",
		"Distinct audio clips visited in the current journey", visitedAudio, labels)
	writeMetric("storyengine_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("storyengine_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected", boolGauge(mqttConnected), labels)
	writeMetric("storyengine_postgres_connected", "gauge",
		"Whether PostgreSQL is connected", boolGauge(postgresConnected), labels)
	writeMetric("storyengine_ws_event_clients", "gauge",
		"Active /ws/events connections", events.SubscriberCount(), labels)
	writeMetric("storyengine_ws_render_clients", "gauge",
		"Active /ws/render connections", renderClients, labels)
}
