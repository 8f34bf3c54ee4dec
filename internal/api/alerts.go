package api

import (
	"bytes"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON body posted to the webhook.
type AlertPayload struct {
	Engine    string                 `json:"engine"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outage tracks one dependency. An alert fires once the dependency has been
// down for delay, and a recovery alert follows when it comes back.
type outage struct {
	event    string
	severity string
	name     string
	delay    time.Duration

	down  bool
	since time.Time
	sent  bool
}

var (
	alertMu    sync.Mutex
	webhookURL string
	alertReady bool

	mqttOutage = &outage{
		event:    AlertMQTTDisconnected,
		severity: SeverityWarning,
		name:     "MQTT broker",
		delay:    30 * time.Second,
	}
	postgresOutage = &outage{
		event:    AlertPostgresUnavailable,
		severity: SeverityCritical,
		name:     "PostgreSQL",
		delay:    5 * time.Second,
	}
)

// InitAlerts reads STORYENGINE_ALERT_WEBHOOK_URL and the optional
// STORYENGINE_MQTT_ALERT_DELAY / STORYENGINE_POSTGRES_ALERT_DELAY durations.
func InitAlerts() {
	alertMu.Lock()
	defer alertMu.Unlock()

	webhookURL = os.Getenv("STORYENGINE_ALERT_WEBHOOK_URL")
	if d, err := time.ParseDuration(os.Getenv("STORYENGINE_MQTT_ALERT_DELAY")); err == nil {
		mqttOutage.delay = d
	}
	if d, err := time.ParseDuration(os.Getenv("STORYENGINE_POSTGRES_ALERT_DELAY")); err == nil {
		postgresOutage.delay = d
	}
	for _, o := range []*outage{mqttOutage, postgresOutage} {
		o.down, o.sent, o.since = false, false, time.Time{}
	}
	alertReady = true

	if webhookURL != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, pg_delay=%s)",
			mqttOutage.delay, postgresOutage.delay)
	}
}

// SendAlert posts an alert to the webhook, or logs it when none is set.
// Delivery is asynchronous and best-effort.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	url := webhookURL
	alertMu.Unlock()

	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}

	name := GetEngineName()
	if name == "" {
		name = "unknown"
	}
	go sendWebhook(url, AlertPayload{
		Engine:    name,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	})
}

func sendWebhook(url string, payload AlertPayload) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// observe updates o with the current connectivity. Must hold alertMu.
func (o *outage) observe(connected bool, now time.Time) {
	if connected {
		if o.down && o.sent {
			go SendAlert(o.event, SeverityInfo, o.name+" connection restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		o.down, o.sent, o.since = false, false, time.Time{}
		return
	}

	if !o.down {
		o.down = true
		o.since = now
	}
	if o.sent {
		return
	}
	if d := now.Sub(o.since); d >= o.delay {
		o.sent = true
		go SendAlert(o.event, o.severity, o.name+" unavailable", map[string]interface{}{
			"disconnected_since":   o.since.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(d.Seconds()),
		})
	}
}

// CheckAndAlertMQTT feeds the current broker state into the alert tracker.
func CheckAndAlertMQTT(connected bool) {
	checkAndAlert(mqttOutage, connected)
}

func CheckAndAlertPostgres(connected bool) {
	checkAndAlert(postgresOutage, connected)
}

func checkAndAlert(o *outage, connected bool) {
	alertMu.Lock()
	defer alertMu.Unlock()
	if !alertReady {
		return
	}
	o.observe(connected, time.Now())
}

// StartAlertMonitor polls the readiness state every interval. Only
// dependencies that are actually in use (not optional) are watched.
func StartAlertMonitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			readiness.mu.RLock()
			mqtt, mqttOptional := readiness.mqttConnected, readiness.mqttOptional
			pg, pgOptional := readiness.postgresConnected, readiness.postgresOptional
			readiness.mu.RUnlock()

			if !mqttOptional {
				CheckAndAlertMQTT(mqtt)
			}
			if !pgOptional {
				CheckAndAlertPostgres(pg)
			}
		}
	}()
}
