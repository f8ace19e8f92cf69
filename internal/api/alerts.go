package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/AaronLay10/SentientStory/internal/engine"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertStoryHalted         = "story_halted"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Story     string                 `json:"story"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outage turns a stream of up/down observations into one alert after the
// dependency has been down for delay, and one recovery notice after that.
type outage struct {
	event    string
	severity string
	what     string
	delay    time.Duration

	downSince time.Time
	alerted   bool
	up        bool
}

func (o *outage) observe(up bool, now time.Time) {
	if up {
		if !o.up && o.alerted {
			go SendAlert(o.event, SeverityInfo, o.what+" restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		o.downSince = time.Time{}
		o.alerted = false
		o.up = true
		return
	}

	if o.up {
		o.downSince = now
	}
	o.up = false

	if o.alerted || o.downSince.IsZero() {
		return
	}
	down := now.Sub(o.downSince)
	if down >= o.delay {
		o.alerted = true
		go SendAlert(o.event, o.severity, o.what+" unavailable", map[string]interface{}{
			"disconnected_since":   o.downSince.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(down.Seconds()),
		})
	}
}

var (
	alertMu     sync.Mutex
	webhookURL  string
	alertStory  string
	alertClient = &http.Client{Timeout: 10 * time.Second}
	initialized bool

	mqttOutage     = &outage{event: AlertMQTTDisconnected, severity: SeverityWarning, what: "MQTT broker", delay: 30 * time.Second, up: true}
	postgresOutage = &outage{event: AlertPostgresUnavailable, severity: SeverityCritical, what: "PostgreSQL", delay: 5 * time.Second, up: true}
)

// InitAlerts configures the webhook. An empty url logs alerts instead.
func InitAlerts(url, story string) {
	alertMu.Lock()
	defer alertMu.Unlock()

	webhookURL = url
	alertStory = story
	mqttOutage.up, mqttOutage.alerted, mqttOutage.downSince = true, false, time.Time{}
	postgresOutage.up, postgresOutage.alerted, postgresOutage.downSince = true, false, time.Time{}
	initialized = true

	if url != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, pg_delay=%s)",
			mqttOutage.delay, postgresOutage.delay)
	}
}

// SendAlert posts an alert to the webhook without blocking the caller.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	url, story := webhookURL, alertStory
	alertMu.Unlock()

	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}
	if story == "" {
		story = "unknown"
	}

	go sendWebhook(url, AlertPayload{
		Story:     story,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	})
}

func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	resp, err := alertClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// CheckAndAlertMQTT records the broker state.
func CheckAndAlertMQTT(connected bool) {
	checkOutage(mqttOutage, connected, time.Now())
}

// CheckAndAlertPostgres records the database state.
func CheckAndAlertPostgres(connected bool) {
	checkOutage(postgresOutage, connected, time.Now())
}

func checkOutage(o *outage, up bool, now time.Time) {
	alertMu.Lock()
	defer alertMu.Unlock()
	if !initialized {
		return
	}
	o.observe(up, now)
}

// HaltAlerter returns an engine observer that alerts when an authoring
// error halts the session.
func HaltAlerter() engine.Observer {
	return func(c engine.Commit) {
		if c.Err == nil {
			return
		}
		SendAlert(AlertStoryHalted, SeverityWarning, "story halted on an authoring error", map[string]interface{}{
			"node_id":    c.State.Cursor.NodeID,
			"error":      c.Err.Error(),
			"session_id": c.State.SessionID,
		})
	}
}

// StartAlertMonitor periodically feeds the readiness state into the
// outage trackers until stop is closed.
func StartAlertMonitor(checkInterval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				readiness.mu.RLock()
				mqttConnected := readiness.mqttConnected || readiness.mqttOptional
				postgresConnected := readiness.postgresConnected || readiness.postgresOptional
				readiness.mu.RUnlock()

				CheckAndAlertMQTT(mqttConnected)
				CheckAndAlertPostgres(postgresConnected)
			}
		}
	}()
}
