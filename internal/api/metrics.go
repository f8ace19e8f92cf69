package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/version"
)

var metricsState = &MetricsState{startTime: time.Now()}

// MetricsState holds process-wide values for the /metrics endpoint.
type MetricsState struct {
	mu               sync.RWMutex
	startTime        time.Time
	lastSaveTimeSec  int64 // Unix timestamp, -1 if unknown
	autoSaveFailures uint64
}

// InitMetrics resets the uptime clock. Call once at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.lastSaveTimeSec = -1
	metricsState.autoSaveFailures = 0
}

// RecordSave notes a successful save.
func RecordSave(ts time.Time) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.lastSaveTimeSec = ts.Unix()
}

// RecordAutoSaveFailure counts a failed auto-save.
func RecordAutoSaveFailure() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.autoSaveFailures++
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	lastSave := metricsState.lastSaveTimeSec
	autoSaveFailures := metricsState.autoSaveFailures
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	mqttConnected := boolGauge(readiness.mqttConnected)
	postgresConnected := boolGauge(readiness.postgresConnected)
	readiness.mu.RUnlock()

	halted := boolGauge(s.engine.State() == engine.Halted)
	history := len(s.engine.History())

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

	labels := fmt.Sprintf(`story=%q,instance=%q,version=%q`, s.engine.Graph().Title, hostname, version.Version)

	writeMetric("storyplayer_uptime_seconds", "gauge",
		"Number of seconds since the player started", time.Since(startTime).Seconds(), labels)
	writeMetric("storyplayer_story_nodes", "gauge",
		"Number of nodes in the loaded story", s.engine.Graph().Len(), labels)
	writeMetric("storyplayer_engine_halted", "gauge",
		"Whether the session is halted (1) or not (0)", halted, labels)
	writeMetric("storyplayer_history_entries", "gauge",
		"Number of scroll-back entries in the session", history, labels)
	writeMetric("storyplayer_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("storyplayer_events_persist_dropped_total", "counter",
		"Number of events not persisted because the write queue was full", events.PersistDropped(), labels)
	writeMetric("storyplayer_ws_clients", "gauge",
		"Number of active event subscribers", events.SubscriberCount(), labels)
	writeMetric("storyplayer_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", mqttConnected, labels)
	writeMetric("storyplayer_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", postgresConnected, labels)
	writeMetric("storyplayer_save_last_success_timestamp", "gauge",
		"Unix timestamp of the last successful save (-1 if unknown)", lastSave, labels)
	writeMetric("storyplayer_autosave_failures_total", "counter",
		"Number of failed auto-saves", autoSaveFailures, labels)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
