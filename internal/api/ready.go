package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// readinessState tracks the dependencies /ready reports on. A dependency
// marked optional is reported but never blocks readiness.
type readinessState struct {
	mu                sync.RWMutex
	storyLoaded       bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{mqttOptional: true, postgresOptional: true}

// CheckStatus is one dependency in a readiness report.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the body of /ready.
type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// SetStoryLoaded marks whether a story is loaded and playable.
func SetStoryLoaded(loaded bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.storyLoaded = loaded
}

// SetMQTTStatus records the broker connection state.
func SetMQTTStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetPostgresStatus records the database connection state.
func SetPostgresStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

func dependencyCheck(connected, optional bool) (CheckStatus, bool) {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}, true
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}, true
	default:
		return CheckStatus{Status: "not_ready"}, false
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	storyLoaded := readiness.storyLoaded
	mqtt, mqttOK := dependencyCheck(readiness.mqttConnected, readiness.mqttOptional)
	pg, pgOK := dependencyCheck(readiness.postgresConnected, readiness.postgresOptional)
	readiness.mu.RUnlock()

	resp := ReadinessResponse{
		Ready:  true,
		Checks: map[string]CheckStatus{"mqtt": mqtt, "postgres": pg},
	}
	var notReady []string
	if storyLoaded {
		resp.Checks["story"] = CheckStatus{Status: "ok"}
	} else {
		resp.Checks["story"] = CheckStatus{Status: "not_ready"}
		notReady = append(notReady, "story")
	}
	if !mqttOK {
		notReady = append(notReady, "mqtt")
	}
	if !pgOK {
		notReady = append(notReady, "postgres")
	}

	w.Header().Set("Content-Type", "application/json")
	if len(notReady) > 0 {
		resp.Ready = false
		resp.NotReadyMsg = "not ready: " + strings.Join(notReady, ", ")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
