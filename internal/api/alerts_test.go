package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AaronLay10/SentientStory/internal/engine"
)

// webhookSink collects alert payloads posted to it.
func webhookSink(t *testing.T) (*httptest.Server, <-chan AlertPayload) {
	t.Helper()
	ch := make(chan AlertPayload, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p AlertPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			ch <- p
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(func() {
		srv.Close()
		InitAlerts("", "")
	})
	return srv, ch
}

func awaitAlert(t *testing.T, ch <-chan AlertPayload) AlertPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
		return AlertPayload{}
	}
}

func TestSendAlertPostsPayload(t *testing.T) {
	srv, ch := webhookSink(t)
	InitAlerts(srv.URL, "The Tavern")

	SendAlert(AlertStoryHalted, SeverityWarning, "halted", map[string]interface{}{"node_id": "x"})

	p := awaitAlert(t, ch)
	if p.Story != "The Tavern" || p.Event != AlertStoryHalted || p.Severity != SeverityWarning {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.Details["node_id"] != "x" {
		t.Errorf("details: %v", p.Details)
	}
}

func TestOutageAlertsAfterDelayThenRecovers(t *testing.T) {
	srv, ch := webhookSink(t)
	InitAlerts(srv.URL, "s")

	o := &outage{event: AlertMQTTDisconnected, severity: SeverityWarning, what: "MQTT broker", delay: 30 * time.Second, up: true}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	o.observe(false, start)
	o.observe(false, start.Add(10*time.Second))
	if o.alerted {
		t.Fatal("alerted before the delay")
	}

	o.observe(false, start.Add(31*time.Second))
	if !o.alerted {
		t.Fatal("expected an alert after the delay")
	}
	if p := awaitAlert(t, ch); p.Severity != SeverityWarning || p.Event != AlertMQTTDisconnected {
		t.Errorf("unexpected alert: %+v", p)
	}

	// no repeat while still down
	o.observe(false, start.Add(60*time.Second))

	o.observe(true, start.Add(90*time.Second))
	p := awaitAlert(t, ch)
	if p.Severity != SeverityInfo {
		t.Errorf("expected recovery notice, got %+v", p)
	}
	if o.alerted || !o.up {
		t.Errorf("tracker not reset: %+v", o)
	}
}

func TestOutageShortBlipIsQuiet(t *testing.T) {
	o := &outage{delay: 5 * time.Second, up: true}
	start := time.Now()

	o.observe(false, start)
	o.observe(true, start.Add(2*time.Second))
	o.observe(false, start.Add(3*time.Second))
	o.observe(false, start.Add(7*time.Second))

	if o.alerted {
		t.Error("downtime should restart after recovery")
	}
}

func TestCheckBeforeInitIsIgnored(t *testing.T) {
	alertMu.Lock()
	initialized = false
	alertMu.Unlock()
	t.Cleanup(func() { InitAlerts("", "") })

	CheckAndAlertPostgres(false)
	alertMu.Lock()
	up := postgresOutage.up
	alertMu.Unlock()
	if !up {
		t.Error("tracker should not change before InitAlerts")
	}
}

func TestHaltAlerterIgnoresCleanCommits(t *testing.T) {
	srv, ch := webhookSink(t)
	InitAlerts(srv.URL, "s")
	observe := HaltAlerter()

	observe(engine.Commit{})
	observe(engine.Commit{
		Err:   errors.New("undefined variable gold"),
		State: engine.SessionState{Cursor: engine.Cursor{NodeID: "check", State: engine.Halted}},
	})

	p := awaitAlert(t, ch)
	if p.Event != AlertStoryHalted || p.Details["node_id"] != "check" {
		t.Errorf("unexpected alert: %+v", p)
	}
	select {
	case extra := <-ch:
		t.Errorf("clean commit raised an alert: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}
