package mqtt

import (
	"testing"
	"time"

	"github.com/AaronLay10/SentientStory/internal/events"
)

func lastEvent(t *testing.T, name string) (events.Event, bool) {
	t.Helper()
	snap := events.Snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if snap[i].Name == name {
			return snap[i], true
		}
	}
	return events.Event{}, false
}

func TestPresence_FirstHeartbeatConnects(t *testing.T) {
	events.Clear()
	p := NewPresence(2.0)

	p.HandleHeartbeat(Heartbeat{ID: "screen-1", HeartbeatSec: 5})

	state, ok := p.Get("screen-1")
	if !ok || !state.Connected || state.HeartbeatSec != 5 {
		t.Fatalf("unexpected state: %+v (found=%v)", state, ok)
	}
	e, ok := lastEvent(t, "client.connected")
	if !ok {
		t.Fatal("expected client.connected event")
	}
	if e.Fields["client_id"] != "screen-1" || e.Fields["reconnect"] != false {
		t.Errorf("unexpected event fields: %v", e.Fields)
	}
}

func TestPresence_RepeatHeartbeatIsQuiet(t *testing.T) {
	events.Clear()
	p := NewPresence(2.0)

	p.HandleHeartbeat(Heartbeat{ID: "screen-1", HeartbeatSec: 5})
	p.HandleHeartbeat(Heartbeat{ID: "screen-1", HeartbeatSec: 5})

	count := 0
	for _, e := range events.Snapshot() {
		if e.Name == "client.connected" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 client.connected event, got %d", count)
	}
}

func TestPresence_HeartbeatTimeout(t *testing.T) {
	events.Clear()
	p := NewPresence(2.0)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.HandleHeartbeat(Heartbeat{ID: "screen-1", HeartbeatSec: 5})

	now = now.Add(9 * time.Second)
	p.checkHealth()
	if state, _ := p.Get("screen-1"); !state.Connected {
		t.Fatal("front-end dropped before the tolerance elapsed")
	}

	now = now.Add(2 * time.Second)
	p.checkHealth()
	if state, _ := p.Get("screen-1"); state.Connected {
		t.Fatal("expected front-end to be disconnected")
	}
	if _, ok := lastEvent(t, "client.disconnected"); !ok {
		t.Error("expected client.disconnected event")
	}
	if len(p.Connected()) != 0 {
		t.Errorf("expected no connected front-ends, got %v", p.Connected())
	}

	p.HandleHeartbeat(Heartbeat{ID: "screen-1", HeartbeatSec: 5})
	e, ok := lastEvent(t, "client.connected")
	if !ok || e.Fields["reconnect"] != true {
		t.Errorf("expected reconnect event, got %+v", e)
	}
}

func TestPresence_CleanShutdown(t *testing.T) {
	events.Clear()
	p := NewPresence(0)
	offline := false

	p.HandleHeartbeat(Heartbeat{ID: "screen-1"})
	p.HandleHeartbeat(Heartbeat{ID: "screen-1", Online: &offline})

	if state, _ := p.Get("screen-1"); state.Connected {
		t.Error("expected front-end to be disconnected")
	}
	e, ok := lastEvent(t, "client.disconnected")
	if !ok || e.Fields["reason"] != "shutdown" {
		t.Errorf("expected shutdown event, got %+v", e)
	}
}

func TestPresence_HandlerIgnoresGarbage(t *testing.T) {
	p := NewPresence(2.0)
	h := p.Handler()

	h(nil, &mockMessage{topic: "story/presence", payload: []byte("not json")})
	h(nil, &mockMessage{topic: "story/presence", payload: []byte(`{"heartbeat_sec": 5}`)})
	if len(p.Connected()) != 0 {
		t.Errorf("expected no front-ends, got %v", p.Connected())
	}

	h(nil, &mockMessage{topic: "story/presence", payload: []byte(`{"id": "tablet"}`)})
	if _, ok := p.Get("tablet"); !ok {
		t.Error("expected tablet to be tracked")
	}
}

func TestPresence_StartStop(t *testing.T) {
	p := NewPresence(2.0)
	p.Start(10 * time.Millisecond)
	p.Stop()
}
