package mqtt

import (
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientStory/internal/events"
)

// Heartbeat is published by presentation front-ends on <prefix>/presence.
// A heartbeat with Online false announces a clean shutdown.
type Heartbeat struct {
	ID           string `json:"id"`
	HeartbeatSec int    `json:"heartbeat_sec"`
	Online       *bool  `json:"online,omitempty"`
}

// FrontendState tracks a front-end's health.
type FrontendState struct {
	ID           string
	LastSeen     time.Time
	HeartbeatSec int
	Connected    bool
}

// Presence tracks which presentation front-ends are listening.
type Presence struct {
	mu        sync.RWMutex
	frontends map[string]*FrontendState
	tolerance float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPresence creates a monitor. tolerance is the multiplier for the
// heartbeat interval before a front-end counts as gone.
func NewPresence(tolerance float64) *Presence {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss 1 heartbeat
	}
	return &Presence{
		frontends: make(map[string]*FrontendState),
		tolerance: tolerance,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Handler returns the message handler for the presence topic.
func (p *Presence) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var hb Heartbeat
		if err := json.Unmarshal(msg.Payload(), &hb); err != nil || hb.ID == "" {
			return
		}
		p.HandleHeartbeat(hb)
	}
}

// HandleHeartbeat records hb and emits client.connected on first sight or
// reconnect, and client.disconnected on a clean shutdown.
func (p *Presence) HandleHeartbeat(hb Heartbeat) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, known := p.frontends[hb.ID]

	if hb.Online != nil && !*hb.Online {
		if known && existing.Connected {
			existing.Connected = false
			events.Emit("info", "client.disconnected", "", map[string]interface{}{
				"transport": "mqtt",
				"client_id": hb.ID,
				"reason":    "shutdown",
			})
		}
		return
	}

	if hb.HeartbeatSec <= 0 {
		hb.HeartbeatSec = 5
	}
	wasConnected := known && existing.Connected
	p.frontends[hb.ID] = &FrontendState{
		ID:           hb.ID,
		LastSeen:     p.now(),
		HeartbeatSec: hb.HeartbeatSec,
		Connected:    true,
	}
	if !wasConnected {
		events.Emit("info", "client.connected", "", map[string]interface{}{
			"transport": "mqtt",
			"client_id": hb.ID,
			"reconnect": known,
		})
	}
}

// Start begins the background health check loop.
func (p *Presence) Start(checkInterval time.Duration) {
	p.wg.Add(1)
	go p.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (p *Presence) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Presence) healthCheckLoop(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

func (p *Presence) checkHealth() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for id, state := range p.frontends {
		if !state.Connected {
			continue
		}
		timeout := time.Duration(float64(state.HeartbeatSec)*p.tolerance) * time.Second
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false
			events.Emit("warn", "client.disconnected", "heartbeat timeout", map[string]interface{}{
				"transport":   "mqtt",
				"client_id":   id,
				"last_seen":   state.LastSeen.Format(time.RFC3339),
				"timeout_sec": timeout.Seconds(),
			})
		}
	}
}

// Get returns a copy of a front-end's state.
func (p *Presence) Get(id string) (FrontendState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if state, ok := p.frontends[id]; ok {
		return *state, true
	}
	return FrontendState{}, false
}

// Connected returns the ids of front-ends currently connected.
func (p *Presence) Connected() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []string
	for id, state := range p.frontends {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	return ids
}
