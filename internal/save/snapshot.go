// Package save captures and restores complete play sessions. A Snapshot is
// a deep copy of engine state; Manager persists snapshots in numbered slots
// through a Store backend.
package save

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// Version is the save format version written by Marshal.
const Version = 1

// Snapshot is a self-contained copy of one session.
type Snapshot struct {
	Version    int                 `json:"version"`
	ID         string              `json:"id"`
	Slot       int                 `json:"slot"`
	Label      string              `json:"label,omitempty"`
	StoryTitle string              `json:"story_title,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	State      engine.SessionState `json:"state"`
}

// Take copies the state of e.
func Take(e *engine.Engine, slot int, label string) Snapshot {
	return FromState(e.Export(), slot, label, e.Graph().Title)
}

// FromState wraps an exported session state. state is copied.
func FromState(state engine.SessionState, slot int, label, title string) Snapshot {
	return Snapshot{
		Version:    Version,
		ID:         ulid.Make().String(),
		Slot:       slot,
		Label:      label,
		StoryTitle: title,
		CreatedAt:  time.Now().UTC(),
		State:      state.Clone(),
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.State = s.State.Clone()
	return out
}

// Restore builds a new engine positioned at the snapshot's cursor.
func Restore(g *story.Graph, s Snapshot, opts ...engine.Option) (*engine.Engine, error) {
	e, err := engine.FromState(g, s.State, opts...)
	if err != nil {
		return nil, &CorruptSaveError{Slot: s.Slot, Reason: "does not match story", Err: err}
	}
	return e, nil
}

// Apply replaces the session of e with s, keeping e's listeners.
func Apply(e *engine.Engine, s Snapshot) error {
	if err := e.Load(s.State); err != nil {
		return &CorruptSaveError{Slot: s.Slot, Reason: "does not match story", Err: err}
	}
	return nil
}

// Marshal encodes s.
func Marshal(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Unmarshal decodes and structurally validates a save. Checks that need the
// story happen in Restore and Apply.
func Unmarshal(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, &CorruptSaveError{Slot: -1, Reason: "invalid JSON", Err: err}
	}
	if s.Version != Version {
		return Snapshot{}, &CorruptSaveError{Slot: s.Slot, Reason: "unsupported version"}
	}
	if s.ID == "" {
		return Snapshot{}, &CorruptSaveError{Slot: s.Slot, Reason: "missing id"}
	}
	if err := s.State.Check(); err != nil {
		return Snapshot{}, &CorruptSaveError{Slot: s.Slot, Reason: "invalid state", Err: err}
	}
	return s, nil
}
