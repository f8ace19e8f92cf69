package engine

import (
	"fmt"

	"github.com/AaronLay10/SentientStory/internal/layers"
	"github.com/AaronLay10/SentientStory/internal/memory"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// State is the engine's position in its state machine.
type State string

const (
	AwaitingAdvance State = "awaiting_advance"
	AwaitingChoice  State = "awaiting_choice"
	Halted          State = "halted"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case AwaitingAdvance, AwaitingChoice, Halted:
		return true
	}
	return false
}

// Cursor is the execution position. Caption names the Text node shown
// together with a pending choice.
type Cursor struct {
	NodeID  string `json:"node_id"`
	State   State  `json:"state"`
	Caption string `json:"caption,omitempty"`
}

// SessionState is the complete state of a play session. Values returned by
// Export share nothing with the live engine.
type SessionState struct {
	SessionID  string                  `json:"session_id"`
	Cursor     Cursor                  `json:"cursor"`
	Diagnostic string                  `json:"diagnostic,omitempty"`
	Variables  map[string]memory.Value `json:"variables"`
	Images     []layers.ImageEntry     `json:"images"`
	Audio      []layers.AudioEntry     `json:"audio"`
	History    []HistoryEntry          `json:"history"`
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	out := s
	out.Variables = make(map[string]memory.Value, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	out.Images = layers.CloneEntries(s.Images)
	out.Audio = layers.CloneEntries(s.Audio)
	out.History = append([]HistoryEntry(nil), s.History...)
	return out
}

// Check validates the parts of s that do not depend on a story: cursor,
// values, layer entries and history kinds.
func (s SessionState) Check() error {
	if s.Cursor.NodeID == "" {
		return fmt.Errorf("empty cursor")
	}
	if !s.Cursor.State.Valid() {
		return fmt.Errorf("unknown state %q", s.Cursor.State)
	}
	for name, v := range s.Variables {
		if !v.IsValid() {
			return fmt.Errorf("variable %s: invalid value", name)
		}
	}
	if err := layers.ValidateEntries(s.Images); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := layers.ValidateEntries(s.Audio); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	for i, h := range s.History {
		if h.Kind != EntryText && h.Kind != EntryChoice {
			return fmt.Errorf("history %d: unknown kind %q", i, h.Kind)
		}
	}
	return nil
}

// Validate checks s against g: on top of Check, the cursor must name a node
// of a kind the engine can rest on.
func (s SessionState) Validate(g *story.Graph) error {
	if err := s.Check(); err != nil {
		return err
	}
	n, ok := g.Node(s.Cursor.NodeID)
	if !ok {
		return fmt.Errorf("cursor node %s not in story", s.Cursor.NodeID)
	}
	switch s.Cursor.State {
	case AwaitingChoice:
		if n.Kind != story.KindChoice {
			return fmt.Errorf("state %s at %s node %s", s.Cursor.State, n.Kind, n.ID)
		}
	case AwaitingAdvance:
		if n.Kind != story.KindStart && n.Kind != story.KindText {
			return fmt.Errorf("state %s at %s node %s", s.Cursor.State, n.Kind, n.ID)
		}
	}
	if s.Cursor.Caption != "" {
		c, ok := g.Node(s.Cursor.Caption)
		if !ok || c.Kind != story.KindText {
			return fmt.Errorf("caption %s is not a text node", s.Cursor.Caption)
		}
	}
	return nil
}
