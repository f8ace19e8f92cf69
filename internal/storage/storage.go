// Package storage holds the types shared by the save-slot backends.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a slot holds no save.
var ErrNotFound = errors.New("save slot is empty")

// SlotInfo describes the save held in a slot without decoding it.
type SlotInfo struct {
	Slot       int       `json:"slot"`
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	StoryTitle string    `json:"story_title,omitempty"`
	NodeID     string    `json:"node_id"`
	CreatedAt  time.Time `json:"created_at"`
	Size       int       `json:"size"`
}
