package engine

// EntryKind distinguishes scroll-back entries.
type EntryKind string

const (
	EntryText   EntryKind = "text"
	EntryChoice EntryKind = "choice"
)

// HistoryEntry is one line of scroll-back: a shown text or a made choice.
// Text is recorded as displayed, after interpolation.
type HistoryEntry struct {
	Kind    EntryKind `json:"kind"`
	NodeID  string    `json:"node_id"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text"`
	Index   int       `json:"index,omitempty"`
}
