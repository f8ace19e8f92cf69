package save

import (
	"context"
	"errors"
	"fmt"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/storage"
)

// DefaultMaxSlots is the number of slots: slot 0 is the auto-save, the
// rest are manual.
const DefaultMaxSlots = 4

// AutoSaveSlot receives automatic saves.
const AutoSaveSlot = 0

// Store persists encoded saves by slot.
type Store interface {
	Put(ctx context.Context, info storage.SlotInfo, data []byte) error
	Get(ctx context.Context, slot int) ([]byte, error)
	List(ctx context.Context) ([]storage.SlotInfo, error)
	Delete(ctx context.Context, slot int) error
	Close() error
}

// Manager saves and loads snapshots in numbered slots.
type Manager struct {
	store    Store
	maxSlots int
	onPut    func(slot int, err error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxSlots overrides DefaultMaxSlots.
func WithMaxSlots(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxSlots = n
		}
	}
}

// WithPutHook calls fn after every write attempt with its outcome.
func WithPutHook(fn func(slot int, err error)) ManagerOption {
	return func(m *Manager) {
		m.onPut = fn
	}
}

// NewManager returns a Manager over store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, maxSlots: DefaultMaxSlots}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxSlots returns the number of usable slots.
func (m *Manager) MaxSlots() int {
	return m.maxSlots
}

func (m *Manager) checkSlot(slot int) error {
	if slot < 0 || slot >= m.maxSlots {
		return &SlotError{Slot: slot, Reason: fmt.Sprintf("out of range [0, %d)", m.maxSlots)}
	}
	return nil
}

// Save snapshots e into slot, replacing any previous save there.
func (m *Manager) Save(ctx context.Context, e *engine.Engine, slot int, label string) (Snapshot, error) {
	if err := m.checkSlot(slot); err != nil {
		return Snapshot{}, err
	}
	return m.put(ctx, Take(e, slot, label))
}

// SaveState stores an already exported state. Used from engine observers,
// which must not call back into the engine.
func (m *Manager) SaveState(ctx context.Context, state engine.SessionState, slot int, label, title string) (Snapshot, error) {
	if err := m.checkSlot(slot); err != nil {
		return Snapshot{}, err
	}
	return m.put(ctx, FromState(state, slot, label, title))
}

func (m *Manager) put(ctx context.Context, s Snapshot) (Snapshot, error) {
	out, err := m.write(ctx, s)
	if m.onPut != nil {
		m.onPut(s.Slot, err)
	}
	return out, err
}

func (m *Manager) write(ctx context.Context, s Snapshot) (Snapshot, error) {
	data, err := Marshal(s)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode save: %w", err)
	}
	info := storage.SlotInfo{
		Slot:       s.Slot,
		ID:         s.ID,
		Label:      s.Label,
		StoryTitle: s.StoryTitle,
		NodeID:     s.State.Cursor.NodeID,
		CreatedAt:  s.CreatedAt,
		Size:       len(data),
	}
	if err := m.store.Put(ctx, info, data); err != nil {
		return Snapshot{}, fmt.Errorf("write slot %d: %w", s.Slot, err)
	}
	events.Emit("info", "save.created", "", map[string]interface{}{
		"session_id": s.State.SessionID,
		"slot":       s.Slot,
		"save_id":    s.ID,
		"node_id":    info.NodeID,
	})
	return s, nil
}

// Load reads and decodes the save in slot.
func (m *Manager) Load(ctx context.Context, slot int) (Snapshot, error) {
	if err := m.checkSlot(slot); err != nil {
		return Snapshot{}, err
	}
	data, err := m.store.Get(ctx, slot)
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, &SlotError{Slot: slot, Reason: "empty"}
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read slot %d: %w", slot, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		var cse *CorruptSaveError
		if errors.As(err, &cse) {
			cse.Slot = slot
		}
		events.Emit("warn", "save.corrupt", err.Error(), map[string]interface{}{"slot": slot})
		return Snapshot{}, err
	}
	s.Slot = slot
	return s, nil
}

// Restore loads slot into e. On any failure e is left untouched.
func (m *Manager) Restore(ctx context.Context, e *engine.Engine, slot int) (Snapshot, error) {
	s, err := m.Load(ctx, slot)
	if err != nil {
		return Snapshot{}, err
	}
	if err := Apply(e, s); err != nil {
		events.Emit("warn", "save.corrupt", err.Error(), map[string]interface{}{"slot": slot})
		return Snapshot{}, err
	}
	events.Emit("info", "save.loaded", "", map[string]interface{}{
		"session_id": s.State.SessionID,
		"slot":       slot,
		"save_id":    s.ID,
	})
	return s, nil
}

// List describes every occupied slot, ordered by slot.
func (m *Manager) List(ctx context.Context) ([]storage.SlotInfo, error) {
	return m.store.List(ctx)
}

// Delete empties slot. Deleting an empty slot is a SlotError.
func (m *Manager) Delete(ctx context.Context, slot int) error {
	if err := m.checkSlot(slot); err != nil {
		return err
	}
	err := m.store.Delete(ctx, slot)
	if errors.Is(err, storage.ErrNotFound) {
		return &SlotError{Slot: slot, Reason: "empty"}
	}
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	events.Emit("info", "save.deleted", "", map[string]interface{}{"slot": slot})
	return nil
}

// AutoSave snapshots e into AutoSaveSlot.
func (m *Manager) AutoSave(ctx context.Context, e *engine.Engine) (Snapshot, error) {
	return m.Save(ctx, e, AutoSaveSlot, "Auto-save")
}

// AutoSaver returns an engine observer that writes every successful commit
// to AutoSaveSlot. Failures are reported as system.error events.
func (m *Manager) AutoSaver(ctx context.Context, title string) engine.Observer {
	return func(c engine.Commit) {
		if c.Err != nil {
			return
		}
		if _, err := m.SaveState(ctx, c.State, AutoSaveSlot, "Auto-save", title); err != nil {
			events.Emit("error", "system.error", "auto-save failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
