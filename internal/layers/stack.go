// Package layers provides addressable presentation slots: a z-ordered
// image layer stack and an audio track stack. Stacks hold only which
// resource occupies which slot; rendering and playback belong to the
// presentation layer, which observes changes through listeners.
package layers

import (
	"fmt"
	"sort"
)

// ChangeOp identifies the stack call that produced a Change.
type ChangeOp string

const (
	OpAssign   ChangeOp = "assign"
	OpClear    ChangeOp = "clear"
	OpClearAll ChangeOp = "clear_all"
	OpRestore  ChangeOp = "restore"
)

// Slot is the occupant of one slot.
type Slot[A any] struct {
	Resource string `json:"resource"`
	Attrs    A      `json:"attrs"`
}

// Entry is an occupied slot together with its index.
type Entry[A any] struct {
	Index    int    `json:"index"`
	Resource string `json:"resource"`
	Attrs    A      `json:"attrs"`
}

// Change is delivered to listeners once per mutating call.
// Entries holds the assigned slot for OpAssign and the full new slot set
// for OpRestore; it is empty for clears.
type Change[A any] struct {
	Stack   string     `json:"stack"`
	Op      ChangeOp   `json:"op"`
	Index   int        `json:"index"`
	Entries []Entry[A] `json:"entries,omitempty"`
}

// Listener receives change notifications. Listeners run synchronously
// inside the mutating call and must not call back into the stack.
type Listener[A any] func(Change[A])

// Stack is a set of addressable slots. It is not safe for concurrent use;
// the owning engine serializes access.
type Stack[A any] struct {
	name      string
	slots     map[int]Slot[A]
	listeners []Listener[A]
}

// NewStack creates an empty stack. name labels its change notifications.
func NewStack[A any](name string) *Stack[A] {
	return &Stack[A]{
		name:  name,
		slots: make(map[int]Slot[A]),
	}
}

// Name returns the stack label.
func (s *Stack[A]) Name() string {
	return s.name
}

// Subscribe registers a listener for every subsequent change.
func (s *Stack[A]) Subscribe(l Listener[A]) {
	s.listeners = append(s.listeners, l)
}

// Assign replaces whatever occupies index. Other slots are not affected.
func (s *Stack[A]) Assign(index int, resource string, attrs A) error {
	if resource == "" {
		return fmt.Errorf("%s slot %d: empty resource", s.name, index)
	}
	s.slots[index] = Slot[A]{Resource: resource, Attrs: attrs}
	s.notify(Change[A]{
		Stack:   s.name,
		Op:      OpAssign,
		Index:   index,
		Entries: []Entry[A]{{Index: index, Resource: resource, Attrs: attrs}},
	})
	return nil
}

// Clear empties index. Clearing an empty slot is not an error.
func (s *Stack[A]) Clear(index int) {
	delete(s.slots, index)
	s.notify(Change[A]{Stack: s.name, Op: OpClear, Index: index})
}

// ClearAll empties every slot.
func (s *Stack[A]) ClearAll() {
	s.slots = make(map[int]Slot[A])
	s.notify(Change[A]{Stack: s.name, Op: OpClearAll})
}

// Get returns the occupant of index.
func (s *Stack[A]) Get(index int) (Slot[A], bool) {
	slot, ok := s.slots[index]
	return slot, ok
}

// Len returns the number of occupied slots.
func (s *Stack[A]) Len() int {
	return len(s.slots)
}

// Snapshot returns every occupied slot ordered by index.
func (s *Stack[A]) Snapshot() []Entry[A] {
	out := make([]Entry[A], 0, len(s.slots))
	for idx, slot := range s.slots {
		out = append(out, Entry[A]{Index: idx, Resource: slot.Resource, Attrs: slot.Attrs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Restore replaces the entire slot set, discarding current occupants.
// The stack is left unchanged if entries are invalid.
func (s *Stack[A]) Restore(entries []Entry[A]) error {
	if err := ValidateEntries(entries); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	slots := make(map[int]Slot[A], len(entries))
	for _, e := range entries {
		slots[e.Index] = Slot[A]{Resource: e.Resource, Attrs: e.Attrs}
	}
	s.slots = slots
	s.notify(Change[A]{Stack: s.name, Op: OpRestore, Entries: s.Snapshot()})
	return nil
}

// ValidateEntries checks that entries name each index at most once and
// carry a resource.
func ValidateEntries[A any](entries []Entry[A]) error {
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Resource == "" {
			return fmt.Errorf("slot %d: empty resource", e.Index)
		}
		if seen[e.Index] {
			return fmt.Errorf("slot %d listed twice", e.Index)
		}
		seen[e.Index] = true
	}
	return nil
}

// CloneEntries returns an independent copy of entries.
func CloneEntries[A any](entries []Entry[A]) []Entry[A] {
	if entries == nil {
		return nil
	}
	out := make([]Entry[A], len(entries))
	copy(out, entries)
	return out
}

func (s *Stack[A]) notify(c Change[A]) {
	for _, l := range s.listeners {
		l(c)
	}
}
