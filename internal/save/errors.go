package save

import "fmt"

// CorruptSaveError reports a save that failed structural validation. The
// slot is unusable; other slots and the live session are unaffected.
type CorruptSaveError struct {
	Slot   int
	Reason string
	Err    error
}

func (e *CorruptSaveError) Error() string {
	msg := "corrupt save"
	if e.Slot >= 0 {
		msg = fmt.Sprintf("corrupt save in slot %d", e.Slot)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Reason, e.Err)
	}
	return msg + ": " + e.Reason
}

func (e *CorruptSaveError) Unwrap() error {
	return e.Err
}

// SlotError reports a slot number outside the configured range or an
// empty slot.
type SlotError struct {
	Slot   int
	Reason string
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("save slot %d: %s", e.Slot, e.Reason)
}
