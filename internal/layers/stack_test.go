package layers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestImageLayersSuperpose(t *testing.T) {
	s := NewImageStack()

	if err := s.Assign(2, "fg.png", ImageAttrs{ZOrder: 5}); err != nil {
		t.Fatalf("assign layer 2: %v", err)
	}
	if err := s.Assign(1, "bg.png", ImageAttrs{ZOrder: 1}); err != nil {
		t.Fatalf("assign layer 1: %v", err)
	}

	want := []ImageEntry{
		{Index: 1, Resource: "bg.png", Attrs: ImageAttrs{ZOrder: 1}},
		{Index: 2, Resource: "fg.png", Attrs: ImageAttrs{ZOrder: 5}},
	}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	s.Clear(2)
	slot, ok := s.Get(1)
	if !ok || slot.Resource != "bg.png" || slot.Attrs.ZOrder != 1 {
		t.Errorf("layer 1 affected by clearing layer 2: %+v, %v", slot, ok)
	}
	if _, ok := s.Get(2); ok {
		t.Error("expected layer 2 to be empty")
	}
}

func TestAssignReplacesSameSlot(t *testing.T) {
	s := NewAudioStack()
	s.Assign(0, "theme.ogg", AudioAttrs{Repeat: true, Volume: 1})
	s.Assign(0, "battle.ogg", AudioAttrs{Repeat: false, Volume: 0.5})

	if s.Len() != 1 {
		t.Fatalf("expected 1 track, got %d", s.Len())
	}
	slot, _ := s.Get(0)
	if slot.Resource != "battle.ogg" || slot.Attrs.Repeat {
		t.Errorf("unexpected slot: %+v", slot)
	}
}

func TestAssignRejectsEmptyResource(t *testing.T) {
	s := NewImageStack()
	if err := s.Assign(0, "", ImageAttrs{}); err == nil {
		t.Error("expected error for empty resource")
	}
	if s.Len() != 0 {
		t.Error("failed assign must not occupy the slot")
	}
}

func TestNotificationPerCall(t *testing.T) {
	s := NewImageStack()
	var got []Change[ImageAttrs]
	s.Subscribe(func(c Change[ImageAttrs]) { got = append(got, c) })

	s.Assign(0, "a.png", ImageAttrs{})
	s.Clear(3)
	s.Restore([]ImageEntry{{Index: 4, Resource: "b.png"}, {Index: -1, Resource: "c.png"}})
	s.ClearAll()

	ops := make([]ChangeOp, len(got))
	for i, c := range got {
		ops[i] = c.Op
	}
	if diff := cmp.Diff([]ChangeOp{OpAssign, OpClear, OpRestore, OpClearAll}, ops); diff != "" {
		t.Errorf("notification ops (-want +got):\n%s", diff)
	}
	if got[1].Index != 3 {
		t.Errorf("expected clear notification for slot 3, got %d", got[1].Index)
	}
	if len(got[2].Entries) != 2 || got[2].Entries[0].Index != -1 {
		t.Errorf("restore notification should carry the ordered slot set, got %+v", got[2].Entries)
	}
}

func TestRestoreReplacesWholesale(t *testing.T) {
	s := NewImageStack()
	s.Assign(0, "old.png", ImageAttrs{})
	s.Assign(1, "old2.png", ImageAttrs{})

	if err := s.Restore([]ImageEntry{{Index: 5, Resource: "new.png", Attrs: ImageAttrs{ZOrder: 5}}}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 layer after restore, got %d", s.Len())
	}
	if _, ok := s.Get(0); ok {
		t.Error("restore kept a previous occupant")
	}
}

func TestRestoreRejectsDuplicates(t *testing.T) {
	s := NewImageStack()
	s.Assign(0, "keep.png", ImageAttrs{})

	err := s.Restore([]ImageEntry{{Index: 1, Resource: "a.png"}, {Index: 1, Resource: "b.png"}})
	if err == nil {
		t.Fatal("expected duplicate index error")
	}
	if slot, ok := s.Get(0); !ok || slot.Resource != "keep.png" {
		t.Error("failed restore must leave the stack unchanged")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewImageStack()
	s.Assign(0, "a.png", ImageAttrs{})
	snap := s.Snapshot()

	s.Assign(0, "b.png", ImageAttrs{})
	if snap[0].Resource != "a.png" {
		t.Errorf("snapshot aliased live slot: %s", snap[0].Resource)
	}
}

func TestByZOrder(t *testing.T) {
	entries := []ImageEntry{
		{Index: 0, Resource: "top.png", Attrs: ImageAttrs{ZOrder: 10}},
		{Index: 1, Resource: "bottom.png", Attrs: ImageAttrs{ZOrder: -2}},
		{Index: 2, Resource: "mid.png", Attrs: ImageAttrs{ZOrder: 3}},
	}
	got := ByZOrder(entries)
	names := []string{got[0].Resource, got[1].Resource, got[2].Resource}
	if diff := cmp.Diff([]string{"bottom.png", "mid.png", "top.png"}, names); diff != "" {
		t.Errorf("z order (-want +got):\n%s", diff)
	}
	if entries[0].Resource != "top.png" {
		t.Error("ByZOrder must not reorder its input")
	}
}
