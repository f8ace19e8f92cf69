package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AaronLay10/SentientStory/internal/storage"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "saves")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s, dir
}

func TestPutWritesSlotFiles(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestStore(t)

	created := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	if err := s.Put(ctx, storage.SlotInfo{Slot: 2, ID: "01X", Label: "cellar", NodeID: "door", CreatedAt: created}, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "save_slot_2.json")); err != nil {
		t.Fatalf("expected save_slot_2.json: %v", err)
	}

	got, err := s.Get(ctx, 2)
	if err != nil || string(got) != `{"v":1}` {
		t.Fatalf("get: %q, %v", got, err)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 slot, got %+v", infos)
	}
	if infos[0].Slot != 2 || infos[0].Label != "cellar" || infos[0].NodeID != "door" || !infos[0].CreatedAt.Equal(created) {
		t.Errorf("unexpected info: %+v", infos[0])
	}
	if infos[0].Size != 7 {
		t.Errorf("expected size 7, got %d", infos[0].Size)
	}
}

func TestListIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestStore(t)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "save_slot_abc.json"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "save_slot_1.json"), []byte("{}"), 0o644)
	s.Put(ctx, storage.SlotInfo{Slot: 0, ID: "a", NodeID: "n", CreatedAt: time.Now()}, []byte("{}"))

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Slot != 0 || infos[1].Slot != 1 {
		t.Errorf("unexpected listing: %+v", infos)
	}
	if infos[1].CreatedAt.IsZero() {
		t.Error("slot without info file should fall back to the file time")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestStore(t)

	if err := s.Delete(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	s.Put(ctx, storage.SlotInfo{Slot: 1, ID: "a", NodeID: "n", CreatedAt: time.Now()}, []byte("{}"))
	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "save_slot_1.info.json")); !os.IsNotExist(err) {
		t.Error("expected info file removed")
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
