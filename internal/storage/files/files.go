// Package files stores save slots as JSON files in a directory, one
// save_slot_N.json per slot with its description in save_slot_N.info.json.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientStory/internal/storage"
)

const (
	filePrefix = "save_slot_"
	dataSuffix = ".json"
	infoSuffix = ".info.json"
)

// Store is a directory of save files.
type Store struct {
	dir string
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) dataPath(slot int) string {
	return filepath.Join(s.dir, filePrefix+strconv.Itoa(slot)+dataSuffix)
}

func (s *Store) infoPath(slot int) string {
	return filepath.Join(s.dir, filePrefix+strconv.Itoa(slot)+infoSuffix)
}

// Put writes the save and its description. Each file is replaced atomically.
func (s *Store) Put(_ context.Context, info storage.SlotInfo, data []byte) error {
	meta, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode slot info: %w", err)
	}
	if err := writeFile(s.dataPath(info.Slot), data); err != nil {
		return err
	}
	return writeFile(s.infoPath(info.Slot), meta)
}

// Get returns the save in slot, or storage.ErrNotFound.
func (s *Store) Get(_ context.Context, slot int) ([]byte, error) {
	data, err := os.ReadFile(s.dataPath(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %d: %w", slot, err)
	}
	return data, nil
}

// List describes the occupied slots ordered by slot. A slot whose info file
// is missing or unreadable is listed with its number and size only.
func (s *Store) List(_ context.Context) ([]storage.SlotInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read save dir: %w", err)
	}

	var out []storage.SlotInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || strings.HasSuffix(name, infoSuffix) {
			continue
		}
		slot, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), dataSuffix))
		if err != nil || !strings.HasSuffix(name, dataSuffix) {
			continue
		}

		info := storage.SlotInfo{Slot: slot}
		if meta, err := os.ReadFile(s.infoPath(slot)); err == nil {
			_ = json.Unmarshal(meta, &info)
			info.Slot = slot
		}
		if fi, err := entry.Info(); err == nil {
			info.Size = int(fi.Size())
			if info.CreatedAt.IsZero() {
				info.CreatedAt = fi.ModTime().UTC()
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

// Delete removes the slot's files, or returns storage.ErrNotFound.
func (s *Store) Delete(_ context.Context, slot int) error {
	err := os.Remove(s.dataPath(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	if err := os.Remove(s.infoPath(slot)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete slot %d info: %w", slot, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
