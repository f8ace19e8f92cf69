// Package sqlite stores save slots in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/SentientStory/internal/storage"
)

// Store keeps the save slots of one story. Several stories may share a
// database file; each is addressed by its story key.
type Store struct {
	db    *sql.DB
	story string
}

// Open opens or creates the database at dbPath.
func Open(dbPath, story string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db, story: story}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS save_slots (
		story       TEXT NOT NULL,
		slot        INTEGER NOT NULL,
		id          TEXT NOT NULL,
		label       TEXT,
		story_title TEXT,
		node_id     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		data        BLOB NOT NULL,
		PRIMARY KEY (story, slot)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put writes data into info.Slot, replacing any previous save.
func (s *Store) Put(ctx context.Context, info storage.SlotInfo, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO save_slots (story, slot, id, label, story_title, node_id, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(story, slot) DO UPDATE SET
			id = excluded.id,
			label = excluded.label,
			story_title = excluded.story_title,
			node_id = excluded.node_id,
			created_at = excluded.created_at,
			data = excluded.data`,
		s.story, info.Slot, info.ID, info.Label, info.StoryTitle, info.NodeID,
		info.CreatedAt.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("put slot %d: %w", info.Slot, err)
	}
	return nil
}

// Get returns the encoded save in slot, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, slot int) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM save_slots WHERE story = ? AND slot = ?`, s.story, slot).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", slot, err)
	}
	return data, nil
}

// List describes the occupied slots ordered by slot.
func (s *Store) List(ctx context.Context) ([]storage.SlotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot, id, label, story_title, node_id, created_at, length(data)
		FROM save_slots WHERE story = ? ORDER BY slot`, s.story)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var out []storage.SlotInfo
	for rows.Next() {
		var info storage.SlotInfo
		var label, title sql.NullString
		var created string
		if err := rows.Scan(&info.Slot, &info.ID, &label, &title, &info.NodeID, &created, &info.Size); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		info.Label = label.String
		info.StoryTitle = title.String
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("slot %d: bad created_at %q: %w", info.Slot, created, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete empties slot, or returns storage.ErrNotFound.
func (s *Store) Delete(ctx context.Context, slot int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM save_slots WHERE story = ? AND slot = ?`, s.story, slot)
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
