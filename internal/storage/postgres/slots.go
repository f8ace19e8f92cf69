package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AaronLay10/SentientStory/internal/storage"
)

// Put writes data into info.Slot, replacing any previous save.
func (c *Client) Put(ctx context.Context, info storage.SlotInfo, data []byte) error {
	query := `
		INSERT INTO save_slots (story, slot, id, label, story_title, node_id, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (story, slot) DO UPDATE SET
			id = EXCLUDED.id,
			label = EXCLUDED.label,
			story_title = EXCLUDED.story_title,
			node_id = EXCLUDED.node_id,
			created_at = EXCLUDED.created_at,
			data = EXCLUDED.data
	`
	_, err := c.db.ExecContext(ctx, query, c.story, info.Slot, info.ID, info.Label, info.StoryTitle,
		info.NodeID, info.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("put slot %d: %w", info.Slot, err)
	}
	return nil
}

// Get returns the save in slot, or storage.ErrNotFound.
func (c *Client) Get(ctx context.Context, slot int) ([]byte, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM save_slots WHERE story = $1 AND slot = $2`, c.story, slot).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", slot, err)
	}
	return data, nil
}

// List describes the occupied slots ordered by slot.
func (c *Client) List(ctx context.Context) ([]storage.SlotInfo, error) {
	query := `
		SELECT slot, id, label, story_title, node_id, created_at, octet_length(data)
		FROM save_slots
		WHERE story = $1
		ORDER BY slot
	`
	rows, err := c.db.QueryContext(ctx, query, c.story)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var out []storage.SlotInfo
	for rows.Next() {
		var info storage.SlotInfo
		var label, title sql.NullString
		if err := rows.Scan(&info.Slot, &info.ID, &label, &title, &info.NodeID, &info.CreatedAt, &info.Size); err != nil {
			return nil, err
		}
		info.Label = label.String
		info.StoryTitle = title.String
		info.CreatedAt = info.CreatedAt.UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete empties slot, or returns storage.ErrNotFound.
func (c *Client) Delete(ctx context.Context, slot int) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM save_slots WHERE story = $1 AND slot = $2`, c.story, slot)
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
