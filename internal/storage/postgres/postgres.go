package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Story     string                 `json:"story"`
	SessionID *string                `json:"session_id,omitempty"`
}

// Config holds connection settings. Empty fields fall back to the
// standard PG* environment variables.
type Config struct {
	Host     string
	Port     string
	User     string
	Database string
	Password string
	SSLMode  string
}

// DSN returns the lib/pq connection string for c.
func (c Config) DSN() string {
	host := firstNonEmpty(c.Host, os.Getenv("PGHOST"), "127.0.0.1")
	port := firstNonEmpty(c.Port, os.Getenv("PGPORT"), "5432")
	user := firstNonEmpty(c.User, os.Getenv("PGUSER"), "storyplayer")
	dbname := firstNonEmpty(c.Database, os.Getenv("PGDATABASE"), "storyplayer")
	sslmode := firstNonEmpty(c.SSLMode, os.Getenv("PGSSLMODE"), "disable")
	password := firstNonEmpty(c.Password, os.Getenv("PGPASSWORD"))

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode)
}

// Client manages the Postgres connection for event storage and save slots
// of one story.
type Client struct {
	db    *sql.DB
	story string

	mu          sync.Mutex
	errorLogged bool
}

// New connects and creates the tables if needed.
func New(cfg Config, story string) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:    db,
		story: story,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS story_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			story      TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_story_events_ts ON story_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_story_events_story ON story_events(story);

		CREATE TABLE IF NOT EXISTS save_slots (
			story       TEXT NOT NULL,
			slot        INTEGER NOT NULL,
			id          TEXT NOT NULL,
			label       TEXT,
			story_title TEXT,
			node_id     TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			data        BYTEA NOT NULL,
			PRIMARY KEY (story, slot)
		);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
// Returns error if insert fails.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO story_events (ts, level, event, msg, fields, story, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.story, sessionPtr)
	return err
}

// Query returns the last N events from the database in descending order by timestamp.
func (c *Client) Query(limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, story, session_id
		FROM story_events
		WHERE story = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.story, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Story, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged records that an append failure was reported. It returns
// true only for the first call, so callers report once.
func (c *Client) MarkErrorLogged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errorLogged {
		return false
	}
	c.errorLogged = true
	return true
}
