package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AaronLay10/SentientStory/internal/storage/postgres"
)

const bufferSize = 256

var (
	buffer = newRing(bufferSize)

	// emitMu keeps buffer, broadcast and persistence order the same.
	emitMu sync.Mutex
)

var (
	pgClient *postgres.Client
	writer   *persister
	pgMu     sync.RWMutex
)

// SetPostgresClient sets the Postgres client for event persistence. Events
// are written by a background goroutine; passing nil stops it after the
// queued events are written.
func SetPostgresClient(client *postgres.Client) {
	var w *persister
	if client != nil {
		w = newPersister(client, persistQueueSize)
	}
	setWriter(client, w)
}

func setWriter(client *postgres.Client, w *persister) {
	pgMu.Lock()
	old := writer
	pgClient = client
	writer = w
	pgMu.Unlock()
	if old != nil {
		old.close()
	}
}

// PersistDropped returns how many events were not persisted because the
// write queue was full.
func PersistDropped() uint64 {
	pgMu.RLock()
	defer pgMu.RUnlock()
	if writer == nil {
		return 0
	}
	return writer.dropped.Load()
}

// GetPostgresClient returns the current Postgres client (for API queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

// Event is one structured log line. Seq numbers events in emission order.
type Event struct {
	Seq       uint64                 `json:"seq"`
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an allowlisted event, fans it out to subscribers and, when a
// Postgres client is set, queues it for persistence. A "session_id" string
// field is stored in its own column.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	emitMu.Lock()
	e = buffer.add(e)
	broadcast(e)
	pgMu.RLock()
	if writer != nil {
		writer.enqueue(ts, e)
	}
	pgMu.RUnlock()
	emitMu.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// Snapshot returns the buffered events, oldest first.
func Snapshot() []Event {
	return buffer.last(0, nil)
}

// TotalCount returns how many events were emitted since startup.
func TotalCount() uint64 {
	return buffer.total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.clear()
}
