package events

import (
	"sync/atomic"
	"time"
)

// persistQueueSize bounds the events waiting for the database. Emit never
// waits for Postgres; once the queue is full further events are counted
// and skipped.
const persistQueueSize = 1024

// appender is the part of the Postgres client the writer needs.
type appender interface {
	Append(ts time.Time, level, name, msg string, fields map[string]interface{}, sessionID string) error
	MarkErrorLogged() bool
}

type persistRecord struct {
	ts    time.Time
	event Event
}

// persister writes events to an appender from a single goroutine, in
// emission order.
type persister struct {
	dst     appender
	queue   chan persistRecord
	done    chan struct{}
	dropped atomic.Uint64
}

func newPersister(dst appender, size int) *persister {
	p := &persister{
		dst:   dst,
		queue: make(chan persistRecord, size),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) enqueue(ts time.Time, e Event) {
	select {
	case p.queue <- persistRecord{ts: ts, event: e}:
	default:
		p.dropped.Add(1)
	}
}

// close stops accepting events and waits for the queue to drain.
func (p *persister) close() {
	close(p.queue)
	<-p.done
}

func (p *persister) run() {
	defer close(p.done)
	for r := range p.queue {
		e := r.event
		sessionID, _ := e.Fields["session_id"].(string)
		err := p.dst.Append(r.ts, e.Level, e.Name, e.Message, e.Fields, sessionID)
		if err == nil || !p.dst.MarkErrorLogged() {
			continue
		}
		// Not through Emit: that would queue another write to the
		// failing database.
		emitMu.Lock()
		broadcast(buffer.add(Event{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     "error",
			Name:      "system.error",
			Message:   "postgres append failed",
			Fields: map[string]interface{}{
				"error": err.Error(),
			},
		}))
		emitMu.Unlock()
	}
}
