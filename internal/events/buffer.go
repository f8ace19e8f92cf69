package events

import "sync"

// ring keeps the newest events in emission order and numbers every event
// it has seen.
type ring struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
	seq    uint64
}

func newRing(size int) *ring {
	return &ring{events: make([]Event, size)}
}

// add stamps e with the next sequence number and stores it, overwriting
// the oldest event once full.
func (r *ring) add(e Event) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	return e
}

// last returns up to n of the newest events whose names match prefixes,
// oldest first. n <= 0 returns every match.
func (r *ring) last(n int, prefixes []string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := r.events[:r.next]
	if r.full {
		ordered = append(append([]Event{}, r.events[r.next:]...), r.events[:r.next]...)
	}
	out := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		if Matches(e.Name, prefixes) {
			out = append(out, e)
		}
	}
	if n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}

// clear drops the stored events. Numbering continues.
func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = make([]Event, len(r.events))
	r.next = 0
	r.full = false
}

func (r *ring) total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
