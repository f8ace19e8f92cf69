package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 64

// Subscription receives emitted events whose names match its prefixes.
// C is closed by Unsubscribe and CloseAllSubscribers.
type Subscription struct {
	C <-chan Event

	ch       chan Event
	prefixes []string
	dropped  atomic.Uint64
}

// Dropped returns how many events were skipped because C was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

var (
	subsMu sync.RWMutex
	subs   = make(map[*Subscription]struct{})
)

// Subscribe registers a subscription for events starting with one of
// prefixes, or for every event when none are given.
func Subscribe(prefixes ...string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch, prefixes: prefixes}

	subsMu.Lock()
	subs[s] = struct{}{}
	subsMu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Repeated calls are no-ops.
func Unsubscribe(s *Subscription) {
	subsMu.Lock()
	defer subsMu.Unlock()
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.ch)
}

// broadcast hands e to every matching subscription without blocking.
func broadcast(e Event) {
	subsMu.RLock()
	defer subsMu.RUnlock()

	for s := range subs {
		if !Matches(e.Name, s.prefixes) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// CloseAllSubscribers removes and closes every subscription. Used on shutdown.
func CloseAllSubscribers() {
	subsMu.Lock()
	defer subsMu.Unlock()
	for s := range subs {
		close(s.ch)
	}
	subs = make(map[*Subscription]struct{})
}

// SubscriberCount returns the current number of subscriptions.
func SubscriberCount() int {
	subsMu.RLock()
	defer subsMu.RUnlock()
	return len(subs)
}

// RecentEvents returns up to n of the newest buffered events matching
// prefixes, oldest first. n <= 0 returns all of them.
func RecentEvents(n int, prefixes ...string) []Event {
	return buffer.last(n, prefixes)
}

// Matches reports whether name starts with one of prefixes. No prefixes
// matches everything.
func Matches(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
