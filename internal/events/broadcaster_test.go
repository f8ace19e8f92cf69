package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e := <-s.C:
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for broadcast event")
		return Event{}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()

	sub1 := Subscribe()
	sub2 := Subscribe("choice.")
	if SubscriberCount() != initial+2 {
		t.Errorf("expected %d subscribers, got %d", initial+2, SubscriberCount())
	}

	Unsubscribe(sub1)
	Unsubscribe(sub1)
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after unsubscribe, got %d", initial+1, SubscriberCount())
	}

	Unsubscribe(sub2)
	if _, ok := <-sub2.C; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers after all unsubscribed, got %d", initial, SubscriberCount())
	}
}

func TestBroadcastHonorsPrefixes(t *testing.T) {
	all := Subscribe()
	choices := Subscribe("choice.", "story.")
	defer Unsubscribe(all)
	defer Unsubscribe(choices)

	Emit("info", "node.entered", "", map[string]interface{}{"node_id": "hello"})
	Emit("info", "choice.made", "", map[string]interface{}{"node_id": "ask"})

	if e := receive(t, all); e.Name != "node.entered" {
		t.Errorf("all: expected 'node.entered', got '%s'", e.Name)
	}
	if e := receive(t, all); e.Name != "choice.made" {
		t.Errorf("all: expected 'choice.made', got '%s'", e.Name)
	}
	e := receive(t, choices)
	if e.Name != "choice.made" || e.Fields["node_id"] != "ask" {
		t.Errorf("filtered: unexpected event %+v", e)
	}
}

func TestBroadcastDropsForSlowSubscriber(t *testing.T) {
	sub := Subscribe("variable.")
	defer Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+3; i++ {
		Emit("info", "variable.changed", "", map[string]interface{}{"i": i})
	}
	if sub.Dropped() != 3 {
		t.Errorf("expected 3 dropped events, got %d", sub.Dropped())
	}
	if e := receive(t, sub); e.Fields["i"] != 0 {
		t.Errorf("expected the oldest event first, got %v", e.Fields["i"])
	}
}

func TestSequenceFollowsEmissionOrder(t *testing.T) {
	sub := Subscribe("text.")
	defer Unsubscribe(sub)

	Emit("info", "text.shown", "", nil)
	Emit("info", "text.shown", "", nil)

	first, second := receive(t, sub), receive(t, sub)
	if first.Seq == 0 || second.Seq != first.Seq+1 {
		t.Errorf("expected consecutive sequence numbers, got %d and %d", first.Seq, second.Seq)
	}
	if TotalCount() < second.Seq {
		t.Errorf("total %d behind last sequence %d", TotalCount(), second.Seq)
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "node.entered", "", map[string]interface{}{"i": i})
	}
	Emit("info", "layer.assigned", "", nil)

	recent := RecentEvents(5, "node.")
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	if all := RecentEvents(100); len(all) != 11 {
		t.Errorf("expected 11 events when requesting 100, got %d", len(all))
	}
	if zero := RecentEvents(0, "layer."); len(zero) != 1 {
		t.Errorf("expected 1 layer event, got %d", len(zero))
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()

	subs := []*Subscription{Subscribe(), Subscribe(), Subscribe("save.")}
	if SubscriberCount() != 3 {
		t.Errorf("expected 3 subscribers, got %d", SubscriberCount())
	}

	CloseAllSubscribers()

	for i, s := range subs {
		if _, ok := <-s.C; ok {
			t.Errorf("subscriber %d: expected closed channel", i)
		}
	}
	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", SubscriberCount())
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		prefixes []string
		want     bool
	}{
		{"choice.made", nil, true},
		{"choice.made", []string{"choice."}, true},
		{"choice.made", []string{"layer.", "choice"}, true},
		{"choice.made", []string{"layer."}, false},
	}
	for _, tt := range tests {
		if got := Matches(tt.name, tt.prefixes); got != tt.want {
			t.Errorf("Matches(%q, %v) = %v, want %v", tt.name, tt.prefixes, got, tt.want)
		}
	}
}
