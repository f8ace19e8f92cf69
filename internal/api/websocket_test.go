package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientStory/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	events.Clear()

	for i := 0; i < 5; i++ {
		events.Emit("info", "node.entered", "", map[string]interface{}{"i": i})
	}

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "")
	defer conn.Close()

	for i := 0; i < 5; i++ {
		e := readEvent(t, conn)
		if e.Name != "node.entered" {
			t.Errorf("expected 'node.entered', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	events.Clear()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "")
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "choice.made", "", map[string]interface{}{"node_id": "ask"})
	}()

	e := readEvent(t, conn)
	if e.Name != "choice.made" {
		t.Errorf("expected 'choice.made', got '%s'", e.Name)
	}
	if e.Fields["node_id"] != "ask" {
		t.Errorf("expected node_id 'ask', got '%v'", e.Fields["node_id"])
	}
}

func TestWebSocketFiltersByPrefix(t *testing.T) {
	events.Clear()

	events.Emit("info", "node.entered", "", nil)
	events.Emit("info", "layer.assigned", "", map[string]interface{}{"stack": "image"})

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "?only=layer.,choice.")
	defer conn.Close()

	if e := readEvent(t, conn); e.Name != "layer.assigned" {
		t.Fatalf("expected replayed 'layer.assigned', got '%s'", e.Name)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "text.shown", "", nil)
		events.Emit("info", "choice.presented", "", nil)
	}()

	if e := readEvent(t, conn); e.Name != "choice.presented" {
		t.Errorf("expected 'choice.presented', got '%s'", e.Name)
	}
}

func TestWebSocketRecentZeroSkipsReplay(t *testing.T) {
	events.Clear()

	events.Emit("info", "node.entered", "", nil)

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "?recent=0")
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "story.completed", "", nil)
	}()

	if e := readEvent(t, conn); e.Name != "story.completed" {
		t.Errorf("expected only the live event, got '%s'", e.Name)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "")

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.Emit("info", "node.entered", "", map[string]interface{}{"test": "cleanup"})
	}()
	if e := readEvent(t, conn); e.Name != "node.entered" {
		t.Errorf("expected 'node.entered', got '%s'", e.Name)
	}

	conn.Close()

	// Emit events to trigger the subscriber goroutine to notice the close
	for i := 0; i < 5; i++ {
		events.Emit("info", "node.entered", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	events.Clear()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn1 := dialEvents(t, server, "")
	defer conn1.Close()
	conn2 := dialEvents(t, server, "")
	defer conn2.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "story.completed", "", map[string]interface{}{"node_id": "bye"})
	}()

	if e := readEvent(t, conn1); e.Name != "story.completed" {
		t.Errorf("client1: expected 'story.completed', got '%s'", e.Name)
	}
	if e := readEvent(t, conn2); e.Name != "story.completed" {
		t.Errorf("client2: expected 'story.completed', got '%s'", e.Name)
	}
}
