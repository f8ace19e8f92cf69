package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientStory/internal/events"
)

const (
	// recent events replayed on connect unless ?recent=n says otherwise
	defaultRecentEvents = 50

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // must be less than pongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// front-ends are served from anywhere on the local network
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// parseFilter reads ?only=choice.,layer. into event name prefixes.
func parseFilter(r *http.Request) []string {
	only := r.URL.Query().Get("only")
	if only == "" {
		return nil
	}
	return strings.Split(only, ",")
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// wsEventsHandler streams events to a presentation front-end or a
// debugging console.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	recent := defaultRecentEvents
	if n, err := strconv.Atoi(r.URL.Query().Get("recent")); err == nil && n >= 0 {
		recent = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	sub := events.Subscribe(filter...)
	closeAll := func() {
		events.Unsubscribe(sub)
		conn.Close()
	}

	// live events already sent during replay are skipped by sequence
	var sent uint64
	if recent > 0 {
		for _, e := range events.RecentEvents(recent, filter...) {
			sent = e.Seq
			if err := writeEvent(conn, e); err != nil {
				log.Printf("ws write recent event failed: %v", err)
				closeAll()
				return
			}
		}
	}

	// reader: pongs and close frames
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			closeAll()
			return

		case e, ok := <-sub.C:
			if !ok {
				conn.Close()
				return
			}
			if e.Seq <= sent {
				continue
			}
			if err := writeEvent(conn, e); err != nil {
				log.Printf("ws write event failed: %v", err)
				closeAll()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				closeAll()
				return
			}
		}
	}
}
