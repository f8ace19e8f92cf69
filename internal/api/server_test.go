package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/save"
	"github.com/AaronLay10/SentientStory/internal/storage/files"
	"github.com/AaronLay10/SentientStory/internal/story"
)

const serverStory = `{
	"title": "Crossroads",
	"nodes": {
		"start": {"type": "flow.start"},
		"init": {"type": "massinit.massinit", "data": {"variables": [{"name": "key", "value": 0}]}},
		"hello": {"type": "text.text", "data": {"speaker": "Guide", "content": "Pick a road"}},
		"pick": {"type": "choice.choice", "data": {"choices": [{"text": "North"}, {"text": "Secret", "condition": "key == 1"}, {"text": "Check"}]}},
		"check": {"type": "condition.condition", "data": {"variable": "missing", "operator": ">", "value": 1}},
		"bye": {"type": "text.text", "data": {"content": "Farewell"}}
	},
	"connections": [
		{"from_node": "start", "from_port": "output", "to_node": "init"},
		{"from_node": "init", "from_port": "output", "to_node": "hello"},
		{"from_node": "hello", "from_port": "output", "to_node": "pick"},
		{"from_node": "pick", "from_port": "output_0", "to_node": "bye"},
		{"from_node": "pick", "from_port": "output_1", "to_node": "bye"},
		{"from_node": "pick", "from_port": "output_2", "to_node": "check"},
		{"from_node": "check", "from_port": "output_true", "to_node": "bye"},
		{"from_node": "check", "from_port": "output_false", "to_node": "bye"}
	]
}`

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	auth = nil
	root := t.TempDir()
	g, err := story.Parse([]byte(serverStory), root)
	if err != nil {
		t.Fatalf("parse story: %v", err)
	}
	store, err := files.Open(filepath.Join(root, "saves"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	e := engine.New(g)
	return NewServer(e, save.NewManager(store)), e
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decodeAction(t *testing.T, w *httptest.ResponseRecorder) ActionResponse {
	t.Helper()
	var resp ActionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func TestAdvanceAndChoose(t *testing.T) {
	s, e := newTestServer(t)

	w := do(t, s, "POST", "/advance", "")
	if w.Code != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d", w.Code)
	}
	resp := decodeAction(t, w)
	if !resp.OK || resp.Display == nil || resp.Display.Choice == nil {
		t.Fatalf("expected a pending choice, got %+v", resp)
	}
	labels := resp.Display.Choice.Labels()
	if len(labels) != 2 || labels[0] != "North" || labels[1] != "Check" {
		t.Errorf("hidden option shown: %v", labels)
	}
	if resp.Display.Choice.Options[1].Index != 2 {
		t.Errorf("visible option should keep its index, got %+v", resp.Display.Choice.Options)
	}

	w = do(t, s, "POST", "/choose", `{"index": 0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("choose: expected 200, got %d", w.Code)
	}
	if e.Cursor().NodeID != "bye" {
		t.Errorf("expected cursor at bye, got %s", e.Cursor().NodeID)
	}

	w = do(t, s, "GET", "/history", "")
	var history []engine.HistoryEntry
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(history) != 3 || history[1].Kind != engine.EntryChoice {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestActionErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  []string
		method string
		path   string
		body   string
		want   int
	}{
		{"choose while awaiting advance", nil, "POST", "/choose", `{"index": 0}`, http.StatusConflict},
		{"advance while awaiting choice", []string{"/advance"}, "POST", "/advance", "", http.StatusConflict},
		{"hidden option", []string{"/advance"}, "POST", "/choose", `{"index": 1}`, http.StatusBadRequest},
		{"out of range", []string{"/advance"}, "POST", "/choose", `{"index": 7}`, http.StatusBadRequest},
		{"missing index", []string{"/advance"}, "POST", "/choose", `{}`, http.StatusBadRequest},
		{"bad json", nil, "POST", "/choose", `{`, http.StatusBadRequest},
		{"authoring error", []string{"/advance"}, "POST", "/choose", `{"index": 2}`, http.StatusUnprocessableEntity},
		{"wrong method", nil, "GET", "/advance", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			for _, p := range tt.setup {
				do(t, s, "POST", p, "")
			}
			w := do(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestHaltedEngineAnswersConflict(t *testing.T) {
	s, e := newTestServer(t)
	do(t, s, "POST", "/advance", "")
	do(t, s, "POST", "/choose", `{"index": 2}`)
	if e.State() != engine.Halted {
		t.Fatalf("expected halted engine, got %s", e.State())
	}

	w := do(t, s, "POST", "/advance", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
	resp := decodeAction(t, w)
	if resp.Display == nil || resp.Display.Diagnostic == "" {
		t.Errorf("expected diagnostic in display, got %+v", resp.Display)
	}

	w = do(t, s, "POST", "/new", "")
	if w.Code != http.StatusOK || e.State() != engine.AwaitingAdvance {
		t.Errorf("new game: status %d, state %s", w.Code, e.State())
	}
}

func TestSaveLoadDelete(t *testing.T) {
	s, e := newTestServer(t)
	do(t, s, "POST", "/advance", "")

	w := do(t, s, "POST", "/saves", `{"slot": 1, "label": "at the crossroads"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("save: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	do(t, s, "POST", "/choose", `{"index": 0}`)

	w = do(t, s, "GET", "/saves", "")
	var list SavesResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode saves: %v", err)
	}
	if list.MaxSlots != save.DefaultMaxSlots || len(list.Slots) != 1 || list.Slots[0].NodeID != "pick" {
		t.Errorf("unexpected listing: %+v", list)
	}

	w = do(t, s, "POST", "/saves/load", `{"slot": 1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if e.Cursor().NodeID != "pick" {
		t.Errorf("expected restored cursor at pick, got %s", e.Cursor().NodeID)
	}

	if w := do(t, s, "DELETE", "/saves/1", ""); w.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", w.Code)
	}
	if w := do(t, s, "POST", "/saves/load", `{"slot": 1}`); w.Code != http.StatusNotFound {
		t.Errorf("load deleted slot: expected 404, got %d", w.Code)
	}
	if w := do(t, s, "POST", "/saves", `{"slot": 9}`); w.Code != http.StatusBadRequest {
		t.Errorf("save out of range: expected 400, got %d", w.Code)
	}
	if w := do(t, s, "DELETE", "/saves/x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("delete non-numeric slot: expected 400, got %d", w.Code)
	}
}

func TestCorruptSaveIsUnprocessable(t *testing.T) {
	root := t.TempDir()
	g, err := story.Parse([]byte(serverStory), root)
	if err != nil {
		t.Fatalf("parse story: %v", err)
	}
	dir := filepath.Join(root, "saves")
	store, err := files.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "save_slot_2.json"), []byte("{garbage"), 0644); err != nil {
		t.Fatalf("write corrupt save: %v", err)
	}

	e := engine.New(g)
	s := NewServer(e, save.NewManager(store))
	before := e.Export()

	w := do(t, s, "POST", "/saves/load", `{"slot": 2}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", w.Code)
	}
	if e.Cursor() != before.Cursor {
		t.Errorf("corrupt load moved the session: %+v", e.Cursor())
	}
}

func TestSavesDisabled(t *testing.T) {
	g, err := story.Parse([]byte(serverStory), "")
	if err != nil {
		t.Fatalf("parse story: %v", err)
	}
	s := NewServer(engine.New(g), nil)

	if w := do(t, s, "GET", "/saves", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	s, _ := newTestServer(t)
	setAuth(t, bothRoles())

	r := httptest.NewRequest("DELETE", "/saves/1", nil)
	r.SetBasicAuth("player", "plsecret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, "GET", "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"storyplayer_uptime_seconds", "storyplayer_story_nodes", `story="Crossroads"`, "storyplayer_events_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestAssetHandlerStaysInRoot(t *testing.T) {
	s, e := newTestServer(t)
	root := e.Graph().AssetRoot
	if err := os.WriteFile(filepath.Join(root, "bg.png"), []byte("png"), 0644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	if w := do(t, s, "GET", "/assets?path="+filepath.Join(root, "bg.png"), ""); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w := do(t, s, "GET", "/assets?path="+filepath.Join(root, "..", "etc"), ""); w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		story       bool
		mqtt        bool
		mqttOpt     bool
		pg          bool
		pgOpt       bool
		wantCode    int
		wantMQTTMsg string
	}{
		{"all ready", true, true, false, true, false, http.StatusOK, "ok"},
		{"no story", false, true, false, true, false, http.StatusServiceUnavailable, "ok"},
		{"optional mqtt down", true, false, true, true, false, http.StatusOK, "unavailable"},
		{"required mqtt down", true, false, false, true, false, http.StatusServiceUnavailable, "not_ready"},
		{"optional postgres down", true, true, false, false, true, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetStoryLoaded(tt.story)
			SetMQTTStatus(tt.mqtt, tt.mqttOpt)
			SetPostgresStatus(tt.pg, tt.pgOpt)
			t.Cleanup(func() {
				SetStoryLoaded(false)
				SetMQTTStatus(false, true)
				SetPostgresStatus(false, true)
			})

			w := httptest.NewRecorder()
			readyHandler(w, httptest.NewRequest("GET", "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != (tt.wantCode == http.StatusOK) {
				t.Errorf("ready = %v", resp.Ready)
			}
			if resp.Checks["mqtt"].Status != tt.wantMQTTMsg {
				t.Errorf("mqtt status = %q, want %q", resp.Checks["mqtt"].Status, tt.wantMQTTMsg)
			}
			if !resp.Ready && resp.NotReadyMsg == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}
