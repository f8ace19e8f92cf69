package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/save"
	"github.com/AaronLay10/SentientStory/internal/storage"
)

// Server exposes one play session over HTTP.
type Server struct {
	engine *engine.Engine
	saves  *save.Manager
	mux    *http.ServeMux
	tls    *tls.Config
}

// NewServer builds the routes for e. saves may be nil, in which case the
// save endpoints answer 503.
func NewServer(e *engine.Engine, saves *save.Manager) *Server {
	s := &Server{
		engine: e,
		saves:  saves,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", healthHandler)
	s.mux.HandleFunc("GET /ready", readyHandler)
	s.mux.HandleFunc("GET /metrics", s.metricsHandler)

	s.mux.HandleFunc("GET /{$}", RequireAnyRole(uiHandler))
	s.mux.HandleFunc("GET /assets", RequireAnyRole(s.assetHandler))
	s.mux.HandleFunc("GET /events", RequireAnyRole(eventsHandler))
	s.mux.HandleFunc("GET /ws", RequireAnyRole(wsEventsHandler))

	s.mux.HandleFunc("GET /display", RequireAnyRole(s.displayHandler))
	s.mux.HandleFunc("GET /history", RequireAnyRole(s.historyHandler))
	s.mux.HandleFunc("POST /advance", RequireAnyRole(s.advanceHandler))
	s.mux.HandleFunc("POST /choose", RequireAnyRole(s.chooseHandler))
	s.mux.HandleFunc("POST /new", RequireAnyRole(s.newGameHandler))

	s.mux.HandleFunc("GET /saves", RequireAnyRole(s.listSavesHandler))
	s.mux.HandleFunc("POST /saves", RequireAnyRole(s.saveHandler))
	s.mux.HandleFunc("POST /saves/load", RequireAnyRole(s.loadSaveHandler))
	s.mux.HandleFunc("DELETE /saves/{slot}", RequireAdmin(s.deleteSaveHandler))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "storyplayer",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

// ActionResponse answers every request that drives the session. Display
// is the state after the request, also on failure.
type ActionResponse struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Display *engine.Display `json:"display,omitempty"`
}

type ChooseRequest struct {
	Index *int `json:"index"`
}

type SaveRequest struct {
	Slot  *int   `json:"slot"`
	Label string `json:"label"`
}

type SaveResponse struct {
	OK    bool              `json:"ok"`
	Error string            `json:"error,omitempty"`
	Save  *storage.SlotInfo `json:"save,omitempty"`
}

type SavesResponse struct {
	MaxSlots int                `json:"max_slots"`
	Slots    []storage.SlotInfo `json:"slots"`
}

func (s *Server) displayHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Display())
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	h := s.engine.History()
	if h == nil {
		h = []engine.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	emitInput("advance", nil)
	_, err := s.engine.Advance()
	s.respondAction(w, err)
}

func (s *Server) chooseHandler(w http.ResponseWriter, r *http.Request) {
	var req ChooseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "invalid JSON"})
		return
	}
	if req.Index == nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "index required"})
		return
	}
	emitInput("choose", req.Index)
	_, err := s.engine.Choose(*req.Index)
	s.respondAction(w, err)
}

func (s *Server) newGameHandler(w http.ResponseWriter, r *http.Request) {
	emitInput("new", nil)
	s.engine.NewGame()
	s.respondAction(w, nil)
}

func (s *Server) respondAction(w http.ResponseWriter, err error) {
	d := s.engine.Display()
	resp := ActionResponse{OK: err == nil, Display: &d}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) listSavesHandler(w http.ResponseWriter, r *http.Request) {
	if s.saves == nil {
		writeJSON(w, http.StatusServiceUnavailable, SaveResponse{Error: "saves disabled"})
		return
	}
	infos, err := s.saves.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, SaveResponse{Error: err.Error()})
		return
	}
	if infos == nil {
		infos = []storage.SlotInfo{}
	}
	writeJSON(w, http.StatusOK, SavesResponse{MaxSlots: s.saves.MaxSlots(), Slots: infos})
}

func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	if s.saves == nil {
		writeJSON(w, http.StatusServiceUnavailable, SaveResponse{Error: "saves disabled"})
		return
	}
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SaveResponse{Error: "invalid JSON"})
		return
	}
	if req.Slot == nil {
		writeJSON(w, http.StatusBadRequest, SaveResponse{Error: "slot required"})
		return
	}

	snap, err := s.saves.Save(r.Context(), s.engine, *req.Slot, req.Label)
	if err != nil {
		writeJSON(w, statusFor(err), SaveResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, SaveResponse{OK: true, Save: &storage.SlotInfo{
		Slot:       snap.Slot,
		ID:         snap.ID,
		Label:      snap.Label,
		StoryTitle: snap.StoryTitle,
		NodeID:     snap.State.Cursor.NodeID,
		CreatedAt:  snap.CreatedAt,
	}})
}

func (s *Server) loadSaveHandler(w http.ResponseWriter, r *http.Request) {
	if s.saves == nil {
		writeJSON(w, http.StatusServiceUnavailable, ActionResponse{Error: "saves disabled"})
		return
	}
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "invalid JSON"})
		return
	}
	if req.Slot == nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "slot required"})
		return
	}
	_, err := s.saves.Restore(r.Context(), s.engine, *req.Slot)
	s.respondAction(w, err)
}

func (s *Server) deleteSaveHandler(w http.ResponseWriter, r *http.Request) {
	if s.saves == nil {
		writeJSON(w, http.StatusServiceUnavailable, SaveResponse{Error: "saves disabled"})
		return
	}
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SaveResponse{Error: "slot must be a number"})
		return
	}
	if err := s.saves.Delete(r.Context(), slot); err != nil {
		writeJSON(w, statusFor(err), SaveResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{OK: true})
}

// statusFor maps engine and save errors to HTTP status codes.
func statusFor(err error) int {
	var (
		invalid *engine.InvalidChoiceError
		state   *engine.StateError
		halted  *engine.EngineHaltedError
		node    *engine.NodeError
		slot    *save.SlotError
		corrupt *save.CorruptSaveError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &state), errors.As(err, &halted):
		return http.StatusConflict
	case errors.As(err, &node):
		return http.StatusUnprocessableEntity
	case errors.As(err, &slot):
		if slot.Reason == "empty" {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.As(err, &corrupt):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func emitInput(action string, index *int) {
	fields := map[string]interface{}{
		"transport": "http",
		"action":    action,
	}
	if index != nil {
		fields["index"] = *index
	}
	events.Emit("info", "client.input", "", fields)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves s on port until ctx is done. TLS is used after a
// successful UseTLS.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		TLSConfig:         s.tls,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("api shutdown: %v", err)
		}
	}()

	var err error
	if srv.TLSConfig != nil {
		log.Printf("API listening on %s (TLS)\n", srv.Addr)
		err = srv.ListenAndServeTLS("", "")
	} else {
		log.Printf("API listening on %s\n", srv.Addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
