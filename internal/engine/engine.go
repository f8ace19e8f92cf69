// Package engine walks a story graph under player input. The engine is a
// pull-based state machine: Advance and Choose apply the effects of the
// nodes they pass through and return the state the engine rests in.
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/layers"
	"github.com/AaronLay10/SentientStory/internal/memory"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// DefaultStepLimit bounds the nodes a single call may pass through.
const DefaultStepLimit = 10000

// Commit is delivered to observers after every call that changed the
// session. Err is set when the call halted the engine on an authoring error.
type Commit struct {
	Display Display
	State   SessionState
	Err     error
}

// Observer receives commits. Observers run inside the engine lock and must
// not call back into the engine.
type Observer func(Commit)

// Option configures an Engine.
type Option func(*Engine)

// WithStepLimit overrides DefaultStepLimit.
func WithStepLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.stepLimit = n
		}
	}
}

// WithSessionID sets the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// Engine owns the state of one play session. All public methods are safe
// for concurrent use; calls are serialized.
type Engine struct {
	mu sync.Mutex

	graph     *story.Graph
	sessionID string
	stepLimit int

	cursor     Cursor
	diagnostic string
	mem        *memory.Memory
	images     *layers.ImageStack
	audio      *layers.AudioStack
	history    []HistoryEntry

	observers []Observer
}

func newEngine(g *story.Graph, opts []Option) *Engine {
	e := &Engine{
		graph:     g,
		sessionID: uuid.NewString(),
		stepLimit: DefaultStepLimit,
		cursor:    Cursor{NodeID: g.Start().ID, State: AwaitingAdvance},
		mem:       memory.New(),
		images:    layers.NewImageStack(),
		audio:     layers.NewAudioStack(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New returns an engine positioned at the Start node of g.
func New(g *story.Graph, opts ...Option) *Engine {
	e := newEngine(g, opts)
	e.emit("info", "story.started", "", map[string]interface{}{
		"title": g.Title,
		"start": e.cursor.NodeID,
	})
	return e
}

// FromState returns an engine resumed from s.
func FromState(g *story.Graph, s SessionState, opts ...Option) (*Engine, error) {
	if err := s.Validate(g); err != nil {
		return nil, err
	}
	e := newEngine(g, opts)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.load(s); err != nil {
		return nil, err
	}
	return e, nil
}

// Graph returns the story being played.
func (e *Engine) Graph() *story.Graph {
	return e.graph
}

// SessionID identifies the play session in events and saves.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Observe registers o for every subsequent commit.
func (e *Engine) Observe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// SubscribeImages registers a listener on the image layer stack.
func (e *Engine) SubscribeImages(l layers.Listener[layers.ImageAttrs]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images.Subscribe(l)
}

// SubscribeAudio registers a listener on the audio track stack.
func (e *Engine) SubscribeAudio(l layers.Listener[layers.AudioAttrs]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audio.Subscribe(l)
}

// Cursor returns the current execution position.
func (e *Engine) Cursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor.State
}

// Diagnostic describes the authoring error that halted the engine, if any.
func (e *Engine) Diagnostic() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diagnostic
}

// Variable reads one variable.
func (e *Engine) Variable(name string) (memory.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Get(name)
}

// Variables returns a copy of every variable.
func (e *Engine) Variables() map[string]memory.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Snapshot()
}

// Images returns the occupied image layers ordered by index.
func (e *Engine) Images() []layers.ImageEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images.Snapshot()
}

// Audio returns the occupied audio tracks ordered by index.
func (e *Engine) Audio() []layers.AudioEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio.Snapshot()
}

// History returns a copy of the scroll-back buffer, oldest first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// Advance moves past the node the engine rests on.
func (e *Engine) Advance() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.cursor.State {
	case Halted:
		return Halted, &EngineHaltedError{NodeID: e.cursor.NodeID, Diagnostic: e.diagnostic}
	case AwaitingChoice:
		return e.cursor.State, &StateError{Op: "advance", State: e.cursor.State}
	}

	t := e.begin()
	next, ok := e.graph.Successor(e.cursor.NodeID)
	if !ok {
		t.halt(e.cursor.NodeID)
	} else if err := e.walk(t, next); err != nil {
		return e.fail(err)
	}
	e.commit(t)
	return e.cursor.State, nil
}

// Choose selects option index (0-based, counting hidden options) of the
// pending choice. Out-of-range and hidden options are rejected without
// changing any state.
func (e *Engine) Choose(index int) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.cursor.State {
	case Halted:
		return Halted, &EngineHaltedError{NodeID: e.cursor.NodeID, Diagnostic: e.diagnostic}
	case AwaitingAdvance:
		return e.cursor.State, &StateError{Op: "choose", State: e.cursor.State}
	}

	n, _ := e.graph.Node(e.cursor.NodeID)
	options := n.Choice.Options
	if index < 0 || index >= len(options) {
		return e.cursor.State, &InvalidChoiceError{NodeID: n.ID, Index: index, Reason: "out of range"}
	}
	visible, err := optionVisible(e.mem, options[index])
	if err != nil {
		return e.fail(&NodeError{NodeID: n.ID, Err: err})
	}
	if !visible {
		return e.cursor.State, &InvalidChoiceError{NodeID: n.ID, Index: index, Reason: "hidden"}
	}

	t := e.begin()
	label := t.mem.Interpolate(options[index].Label)
	t.history = append(t.history, HistoryEntry{Kind: EntryChoice, NodeID: n.ID, Text: label, Index: index})
	t.event("info", "choice.made", "", map[string]interface{}{
		"node_id": n.ID,
		"index":   index,
		"label":   label,
	})

	target, _ := e.graph.ChoiceTarget(n.ID, index)
	if err := e.walk(t, target); err != nil {
		return e.fail(err)
	}
	e.commit(t)
	return e.cursor.State, nil
}

// NewGame clears variables, layers and history and returns to Start.
func (e *Engine) NewGame() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessionID = uuid.NewString()
	e.mem.Clear()
	e.images.ClearAll()
	e.audio.ClearAll()
	e.history = nil
	e.diagnostic = ""
	e.cursor = Cursor{NodeID: e.graph.Start().ID, State: AwaitingAdvance}
	e.emit("info", "story.started", "", map[string]interface{}{
		"title": e.graph.Title,
		"start": e.cursor.NodeID,
	})
	e.notify(nil)
}

// Export returns a deep copy of the session state.
func (e *Engine) Export() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.export()
}

// Load replaces the whole session with s. Nothing changes if s does not
// validate against the engine's story.
func (e *Engine) Load(s SessionState) error {
	if err := s.Validate(e.graph); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.load(s); err != nil {
		return err
	}
	e.notify(nil)
	return nil
}

func (e *Engine) export() SessionState {
	return SessionState{
		SessionID:  e.sessionID,
		Cursor:     e.cursor,
		Diagnostic: e.diagnostic,
		Variables:  e.mem.Snapshot(),
		Images:     e.images.Snapshot(),
		Audio:      e.audio.Snapshot(),
		History:    append([]HistoryEntry(nil), e.history...),
	}
}

// load replaces the whole session with s. Nothing changes unless every
// layer entry is valid.
func (e *Engine) load(s SessionState) error {
	s = s.Clone()
	if err := layers.ValidateEntries(s.Images); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := layers.ValidateEntries(s.Audio); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := e.images.Restore(s.Images); err != nil {
		return err
	}
	if err := e.audio.Restore(s.Audio); err != nil {
		return err
	}
	if s.SessionID != "" {
		e.sessionID = s.SessionID
	}
	e.cursor = s.Cursor
	e.diagnostic = s.Diagnostic
	e.mem.Restore(s.Variables)
	e.history = s.History
	e.emit("info", "session.restored", "", map[string]interface{}{
		"node_id": e.cursor.NodeID,
		"state":   string(e.cursor.State),
	})
	return nil
}

// fail halts the engine in place: the staged transaction is dropped, so
// the cursor, memory and layers keep their values from before the call.
func (e *Engine) fail(err error) (State, error) {
	e.cursor.State = Halted
	e.diagnostic = err.Error()
	e.emit("error", "story.error", err.Error(), map[string]interface{}{
		"node_id": e.cursor.NodeID,
	})
	e.notify(err)
	return Halted, err
}

func (e *Engine) notify(err error) {
	if len(e.observers) == 0 {
		return
	}
	c := Commit{Display: e.display(), State: e.export(), Err: err}
	for _, o := range e.observers {
		o(c)
	}
}

func (e *Engine) emit(level, name, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["session_id"] = e.sessionID
	_, _ = events.Emit(level, name, msg, fields)
}
