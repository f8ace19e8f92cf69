package engine

import (
	"strings"

	"github.com/AaronLay10/SentientStory/internal/layers"
	"github.com/AaronLay10/SentientStory/internal/memory"
	"github.com/AaronLay10/SentientStory/internal/story"
)

type layerOp struct {
	stack    string
	clear    bool
	index    int
	resource string
	image    layers.ImageAttrs
	audio    layers.AudioAttrs
}

type pendingEvent struct {
	level  string
	name   string
	msg    string
	fields map[string]interface{}
}

// txn stages the effects of one call. Nothing reaches the engine until
// commit; a failed walk discards the txn.
type txn struct {
	mem     *memory.Memory
	ops     []layerOp
	history []HistoryEntry
	events  []pendingEvent
	cursor  Cursor
	caption string
}

func (e *Engine) begin() *txn {
	return &txn{mem: e.mem.Clone(), cursor: e.cursor}
}

func (t *txn) event(level, name, msg string, fields map[string]interface{}) {
	t.events = append(t.events, pendingEvent{level: level, name: name, msg: msg, fields: fields})
}

func (t *txn) layer(op layerOp) {
	t.ops = append(t.ops, op)
	name := "layer.assigned"
	if op.clear {
		name = "layer.cleared"
	}
	t.event("info", name, "", map[string]interface{}{
		"stack":    op.stack,
		"index":    op.index,
		"resource": op.resource,
	})
}

func (t *txn) halt(nodeID string) {
	t.cursor = Cursor{NodeID: nodeID, State: Halted}
	t.event("info", "story.completed", "", map[string]interface{}{"node_id": nodeID})
}

// walk enters id and keeps going until a node that needs the player.
func (e *Engine) walk(t *txn, id string) error {
	for steps := 0; ; steps++ {
		if steps >= e.stepLimit {
			return &NodeError{NodeID: id, Err: &StepLimitError{Limit: e.stepLimit}}
		}
		n, _ := e.graph.Node(id)
		t.event("debug", "node.entered", "", map[string]interface{}{
			"node_id": n.ID,
			"kind":    string(n.Kind),
		})

		switch n.Kind {
		case story.KindStart:

		case story.KindText:
			content := t.mem.Interpolate(n.Text.Content)
			speaker := t.mem.Interpolate(n.Text.Speaker)
			t.history = append(t.history, HistoryEntry{Kind: EntryText, NodeID: n.ID, Speaker: speaker, Text: content})
			t.event("info", "text.shown", "", map[string]interface{}{
				"node_id": n.ID,
				"speaker": speaker,
				"text":    content,
			})
			next, ok := e.graph.Successor(n.ID)
			if ok {
				if nn, _ := e.graph.Node(next); nn.Kind == story.KindChoice {
					t.caption = n.ID
					id = next
					continue
				}
			}
			t.cursor = Cursor{NodeID: n.ID, State: AwaitingAdvance}
			return nil

		case story.KindChoice:
			visible, err := visibleOptions(t.mem, n.Choice)
			if err != nil {
				return &NodeError{NodeID: n.ID, Err: err}
			}
			if len(visible) == 0 {
				return &NodeError{NodeID: n.ID, Err: &NoVisibleChoiceError{}}
			}
			labels := make([]string, len(visible))
			for i, o := range visible {
				labels[i] = o.Label
			}
			t.cursor = Cursor{NodeID: n.ID, State: AwaitingChoice, Caption: t.caption}
			t.event("info", "choice.presented", t.mem.Interpolate(n.Choice.Question), map[string]interface{}{
				"node_id": n.ID,
				"options": labels,
			})
			return nil

		case story.KindImage:
			op := layerOp{stack: "image", index: n.Image.Layer}
			if n.Image.Clear {
				op.clear = true
			} else {
				op.resource = n.Image.Path
				op.image = layers.ImageAttrs{ZOrder: n.Image.ZOrder}
			}
			t.layer(op)

		case story.KindMusic:
			op := layerOp{stack: "audio", index: n.Music.Track}
			if n.Music.Clear {
				op.clear = true
			} else {
				op.resource = n.Music.Path
				op.audio = layers.AudioAttrs{Repeat: n.Music.Repeat, Volume: n.Music.Volume}
			}
			t.layer(op)

		case story.KindVariable:
			v, err := t.mem.Apply(n.Variable.Name, n.Variable.Operation, n.Variable.Value)
			if err != nil {
				return &NodeError{NodeID: n.ID, Err: err}
			}
			t.event("info", "variable.changed", "", map[string]interface{}{
				"node_id":   n.ID,
				"name":      n.Variable.Name,
				"operation": string(n.Variable.Operation),
				"value":     v.Any(),
			})

		case story.KindMassInit:
			if err := t.mem.MassInit(n.MassInit.Pairs); err != nil {
				return &NodeError{NodeID: n.ID, Err: err}
			}
			for _, p := range n.MassInit.Pairs {
				if p.Name == "" {
					continue
				}
				t.event("info", "variable.changed", "", map[string]interface{}{
					"node_id":   n.ID,
					"name":      p.Name,
					"operation": string(memory.OpSet),
					"value":     p.Value.Any(),
				})
			}

		case story.KindCondition:
			ok, err := t.mem.Evaluate(n.Condition.Test)
			if err != nil {
				return &NodeError{NodeID: n.ID, Err: err}
			}
			id, _ = e.graph.BranchTarget(n.ID, ok)
			continue
		}

		next, ok := e.graph.Successor(n.ID)
		if !ok {
			t.halt(n.ID)
			return nil
		}
		id = next
	}
}

// commit publishes a finished txn to the engine. Layer listeners and event
// subscribers see changes in the order the nodes were walked.
func (e *Engine) commit(t *txn) {
	e.mem = t.mem
	for _, op := range t.ops {
		switch op.stack {
		case "image":
			if op.clear {
				e.images.Clear(op.index)
			} else {
				_ = e.images.Assign(op.index, op.resource, op.image)
			}
		case "audio":
			if op.clear {
				e.audio.Clear(op.index)
			} else {
				_ = e.audio.Assign(op.index, op.resource, op.audio)
			}
		}
	}
	e.history = append(e.history, t.history...)
	e.cursor = t.cursor
	for _, ev := range t.events {
		e.emit(ev.level, ev.name, ev.msg, ev.fields)
	}
	e.notify(nil)
}

func optionVisible(m *memory.Memory, o story.Option) (bool, error) {
	if strings.TrimSpace(o.Visible) == "" {
		return true, nil
	}
	return m.EvaluateExpr(o.Visible)
}

// visibleOptions returns the options whose visibility condition holds,
// keeping their original indices.
func visibleOptions(m *memory.Memory, c *story.Choice) ([]ChoiceOption, error) {
	var out []ChoiceOption
	for i, o := range c.Options {
		ok, err := optionVisible(m, o)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ChoiceOption{Index: i, Label: m.Interpolate(o.Label)})
		}
	}
	return out, nil
}
