package engine

import (
	"github.com/AaronLay10/SentientStory/internal/layers"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// TextView is a line of dialogue as the presentation layer should show it.
type TextView struct {
	NodeID         string `json:"node_id"`
	Speaker        string `json:"speaker,omitempty"`
	Content        string `json:"content"`
	CharacterImage string `json:"character_image,omitempty"`
}

// ChoiceOption is a visible option. Index is the value to pass to Choose.
type ChoiceOption struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// ChoiceView is a pending choice with its visible options.
type ChoiceView struct {
	Question string         `json:"question,omitempty"`
	Caption  *TextView      `json:"caption,omitempty"`
	Options  []ChoiceOption `json:"options"`
}

// Display is the view model for the current position. Image entries are in
// drawing order; asset paths are resolved against the project directory.
type Display struct {
	State      State               `json:"state"`
	NodeID     string              `json:"node_id"`
	Kind       story.Kind          `json:"kind"`
	Text       *TextView           `json:"text,omitempty"`
	Choice     *ChoiceView         `json:"choice,omitempty"`
	Images     []layers.ImageEntry `json:"images"`
	Audio      []layers.AudioEntry `json:"audio"`
	Diagnostic string              `json:"diagnostic,omitempty"`
}

// Labels returns the labels of the visible options.
func (v *ChoiceView) Labels() []string {
	out := make([]string, len(v.Options))
	for i, o := range v.Options {
		out[i] = o.Label
	}
	return out
}

// Display returns the view model for the current position.
func (e *Engine) Display() Display {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.display()
}

func (e *Engine) display() Display {
	d := Display{
		State:      e.cursor.State,
		NodeID:     e.cursor.NodeID,
		Images:     layers.ByZOrder(e.images.Snapshot()),
		Audio:      e.audio.Snapshot(),
		Diagnostic: e.diagnostic,
	}
	for i := range d.Images {
		d.Images[i].Resource = e.graph.ResolveAsset(d.Images[i].Resource)
	}
	for i := range d.Audio {
		d.Audio[i].Resource = e.graph.ResolveAsset(d.Audio[i].Resource)
	}

	n, ok := e.graph.Node(e.cursor.NodeID)
	if !ok {
		return d
	}
	d.Kind = n.Kind
	switch n.Kind {
	case story.KindText:
		d.Text = e.textView(n)
	case story.KindChoice:
		cv := &ChoiceView{Question: e.mem.Interpolate(n.Choice.Question)}
		if c, ok := e.graph.Node(e.cursor.Caption); ok && c.Kind == story.KindText {
			cv.Caption = e.textView(c)
		}
		// Visibility was checked when the choice was entered and memory
		// cannot change while it is pending.
		cv.Options, _ = visibleOptions(e.mem, n.Choice)
		if cv.Options == nil {
			cv.Options = []ChoiceOption{}
		}
		d.Choice = cv
	}
	return d
}

func (e *Engine) textView(n *story.Node) *TextView {
	return &TextView{
		NodeID:         n.ID,
		Speaker:        e.mem.Interpolate(n.Text.Speaker),
		Content:        e.mem.Interpolate(n.Text.Content),
		CharacterImage: e.graph.ResolveAsset(n.Text.CharacterImage),
	}
}
