// Package story models the story graph authored in the Creator: nodes,
// the directed edges between them and project metadata. A Graph is built
// once by Load or Parse and is read-only afterwards.
package story

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientStory/internal/memory"
)

// Kind is the closed set of node kinds the runtime understands.
type Kind string

const (
	KindStart     Kind = "start"
	KindText      Kind = "text"
	KindChoice    Kind = "choice"
	KindImage     Kind = "image"
	KindMusic     Kind = "music"
	KindVariable  Kind = "variable"
	KindCondition Kind = "condition"
	KindMassInit  Kind = "massinit"
)

// MaxChoices is the largest number of options a Choice node may offer.
const MaxChoices = 4

// Output ports.
const (
	PortOutput = "output"
	PortTrue   = "output_true"
	PortFalse  = "output_false"
	PortInput  = "input"
)

// ChoicePort returns the output port bound to choice index i.
func ChoicePort(i int) string {
	return "output_" + strconv.Itoa(i)
}

// Node is a graph vertex. Exactly one payload pointer, the one matching
// Kind, is set; Start nodes carry none.
type Node struct {
	ID   string
	Kind Kind
	// Type is the type name as written by the Creator, e.g. "text.text".
	Type string
	X, Y float64

	Text      *Text
	Choice    *Choice
	Image     *Image
	Music     *Music
	Variable  *Variable
	Condition *Condition
	MassInit  *MassInit
}

// Text shows a line of dialogue or narration.
type Text struct {
	Content        string
	Speaker        string
	CharacterImage string
}

// Option is one selectable label of a Choice node. A non-empty Visible
// expression hides the option unless it evaluates to true.
type Option struct {
	Label   string
	Visible string
}

// Choice presents up to MaxChoices options.
type Choice struct {
	Question string
	Options  []Option
}

// Image places or clears an image on a layer.
type Image struct {
	Path   string
	Layer  int
	ZOrder int
	Clear  bool
}

// Music starts or stops audio on a track.
type Music struct {
	Path   string
	Track  int
	Repeat bool
	Volume float64
	Clear  bool
}

// Variable mutates one variable.
type Variable struct {
	Name      string
	Operation memory.Operation
	Value     memory.Value
}

// Condition branches on a comparison.
type Condition struct {
	Test memory.Condition
}

// MassInit writes a batch of variables at once.
type MassInit struct {
	Pairs []memory.Pair
}

// Edge is a directed connection out of a node port.
type Edge struct {
	From   string
	Port   string
	To     string
	ToPort string
}

// ChoiceIndex returns the choice index bound to the edge, if any.
func (e Edge) ChoiceIndex() (int, bool) {
	rest, ok := strings.CutPrefix(e.Port, "output_")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Branch returns the boolean branch bound to the edge, if any.
func (e Edge) Branch() (bool, bool) {
	switch e.Port {
	case PortTrue:
		return true, true
	case PortFalse:
		return false, true
	}
	return false, false
}

func portRank(port string) int {
	switch port {
	case PortOutput, PortTrue:
		return 0
	case PortFalse:
		return 1
	}
	if i, ok := (Edge{Port: port}).ChoiceIndex(); ok {
		return i
	}
	return MaxChoices + 1
}

// Graph is the loaded story.
type Graph struct {
	Version   int
	Title     string
	AssetRoot string

	start string
	order []string
	nodes map[string]*Node
	out   map[string][]Edge
}

// Start returns the unique Start node.
func (g *Graph) Start() *Node {
	return g.nodes[g.start]
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node ordered by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Outgoing returns the edges leaving id ordered by port: the single
// output, choice indices ascending, or true before false.
func (g *Graph) Outgoing(id string) []Edge {
	return append([]Edge(nil), g.out[id]...)
}

// Edges returns every edge, grouped by source node id.
func (g *Graph) Edges() []Edge {
	var all []Edge
	for _, id := range g.order {
		all = append(all, g.out[id]...)
	}
	return all
}

// Successor returns the target of the single output of id.
func (g *Graph) Successor(id string) (string, bool) {
	for _, e := range g.out[id] {
		if e.Port == PortOutput {
			return e.To, true
		}
	}
	return "", false
}

// ChoiceTarget returns the target bound to choice index i of node id.
func (g *Graph) ChoiceTarget(id string, i int) (string, bool) {
	port := ChoicePort(i)
	for _, e := range g.out[id] {
		if e.Port == port {
			return e.To, true
		}
	}
	return "", false
}

// BranchTarget returns the target of the true or false branch of node id.
func (g *Graph) BranchTarget(id string, branch bool) (string, bool) {
	port := PortFalse
	if branch {
		port = PortTrue
	}
	for _, e := range g.out[id] {
		if e.Port == port {
			return e.To, true
		}
	}
	return "", false
}

// ResolveAsset resolves a relative asset path against the project directory.
func (g *Graph) ResolveAsset(path string) string {
	if path == "" || g.AssetRoot == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(g.AssetRoot, path)
}
