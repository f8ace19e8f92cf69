package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CurrentVersion is the project file version written by Marshal.
const CurrentVersion = 1

// MalformedGraphError reports every structural problem found while loading.
type MalformedGraphError struct {
	Source   string
	Problems []string
}

func (e *MalformedGraphError) Error() string {
	prefix := "malformed story graph"
	if e.Source != "" {
		prefix += " " + e.Source
	}
	return prefix + ": " + strings.Join(e.Problems, "; ")
}

type projectFile struct {
	Version     int                 `json:"version,omitempty"`
	Title       string              `json:"title,omitempty"`
	StartNode   string              `json:"start_node,omitempty"`
	Nodes       map[string]nodeFile `json:"nodes"`
	Connections []connectionFile    `json:"connections"`
}

type nodeFile struct {
	Type string          `json:"type"`
	X    float64         `json:"x"`
	Y    float64         `json:"y"`
	Data json.RawMessage `json:"data,omitempty"`
}

type connectionFile struct {
	FromNode string `json:"from_node"`
	FromPort string `json:"from_port"`
	ToNode   string `json:"to_node"`
	ToPort   string `json:"to_port,omitempty"`
}

// Load reads and validates a project file. Relative asset paths resolve
// against the directory holding the file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		abs = filepath.Dir(path)
	}
	g, err := Parse(data, abs)
	if err != nil {
		if mg, ok := err.(*MalformedGraphError); ok {
			mg.Source = path
		}
		return nil, err
	}
	return g, nil
}

// Parse decodes and validates a project document.
func Parse(data []byte, assetRoot string) (*Graph, error) {
	var pf projectFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, &MalformedGraphError{Problems: []string{"invalid JSON: " + err.Error()}}
	}
	if pf.Version != 0 && pf.Version != CurrentVersion {
		return nil, &MalformedGraphError{Problems: []string{fmt.Sprintf("unsupported story version: %d", pf.Version)}}
	}

	v := &validator{}
	g := &Graph{
		Version:   CurrentVersion,
		Title:     pf.Title,
		AssetRoot: assetRoot,
		nodes:     make(map[string]*Node, len(pf.Nodes)),
		out:       make(map[string][]Edge),
	}

	for id := range pf.Nodes {
		g.order = append(g.order, id)
	}
	sort.Strings(g.order)

	for _, id := range g.order {
		n, err := decodeNode(id, pf.Nodes[id])
		if err != nil {
			v.addf("node %s: %v", id, err)
			continue
		}
		g.nodes[id] = n
	}

	for _, c := range pf.Connections {
		from, ok := g.nodes[c.FromNode]
		if !ok {
			v.addf("connection from unknown node %q", c.FromNode)
			continue
		}
		if _, ok := g.nodes[c.ToNode]; !ok {
			v.addf("connection %s.%s targets unknown node %q", c.FromNode, c.FromPort, c.ToNode)
			continue
		}
		toPort := c.ToPort
		if toPort == "" {
			toPort = PortInput
		}
		g.out[from.ID] = append(g.out[from.ID], Edge{
			From:   from.ID,
			Port:   normalizePort(from.Kind, c.FromPort),
			To:     c.ToNode,
			ToPort: toPort,
		})
	}
	for id := range g.out {
		edges := g.out[id]
		sort.SliceStable(edges, func(i, j int) bool { return portRank(edges[i].Port) < portRank(edges[j].Port) })
	}

	v.checkStart(g, pf.StartNode)
	for _, id := range g.order {
		if n, ok := g.nodes[id]; ok {
			v.checkArity(g, n)
		}
	}
	v.checkReachable(g)

	if len(v.problems) > 0 {
		return nil, &MalformedGraphError{Problems: v.problems}
	}
	return g, nil
}

// normalizePort maps the Creator's port spellings onto canonical ports:
// single-output kinds use "output", choices use "output_<i>".
func normalizePort(kind Kind, port string) string {
	switch kind {
	case KindChoice:
		if port == PortOutput {
			return ChoicePort(0)
		}
	case KindCondition:
		switch port {
		case "true":
			return PortTrue
		case "false":
			return PortFalse
		}
	default:
		if port == "output_0" || port == "" {
			return PortOutput
		}
	}
	return port
}

// kindFromType keeps the segment after the last dot: "text.text" -> text.
func kindFromType(typ string) (Kind, bool) {
	simple := typ
	if i := strings.LastIndex(typ, "."); i >= 0 {
		simple = typ[i+1:]
	}
	switch Kind(simple) {
	case KindStart, KindText, KindChoice, KindImage, KindMusic, KindVariable, KindCondition, KindMassInit:
		return Kind(simple), true
	case "background":
		return KindImage, true
	}
	return "", false
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) checkStart(g *Graph, declared string) {
	var starts []string
	for _, id := range g.order {
		if n, ok := g.nodes[id]; ok && n.Kind == KindStart {
			starts = append(starts, id)
		}
	}
	switch len(starts) {
	case 0:
		v.addf("no start node")
		return
	case 1:
		g.start = starts[0]
	default:
		v.addf("multiple start nodes: %s", strings.Join(starts, ", "))
		return
	}
	if declared != "" && declared != g.start {
		v.addf("start_node %q is not the start node %q", declared, g.start)
	}
}

func (v *validator) checkArity(g *Graph, n *Node) {
	edges := g.out[n.ID]
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if seen[e.Port] {
			v.addf("node %s: port %s connected more than once", n.ID, e.Port)
		}
		seen[e.Port] = true
	}

	switch n.Kind {
	case KindChoice:
		count := len(n.Choice.Options)
		if count < 1 || count > MaxChoices {
			v.addf("choice node %s: has %d options, want 1 to %d", n.ID, count, MaxChoices)
		}
		for _, e := range edges {
			i, ok := e.ChoiceIndex()
			if !ok || i >= count {
				v.addf("choice node %s: port %s is not bound to an option", n.ID, e.Port)
			}
		}
		for i := 0; i < count && i < MaxChoices; i++ {
			if !seen[ChoicePort(i)] {
				v.addf("choice node %s: option %d (%q) has no outgoing edge", n.ID, i, n.Choice.Options[i].Label)
			}
		}
	case KindCondition:
		if len(edges) != 2 || !seen[PortTrue] || !seen[PortFalse] {
			v.addf("condition node %s: needs exactly one %s and one %s edge", n.ID, PortTrue, PortFalse)
		}
	default:
		for _, e := range edges {
			if e.Port != PortOutput {
				v.addf("%s node %s: unexpected port %s", n.Kind, n.ID, e.Port)
			}
		}
		if len(edges) > 1 {
			v.addf("%s node %s: has %d outgoing edges, want at most 1", n.Kind, n.ID, len(edges))
		}
	}
}

func (v *validator) checkReachable(g *Graph) {
	if g.start == "" {
		return
	}
	visited := map[string]bool{g.start: true}
	queue := []string{g.start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.out[current] {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	for _, id := range g.order {
		if _, ok := g.nodes[id]; ok && !visited[id] {
			v.addf("node %s is not reachable from start", id)
		}
	}
}

// Marshal encodes g in the project file format. Parse(Marshal(g)) yields
// an equal graph.
func Marshal(g *Graph) ([]byte, error) {
	pf := projectFile{
		Version:   CurrentVersion,
		Title:     g.Title,
		StartNode: g.start,
		Nodes:     make(map[string]nodeFile, len(g.nodes)),
	}
	for _, id := range g.order {
		n := g.nodes[id]
		data, err := encodeData(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", id, err)
		}
		pf.Nodes[id] = nodeFile{Type: n.Type, X: n.X, Y: n.Y, Data: data}
	}
	for _, e := range g.Edges() {
		pf.Connections = append(pf.Connections, connectionFile{
			FromNode: e.From,
			FromPort: e.Port,
			ToNode:   e.To,
			ToPort:   e.ToPort,
		})
	}
	if pf.Connections == nil {
		pf.Connections = []connectionFile{}
	}
	return json.MarshalIndent(pf, "", "  ")
}
