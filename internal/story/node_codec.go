package story

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientStory/internal/memory"
)

type textData struct {
	Content        string `json:"content"`
	Speaker        string `json:"speaker,omitempty"`
	CharacterImage string `json:"character_image,omitempty"`
}

type choiceOptionData struct {
	Text      string `json:"text"`
	Condition string `json:"condition,omitempty"`
}

type choiceData struct {
	Question string             `json:"question,omitempty"`
	Choices  []choiceOptionData `json:"choices"`
}

type imageData struct {
	ImagePath string `json:"image_path,omitempty"`
	Layer     int    `json:"layer"`
	ZOrder    *int   `json:"z_order,omitempty"`
	Clear     bool   `json:"clear,omitempty"`
}

type musicData struct {
	MusicPath string   `json:"music_path,omitempty"`
	Track     int      `json:"track"`
	Repeat    *bool    `json:"repeat,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Clear     bool     `json:"clear,omitempty"`
}

type variableData struct {
	Variable  string          `json:"variable"`
	Operation string          `json:"operation,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ValueType string          `json:"value_type,omitempty"`
}

type conditionData struct {
	Variable  string          `json:"variable"`
	Operator  string          `json:"operator,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ValueType string          `json:"value_type,omitempty"`
}

type massInitEntry struct {
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value,omitempty"`
	ValueType string          `json:"value_type,omitempty"`
}

type massInitData struct {
	Variables []massInitEntry `json:"variables"`
}

func decodeNode(id string, nf nodeFile) (*Node, error) {
	kind, ok := kindFromType(nf.Type)
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", nf.Type)
	}
	n := &Node{ID: id, Kind: kind, Type: nf.Type, X: nf.X, Y: nf.Y}
	data := nf.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	background := strings.HasSuffix(nf.Type, "background")

	switch kind {
	case KindStart:
	case KindText:
		var d textData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("text data: %w", err)
		}
		n.Text = &Text{Content: d.Content, Speaker: d.Speaker, CharacterImage: d.CharacterImage}
	case KindChoice:
		var d choiceData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("choice data: %w", err)
		}
		c := &Choice{Question: d.Question}
		for i, o := range d.Choices {
			if strings.TrimSpace(o.Condition) != "" {
				if _, err := memory.ParseCondition(o.Condition); err != nil {
					return nil, fmt.Errorf("option %d: %w", i, err)
				}
			}
			c.Options = append(c.Options, Option{Label: o.Text, Visible: o.Condition})
		}
		n.Choice = c
	case KindImage:
		var d imageData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("image data: %w", err)
		}
		if background {
			d.Layer = 0
		}
		img := &Image{Path: d.ImagePath, Layer: d.Layer, ZOrder: d.Layer, Clear: d.Clear || d.ImagePath == ""}
		if d.ZOrder != nil {
			img.ZOrder = *d.ZOrder
		}
		n.Image = img
	case KindMusic:
		var d musicData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("music data: %w", err)
		}
		m := &Music{Path: d.MusicPath, Track: d.Track, Repeat: true, Volume: 1, Clear: d.Clear || d.MusicPath == ""}
		if d.Repeat != nil {
			m.Repeat = *d.Repeat
		}
		if d.Volume != nil {
			if *d.Volume < 0 || *d.Volume > 1 {
				return nil, fmt.Errorf("volume %v out of range [0, 1]", *d.Volume)
			}
			m.Volume = *d.Volume
		}
		n.Music = m
	case KindVariable:
		var d variableData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("variable data: %w", err)
		}
		if strings.TrimSpace(d.Variable) == "" {
			return nil, fmt.Errorf("variable name is empty")
		}
		op := memory.Operation(d.Operation)
		if op == "" {
			op = memory.OpSet
		}
		if !op.Valid() {
			return nil, fmt.Errorf("unknown operation %q", d.Operation)
		}
		v, err := decodeValue(d.Value, d.ValueType)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", d.Variable, err)
		}
		n.Variable = &Variable{Name: d.Variable, Operation: op, Value: v}
	case KindCondition:
		var d conditionData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("condition data: %w", err)
		}
		if strings.TrimSpace(d.Variable) == "" {
			return nil, fmt.Errorf("condition variable is empty")
		}
		op := memory.Operator(d.Operator)
		if op == "" {
			op = memory.OpEqual
		}
		if !op.Valid() {
			return nil, fmt.Errorf("unknown operator %q", d.Operator)
		}
		v, err := decodeValue(d.Value, d.ValueType)
		if err != nil {
			return nil, fmt.Errorf("condition on %s: %w", d.Variable, err)
		}
		n.Condition = &Condition{Test: memory.Condition{Variable: d.Variable, Operator: op, Value: v}}
	case KindMassInit:
		var d massInitData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("massinit data: %w", err)
		}
		mi := &MassInit{}
		for _, e := range d.Variables {
			v, err := decodeValue(e.Value, e.ValueType)
			if err != nil {
				return nil, fmt.Errorf("massinit %s: %w", e.Name, err)
			}
			mi.Pairs = append(mi.Pairs, memory.Pair{Name: e.Name, Value: v})
		}
		n.MassInit = mi
	}
	return n, nil
}

// decodeValue reads a typed literal. A missing value is zero of its type.
// value_type "string" stringifies any scalar; "number" accepts numeric strings.
func decodeValue(raw json.RawMessage, valueType string) (memory.Value, error) {
	if len(raw) == 0 {
		if valueType == "string" {
			return memory.String(""), nil
		}
		return memory.Number(0), nil
	}
	var v memory.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return memory.Value{}, err
	}
	switch valueType {
	case "":
		return v, nil
	case "string":
		if v.Kind() != memory.KindString {
			return memory.String(v.String()), nil
		}
		return v, nil
	case "number":
		if s, ok := v.Text(); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return memory.Value{}, fmt.Errorf("value %q is not a number", s)
			}
			return memory.Number(f), nil
		}
		if v.Kind() != memory.KindNumber {
			return memory.Value{}, fmt.Errorf("value %s is not a number", v)
		}
		return v, nil
	case "bool", "boolean":
		if v.Kind() != memory.KindBool {
			return memory.Value{}, fmt.Errorf("value %s is not a boolean", v)
		}
		return v, nil
	}
	return memory.Value{}, fmt.Errorf("unknown value_type %q", valueType)
}

func encodeValue(v memory.Value) (json.RawMessage, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	switch v.Kind() {
	case memory.KindString:
		return raw, "string", nil
	case memory.KindBool:
		return raw, "bool", nil
	}
	return raw, "number", nil
}

func encodeData(n *Node) (json.RawMessage, error) {
	var d interface{}
	switch n.Kind {
	case KindStart:
		return nil, nil
	case KindText:
		d = textData{Content: n.Text.Content, Speaker: n.Text.Speaker, CharacterImage: n.Text.CharacterImage}
	case KindChoice:
		cd := choiceData{Question: n.Choice.Question, Choices: []choiceOptionData{}}
		for _, o := range n.Choice.Options {
			cd.Choices = append(cd.Choices, choiceOptionData{Text: o.Label, Condition: o.Visible})
		}
		d = cd
	case KindImage:
		z := n.Image.ZOrder
		d = imageData{ImagePath: n.Image.Path, Layer: n.Image.Layer, ZOrder: &z, Clear: n.Image.Clear}
	case KindMusic:
		repeat, volume := n.Music.Repeat, n.Music.Volume
		d = musicData{MusicPath: n.Music.Path, Track: n.Music.Track, Repeat: &repeat, Volume: &volume, Clear: n.Music.Clear}
	case KindVariable:
		raw, vt, err := encodeValue(n.Variable.Value)
		if err != nil {
			return nil, err
		}
		d = variableData{Variable: n.Variable.Name, Operation: string(n.Variable.Operation), Value: raw, ValueType: vt}
	case KindCondition:
		raw, vt, err := encodeValue(n.Condition.Test.Value)
		if err != nil {
			return nil, err
		}
		d = conditionData{Variable: n.Condition.Test.Variable, Operator: string(n.Condition.Test.Operator), Value: raw, ValueType: vt}
	case KindMassInit:
		md := massInitData{Variables: []massInitEntry{}}
		for _, p := range n.MassInit.Pairs {
			raw, vt, err := encodeValue(p.Value)
			if err != nil {
				return nil, err
			}
			md.Variables = append(md.Variables, massInitEntry{Name: p.Name, Value: raw, ValueType: vt})
		}
		d = md
	default:
		return nil, fmt.Errorf("unknown node kind %q", n.Kind)
	}
	return json.Marshal(d)
}
