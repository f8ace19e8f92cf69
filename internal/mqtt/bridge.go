package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/layers"
)

const queueSize = 64

// Transport is the part of Client the bridge needs.
type Transport interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, retained bool, payload []byte) error
}

// Input is a player command received on <prefix>/input.
type Input struct {
	Action string `json:"action"`
	Index  *int   `json:"index,omitempty"`
}

// InputError is published on <prefix>/error when an input is rejected.
type InputError struct {
	Action string `json:"action,omitempty"`
	Error  string `json:"error"`
}

type outbound struct {
	topic    string
	retained bool
	payload  []byte
}

// Bridge connects one engine to a presentation front-end over MQTT. It
// publishes the display (retained) and layer changes, and feeds player
// input back into the engine.
type Bridge struct {
	transport Transport
	engine    *engine.Engine
	prefix    string
	out       chan outbound
}

// NewBridge creates a bridge. Nothing is subscribed until Start.
func NewBridge(t Transport, e *engine.Engine, prefix string) *Bridge {
	return &Bridge{
		transport: t,
		engine:    e,
		prefix:    prefix,
		out:       make(chan outbound, queueSize),
	}
}

// Topic returns prefix/suffix.
func (b *Bridge) Topic(suffix string) string {
	return b.prefix + "/" + suffix
}

// Start subscribes to player input, hooks the engine and queues the
// current display. Run must be running for anything to be published.
func (b *Bridge) Start() error {
	if err := b.transport.Subscribe(b.Topic("input"), b.handleInput); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.Topic("input"), err)
	}

	g := b.engine.Graph()
	b.engine.Observe(func(c engine.Commit) {
		b.enqueue(b.Topic("display"), true, c.Display)
	})
	b.engine.SubscribeImages(func(c layers.Change[layers.ImageAttrs]) {
		c.Entries = layers.CloneEntries(c.Entries)
		for i := range c.Entries {
			c.Entries[i].Resource = g.ResolveAsset(c.Entries[i].Resource)
		}
		b.enqueue(b.Topic("layers/image"), false, c)
	})
	b.engine.SubscribeAudio(func(c layers.Change[layers.AudioAttrs]) {
		c.Entries = layers.CloneEntries(c.Entries)
		for i := range c.Entries {
			c.Entries[i].Resource = g.ResolveAsset(c.Entries[i].Resource)
		}
		b.enqueue(b.Topic("layers/audio"), false, c)
	})

	b.enqueue(b.Topic("display"), true, b.engine.Display())
	events.Emit("info", "client.connected", "", map[string]interface{}{
		"transport": "mqtt",
		"topic":     b.Topic("input"),
	})
	return nil
}

// Run publishes queued messages until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.out:
			if err := b.transport.Publish(m.topic, m.retained, m.payload); err != nil {
				events.Emit("error", "system.error", "mqtt publish failed", map[string]interface{}{
					"topic": m.topic,
					"error": err.Error(),
				})
			}
		}
	}
}

// enqueue may run inside the engine lock, so it never blocks.
func (b *Bridge) enqueue(topic string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		events.Emit("error", "system.error", "mqtt encode failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
		return
	}
	select {
	case b.out <- outbound{topic: topic, retained: retained, payload: payload}:
	default:
		events.Emit("warn", "system.error", "mqtt publish queue full", map[string]interface{}{
			"topic": topic,
		})
	}
}

func (b *Bridge) handleInput(_ paho.Client, msg paho.Message) {
	var in Input
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		b.enqueue(b.Topic("error"), false, InputError{Error: "invalid input: " + err.Error()})
		return
	}

	fields := map[string]interface{}{
		"transport": "mqtt",
		"action":    in.Action,
	}
	if in.Index != nil {
		fields["index"] = *in.Index
	}
	events.Emit("info", "client.input", "", fields)

	if err := b.Dispatch(in); err != nil {
		b.enqueue(b.Topic("error"), false, InputError{Action: in.Action, Error: err.Error()})
	}
}

// Dispatch applies in to the engine.
func (b *Bridge) Dispatch(in Input) error {
	switch in.Action {
	case "advance":
		_, err := b.engine.Advance()
		return err
	case "choose":
		if in.Index == nil {
			return fmt.Errorf("choose requires an index")
		}
		_, err := b.engine.Choose(*in.Index)
		return err
	case "new":
		b.engine.NewGame()
		return nil
	default:
		return fmt.Errorf("unknown action %q", in.Action)
	}
}
