package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// story
	"story.started":   {},
	"story.completed": {},
	"story.error":     {},
	"story.loaded":    {},

	// node
	"node.entered": {},

	// dialogue
	"text.shown":       {},
	"choice.presented": {},
	"choice.made":      {},

	// memory
	"variable.changed": {},

	// layers
	"layer.assigned": {},
	"layer.cleared":  {},

	// session
	"session.restored": {},
	"save.created":     {},
	"save.loaded":      {},
	"save.deleted":     {},
	"save.corrupt":     {},

	// presentation
	"client.connected":    {},
	"client.disconnected": {},
	"client.input":        {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
