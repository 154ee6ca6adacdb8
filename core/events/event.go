package events

import "deltastake/core/types"

// Event represents a structured state change emitted by the staking engine.
type Event interface {
	EventType() string
}

// Payload is an event that can render itself into the generic attribute form
// consumed by indexers and the API.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. API, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each wrapped emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Render converts an event into its generic form when supported.
func Render(evt Event) (*types.Event, bool) {
	payload, ok := evt.(Payload)
	if !ok {
		return nil, false
	}
	rendered := payload.Event()
	return rendered, rendered != nil
}
