package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for broadcasting daemon lifecycle
// and diagnostic events between FrameLoop and whoever is observing it
// (metrics, logging, an embedding process) without coupling FrameLoop
// directly to any of them.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(FrameDroppedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ProducerConnectedEvent:
		event.Publish(b.dispatcher, e)
	case ProducerDisconnectedEvent:
		event.Publish(b.dispatcher, e)
	case FrameDroppedEvent:
		event.Publish(b.dispatcher, e)
	case DMATimeoutEvent:
		event.Publish(b.dispatcher, e)
	case RotateFallbackEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function; the handler's
// parameter type determines which events it receives. Returns an
// unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e FrameDroppedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProducerConnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProducerDisconnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DMATimeoutEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RotateFallbackEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
