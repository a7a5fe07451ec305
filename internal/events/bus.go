package events

import (
	"fmt"
	"log/slog"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
	logger     *slog.Logger
}

// New creates a new event bus
func New() *Bus {
	return NewWithLogger(slog.Default())
}

// NewWithLogger creates a bus that reports misuse on logger.
func NewWithLogger(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		dispatcher: event.NewDispatcher(),
		logger:     logger,
	}
}

// Publish publishes an event to all subscribers.
// A nil bus discards the event, so components may run without one.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case OverrunEvent:
		event.Publish(b.dispatcher, e)
	case PipelineStateEvent:
		event.Publish(b.dispatcher, e)
	case WarningEvent:
		event.Publish(b.dispatcher, e)
	case RuntimeErrorEvent:
		event.Publish(b.dispatcher, e)
	case ShutdownRequestedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type selects the events it receives. An unsupported handler
// type is logged and gets a no-op unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e OverrunEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(OverrunEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WarningEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RuntimeErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShutdownRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		b.logger.Warn("events: unsupported handler type, subscription ignored",
			"handler", fmt.Sprintf("%T", handler))
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel.
// Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- T) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
