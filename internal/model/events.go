package model

// Event is one launcher lifecycle event: spawn_start, spawn_ready,
// spawn_exit, spawn_timeout or spawn_stop, with optional fields.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives launcher events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
