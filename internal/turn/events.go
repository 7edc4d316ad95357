package turn

// Event is one realtime notification pushed to connected admin clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventSink receives turn lifecycle events. Publish must never block the
// turn; slow consumers are the sink's problem.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
