// Package notify pushes operational notifications (new tickets, turn
// failures) to external channels. Delivery is best effort; a failed
// notification never fails the turn that triggered it.
package notify

import "context"

// Event is one notification.
type Event struct {
	// Kind classifies the notification, e.g. "ticket.created".
	Kind      string
	SessionID string
	Title     string
	Text      string

	// Fields are short key/value details rendered under the text.
	Fields map[string]string
}

// Notifier delivers events to one channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
