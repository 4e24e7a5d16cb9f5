package worker

import "github.com/spec-kit/ticket-inventory/internal/events"

// Subscriber attaches its handlers to a dispatcher.
type Subscriber interface {
	Register(d events.Dispatcher)
}

// StartSubscribers registers every non-nil subscriber on d.
func StartSubscribers(d events.Dispatcher, subscribers ...Subscriber) {
	for _, s := range subscribers {
		if s == nil {
			continue
		}
		s.Register(d)
	}
}
