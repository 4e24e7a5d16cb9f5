package domain

import "time"

// Event is the read-only catalog entry a ticket type belongs to.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
	Active   bool
}

// Ended reports whether the event is over at now.
func (e *Event) Ended(now time.Time) bool {
	return now.After(e.EndsAt)
}
