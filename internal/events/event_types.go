package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketTypeCreated      EventType = "ticket_type_created"
	EventTicketTypeUpdated      EventType = "ticket_type_updated"
	EventTicketTypeCancelled    EventType = "ticket_type_cancelled"
	EventTicketsPurchased       EventType = "tickets_purchased"
	EventTicketCheckedIn        EventType = "ticket_checked_in"
	EventTicketCancelled        EventType = "ticket_cancelled"
	EventTicketsExpired         EventType = "tickets_expired"
	EventInventoryInconsistency EventType = "inventory_inconsistency"
)

// AllEventTypes lists every type, for subscribers that want the full stream.
var AllEventTypes = []EventType{
	EventTicketTypeCreated,
	EventTicketTypeUpdated,
	EventTicketTypeCancelled,
	EventTicketsPurchased,
	EventTicketCheckedIn,
	EventTicketCancelled,
	EventTicketsExpired,
	EventInventoryInconsistency,
}

// Actor identifies who triggered an event. Empty for system jobs.
type Actor struct {
	SubjectID string      `json:"subject_id,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TicketTypeID string      `json:"ticket_type_id,omitempty"`
	Actor        Actor       `json:"actor"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// TicketTypeCreatedPayload payload.
type TicketTypeCreatedPayload struct {
	EventID  string                `json:"event_id"`
	Name     string                `json:"name"`
	Category domain.TicketCategory `json:"category"`
	Quantity int                   `json:"quantity"`
	Price    decimal.Decimal       `json:"price"`
	Currency string                `json:"currency"`
}

// TicketTypeUpdatedPayload payload.
type TicketTypeUpdatedPayload struct {
	Version  int64                   `json:"version"`
	Quantity int                     `json:"quantity"`
	Status   domain.TicketTypeStatus `json:"status"`
}

// TicketTypeCancelledPayload payload.
type TicketTypeCancelledPayload struct {
	Sold int `json:"sold"`
}

// TicketsPurchasedPayload payload.
type TicketsPurchasedPayload struct {
	PurchaserID string   `json:"purchaser_id"`
	Quantity    int      `json:"quantity"`
	TicketIDs   []string `json:"ticket_ids"`
	Sold        int      `json:"sold"`
	Attempts    int      `json:"attempts"`
}

// TicketCheckedInPayload payload.
type TicketCheckedInPayload struct {
	TicketID   string `json:"ticket_id"`
	TicketCode string `json:"ticket_code"`
}

// TicketCancelledPayload payload.
type TicketCancelledPayload struct {
	TicketID string `json:"ticket_id"`
	OwnerID  string `json:"owner_id"`
}

// TicketsExpiredPayload payload.
type TicketsExpiredPayload struct {
	Count int `json:"count"`
}

// InventoryInconsistencyPayload describes seats committed without issued tickets.
type InventoryInconsistencyPayload struct {
	PurchaserID string `json:"purchaser_id"`
	Quantity    int    `json:"quantity"`
	Version     int64  `json:"version"`
	Error       string `json:"error"`
}
