package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus enumerates lifecycle states for issued tickets.
type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "VALID"
	TicketStatusUsed      TicketStatus = "USED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusExpired   TicketStatus = "EXPIRED"
)

// Ticket is one issued, redeemable seat.
type Ticket struct {
	ID           string
	TicketTypeID string
	OwnerID      string
	TicketCode   string
	PurchaseDate time.Time
	CheckedIn    bool
	CheckedInAt  *time.Time
	Status       TicketStatus
	UpdatedAt    time.Time
}

// NewTicket issues a VALID ticket with a freshly generated code.
func NewTicket(ticketTypeID, ownerID string, codes CodeGenerator, now time.Time) *Ticket {
	return &Ticket{
		ID:           uuid.NewString(),
		TicketTypeID: ticketTypeID,
		OwnerID:      ownerID,
		TicketCode:   codes.NewCode(),
		PurchaseDate: now,
		Status:       TicketStatusValid,
		UpdatedAt:    now,
	}
}

// CheckIn redeems the ticket. It returns false when the ticket is not redeemable,
// so gate scanners can retry safely.
func (t *Ticket) CheckIn(now time.Time) bool {
	if t.CheckedIn || t.Status != TicketStatusValid {
		return false
	}
	t.CheckedIn = true
	t.CheckedInAt = &now
	t.Status = TicketStatusUsed
	t.UpdatedAt = now
	return true
}

// Cancel voids a VALID ticket. The owning ticket type's sold counter is left alone.
func (t *Ticket) Cancel(now time.Time) bool {
	if t.Status != TicketStatusValid {
		return false
	}
	t.Status = TicketStatusCancelled
	t.UpdatedAt = now
	return true
}

// Expire marks an unused ticket of a finished event.
func (t *Ticket) Expire(now time.Time) bool {
	if t.Status != TicketStatusValid {
		return false
	}
	t.Status = TicketStatusExpired
	t.UpdatedAt = now
	return true
}

// Active reports whether the ticket still counts against sold inventory.
func (t *Ticket) Active() bool {
	return t.Status != TicketStatusCancelled
}
