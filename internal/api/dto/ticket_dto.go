package dto

import (
	"time"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

// PurchaseRequest payload.
type PurchaseRequest struct {
	Quantity int `json:"quantity"`
}

// PurchaseResponse lists the issued tickets.
type PurchaseResponse struct {
	TicketTypeID string   `json:"ticket_type_id"`
	Quantity     int      `json:"quantity"`
	TicketIDs    []string `json:"ticket_ids"`
}

// CheckInRequest accepts either the printed code or a scanned QR payload.
type CheckInRequest struct {
	TicketCode string `json:"ticket_code" validate:"required_without=QRPayload"`
	QRPayload  string `json:"qr_payload" validate:"required_without=TicketCode"`
}

// CheckInResponse reports whether the holder was admitted.
type CheckInResponse struct {
	Admitted bool `json:"admitted"`
}

// CancelTicketResponse reports whether the ticket changed state.
type CancelTicketResponse struct {
	Cancelled bool                `json:"cancelled"`
	Status    domain.TicketStatus `json:"status"`
}

// TicketResponse represents an issued ticket.
type TicketResponse struct {
	ID           string              `json:"id"`
	TicketTypeID string              `json:"ticket_type_id"`
	OwnerID      string              `json:"owner_id"`
	TicketCode   string              `json:"ticket_code"`
	PurchaseDate time.Time           `json:"purchase_date"`
	CheckedIn    bool                `json:"checked_in"`
	CheckedInAt  *time.Time          `json:"checked_in_at,omitempty"`
	Status       domain.TicketStatus `json:"status"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		TicketTypeID: t.TicketTypeID,
		OwnerID:      t.OwnerID,
		TicketCode:   t.TicketCode,
		PurchaseDate: t.PurchaseDate,
		CheckedIn:    t.CheckedIn,
		CheckedInAt:  t.CheckedInAt,
		Status:       t.Status,
	}
}
