package domain

import "time"

// TicketTypeStatus is the derived sale status of a ticket type.
type TicketTypeStatus string

const (
	TicketTypeStatusNotYetOnSale TicketTypeStatus = "NOT_YET_ON_SALE"
	TicketTypeStatusOnSale       TicketTypeStatus = "ON_SALE"
	TicketTypeStatusSoldOut      TicketTypeStatus = "SOLD_OUT"
	TicketTypeStatusSaleEnded    TicketTypeStatus = "SALE_ENDED"
	TicketTypeStatusCancelled    TicketTypeStatus = "CANCELLED"
)

// StatusInputs is everything the sale status depends on besides the clock.
type StatusInputs struct {
	Quantity   int
	Sold       int
	SalesStart time.Time
	SalesEnd   time.Time
	Cancelled  bool
}

// DeriveTicketTypeStatus computes the sale status at now. Rules are applied in order:
// cancelled, sold out, before the window, after the window, on sale. Both window
// boundaries are inclusive.
func DeriveTicketTypeStatus(in StatusInputs, now time.Time) TicketTypeStatus {
	switch {
	case in.Cancelled:
		return TicketTypeStatusCancelled
	case in.Sold >= in.Quantity:
		return TicketTypeStatusSoldOut
	case now.Before(in.SalesStart):
		return TicketTypeStatusNotYetOnSale
	case now.After(in.SalesEnd):
		return TicketTypeStatusSaleEnded
	default:
		return TicketTypeStatusOnSale
	}
}

// Valid reports whether s is a known status value.
func (s TicketTypeStatus) Valid() bool {
	switch s {
	case TicketTypeStatusNotYetOnSale, TicketTypeStatusOnSale, TicketTypeStatusSoldOut,
		TicketTypeStatusSaleEnded, TicketTypeStatusCancelled:
		return true
	}
	return false
}
