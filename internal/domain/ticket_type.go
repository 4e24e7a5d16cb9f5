package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

// TicketCategory is an informational classification of a ticket type.
type TicketCategory string

const (
	TicketCategoryGeneral   TicketCategory = "GENERAL"
	TicketCategoryVIP       TicketCategory = "VIP"
	TicketCategoryEarlyBird TicketCategory = "EARLY_BIRD"
	TicketCategoryStudent   TicketCategory = "STUDENT"
	TicketCategoryGroup     TicketCategory = "GROUP"
)

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryGeneral, TicketCategoryVIP, TicketCategoryEarlyBird,
		TicketCategoryStudent, TicketCategoryGroup:
		return true
	}
	return false
}

// Reasons attached to TICKET_SOLD_OUT errors.
const (
	SoldOutNotAvailable          = "NOT_AVAILABLE"
	SoldOutInsufficientRemaining = "INSUFFICIENT_REMAINING"
	SoldOutPerOrderLimit         = "PER_ORDER_LIMIT"
)

// TicketType is the inventory aggregate for one sale category of an event.
type TicketType struct {
	ID          string
	EventID     string
	Name        string
	Description string
	Category    TicketCategory
	Price       decimal.Decimal
	Currency    string
	ServiceFee  *decimal.Decimal
	Quantity    int
	Sold        int
	MaxPerOrder *int
	SalesStart  time.Time
	SalesEnd    time.Time
	// MinimumAge is recorded for display only; eligibility is checked by the identity provider.
	MinimumAge *int
	HasSeating bool
	Cancelled  bool
	// Status caches the last derived value. Recompute with StatusAt before relying on it.
	Status    TicketTypeStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusAt derives the sale status at now.
func (t *TicketType) StatusAt(now time.Time) TicketTypeStatus {
	return DeriveTicketTypeStatus(StatusInputs{
		Quantity:   t.Quantity,
		Sold:       t.Sold,
		SalesStart: t.SalesStart,
		SalesEnd:   t.SalesEnd,
		Cancelled:  t.Cancelled,
	}, now)
}

// Refresh rewrites the cached Status and returns it.
func (t *TicketType) Refresh(now time.Time) TicketTypeStatus {
	t.Status = t.StatusAt(now)
	return t.Status
}

func (t *TicketType) SetQuantity(q int, now time.Time) error {
	if q < 0 {
		return apperrors.NewValidationError("quantity must not be negative", map[string]any{"quantity": q})
	}
	if q < t.Sold {
		return apperrors.NewValidationError("quantity must not be lower than sold", map[string]any{
			"quantity": q,
			"sold":     t.Sold,
		})
	}
	t.Quantity = q
	t.Refresh(now)
	return nil
}

// SetSold overrides the consumption counter. Purchases go through Purchase instead.
func (t *TicketType) SetSold(s int, now time.Time) error {
	if s < 0 || s > t.Quantity {
		return apperrors.NewValidationError("sold must be between 0 and quantity", map[string]any{
			"sold":     s,
			"quantity": t.Quantity,
		})
	}
	t.Sold = s
	t.Refresh(now)
	return nil
}

func (t *TicketType) SetSalesStart(start time.Time, now time.Time) error {
	return t.SetSalesWindow(start, t.SalesEnd, now)
}

func (t *TicketType) SetSalesEnd(end time.Time, now time.Time) error {
	return t.SetSalesWindow(t.SalesStart, end, now)
}

// SetSalesWindow replaces both bounds at once.
func (t *TicketType) SetSalesWindow(start, end time.Time, now time.Time) error {
	if err := ValidateSalesWindow(start, end); err != nil {
		return err
	}
	t.SalesStart = start
	t.SalesEnd = end
	t.Refresh(now)
	return nil
}

// SetMaxPerOrder sets or clears the per-purchase cap.
func (t *TicketType) SetMaxPerOrder(limit *int) error {
	if limit != nil && *limit < 1 {
		return apperrors.NewValidationError("max_per_order must be at least 1", map[string]any{"max_per_order": *limit})
	}
	t.MaxPerOrder = limit
	return nil
}

// Cancel forces the CANCELLED status. It cannot be undone.
func (t *TicketType) Cancel(now time.Time) bool {
	if t.Cancelled {
		return false
	}
	t.Cancelled = true
	t.Refresh(now)
	return true
}

// CanPurchase reports whether n seats could be bought at now.
func (t *TicketType) CanPurchase(n int, now time.Time) bool {
	if n < 1 {
		return false
	}
	if t.StatusAt(now) != TicketTypeStatusOnSale {
		return false
	}
	if t.Sold+n > t.Quantity {
		return false
	}
	return t.MaxPerOrder == nil || n <= *t.MaxPerOrder
}

// Purchase consumes n seats or explains why it cannot.
func (t *TicketType) Purchase(n int, now time.Time) error {
	if n < 1 {
		return apperrors.NewValidationError("requested quantity must be at least 1", map[string]any{"requested": n})
	}
	if !t.CanPurchase(n, now) {
		return t.soldOutError(n, now)
	}
	t.Sold += n
	t.Refresh(now)
	return nil
}

func (t *TicketType) soldOutError(n int, now time.Time) error {
	status := t.StatusAt(now)
	details := map[string]any{
		"ticket_type_id": t.ID,
		"requested":      n,
		"available":      t.AvailableQuantity(),
		"status":         status,
	}
	switch {
	case status == TicketTypeStatusCancelled,
		status == TicketTypeStatusNotYetOnSale,
		status == TicketTypeStatusSaleEnded:
		return apperrors.NewSoldOut(SoldOutNotAvailable, fmt.Sprintf("ticket type is not available (%s)", status), details)
	case status == TicketTypeStatusSoldOut:
		return apperrors.NewSoldOut(SoldOutInsufficientRemaining, "no tickets remaining", details)
	case t.MaxPerOrder != nil && n > *t.MaxPerOrder:
		details["max_per_order"] = *t.MaxPerOrder
		return apperrors.NewSoldOut(SoldOutPerOrderLimit,
			fmt.Sprintf("at most %d tickets may be bought per order", *t.MaxPerOrder), details)
	default:
		return apperrors.NewSoldOut(SoldOutInsufficientRemaining,
			fmt.Sprintf("only %d tickets remaining", t.AvailableQuantity()), details)
	}
}

// AvailableQuantity is the number of seats still for sale, never negative.
func (t *TicketType) AvailableQuantity() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

// TotalPrice is price plus the service fee, if any.
func (t *TicketType) TotalPrice() decimal.Decimal {
	if t.ServiceFee == nil {
		return t.Price
	}
	return t.Price.Add(*t.ServiceFee)
}

// ValidateSalesWindow requires end to be strictly after start.
func ValidateSalesWindow(start, end time.Time) error {
	if !end.After(start) {
		return apperrors.NewValidationError("sales_end must be after sales_start", map[string]any{
			"sales_start": start,
			"sales_end":   end,
		})
	}
	return nil
}

// Availability is the public inventory snapshot of a ticket type.
type Availability struct {
	TicketTypeID      string           `json:"ticket_type_id"`
	Quantity          int              `json:"quantity"`
	Sold              int              `json:"sold"`
	AvailableQuantity int              `json:"available_quantity"`
	Status            TicketTypeStatus `json:"status"`
}

// AvailabilityAt snapshots counters and the status derived at now.
func (t *TicketType) AvailabilityAt(now time.Time) Availability {
	return Availability{
		TicketTypeID:      t.ID,
		Quantity:          t.Quantity,
		Sold:              t.Sold,
		AvailableQuantity: t.AvailableQuantity(),
		Status:            t.StatusAt(now),
	}
}
