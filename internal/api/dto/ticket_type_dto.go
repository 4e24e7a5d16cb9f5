package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

// CreateTicketTypeRequest payload.
type CreateTicketTypeRequest struct {
	Name        string                `json:"name" validate:"required,max=120"`
	Description string                `json:"description" validate:"max=2000"`
	Category    domain.TicketCategory `json:"category" validate:"omitempty,oneof=GENERAL VIP EARLY_BIRD STUDENT GROUP"`
	Price       decimal.Decimal       `json:"price"`
	Currency    string                `json:"currency" validate:"required,len=3,alpha"`
	ServiceFee  *decimal.Decimal      `json:"service_fee"`
	Quantity    *int                  `json:"quantity" validate:"required,min=0"`
	MaxPerOrder *int                  `json:"max_per_order" validate:"omitempty,min=1"`
	SalesStart  time.Time             `json:"sales_start" validate:"required"`
	SalesEnd    time.Time             `json:"sales_end" validate:"required,gtfield=SalesStart"`
	MinimumAge  *int                  `json:"minimum_age" validate:"omitempty,min=0,max=120"`
	HasSeating  bool                  `json:"has_seating"`
}

// UpdateTicketTypeRequest payload. Omitted fields are left unchanged.
type UpdateTicketTypeRequest struct {
	Name             *string          `json:"name" validate:"omitempty,min=1,max=120"`
	Description      *string          `json:"description" validate:"omitempty,max=2000"`
	Price            *decimal.Decimal `json:"price"`
	ServiceFee       *decimal.Decimal `json:"service_fee"`
	ClearServiceFee  bool             `json:"clear_service_fee"`
	Quantity         *int             `json:"quantity" validate:"omitempty,min=0"`
	MaxPerOrder      *int             `json:"max_per_order" validate:"omitempty,min=1"`
	ClearMaxPerOrder bool             `json:"clear_max_per_order"`
	SalesStart       *time.Time       `json:"sales_start"`
	SalesEnd         *time.Time       `json:"sales_end"`
	MinimumAge       *int             `json:"minimum_age" validate:"omitempty,min=0,max=120"`
}

// TicketTypeResponse represents a ticket type.
type TicketTypeResponse struct {
	ID                string                  `json:"id"`
	EventID           string                  `json:"event_id"`
	Name              string                  `json:"name"`
	Description       string                  `json:"description,omitempty"`
	Category          domain.TicketCategory   `json:"category"`
	Price             decimal.Decimal         `json:"price"`
	ServiceFee        *decimal.Decimal        `json:"service_fee,omitempty"`
	TotalPrice        decimal.Decimal         `json:"total_price"`
	Currency          string                  `json:"currency"`
	Quantity          int                     `json:"quantity"`
	Sold              int                     `json:"sold"`
	AvailableQuantity int                     `json:"available_quantity"`
	MaxPerOrder       *int                    `json:"max_per_order,omitempty"`
	SalesStart        time.Time               `json:"sales_start"`
	SalesEnd          time.Time               `json:"sales_end"`
	MinimumAge        *int                    `json:"minimum_age,omitempty"`
	HasSeating        bool                    `json:"has_seating"`
	Status            domain.TicketTypeStatus `json:"status"`
	Version           int64                   `json:"version"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// NewTicketTypeResponse maps the aggregate. Status must already be refreshed.
func NewTicketTypeResponse(tt *domain.TicketType) TicketTypeResponse {
	return TicketTypeResponse{
		ID:                tt.ID,
		EventID:           tt.EventID,
		Name:              tt.Name,
		Description:       tt.Description,
		Category:          tt.Category,
		Price:             tt.Price,
		ServiceFee:        tt.ServiceFee,
		TotalPrice:        tt.TotalPrice(),
		Currency:          tt.Currency,
		Quantity:          tt.Quantity,
		Sold:              tt.Sold,
		AvailableQuantity: tt.AvailableQuantity(),
		MaxPerOrder:       tt.MaxPerOrder,
		SalesStart:        tt.SalesStart,
		SalesEnd:          tt.SalesEnd,
		MinimumAge:        tt.MinimumAge,
		HasSeating:        tt.HasSeating,
		Status:            tt.Status,
		Version:           tt.Version,
		CreatedAt:         tt.CreatedAt,
		UpdatedAt:         tt.UpdatedAt,
	}
}
