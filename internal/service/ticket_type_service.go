package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-inventory/internal/cache"
	"github.com/spec-kit/ticket-inventory/internal/clock"
	"github.com/spec-kit/ticket-inventory/internal/config"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/events"
	"github.com/spec-kit/ticket-inventory/internal/observability"
	"github.com/spec-kit/ticket-inventory/internal/repository"
	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// TicketTypeService manages the inventory aggregates of events.
type TicketTypeService struct {
	events      repository.EventCatalog
	ticketTypes repository.TicketTypeRepository
	tickets     repository.TicketRepository
	clock       clock.Clock
	cache       *cache.AvailabilityCache
	logger      *zap.Logger
	retrier     casRetrier
	publisher
}

// TicketTypeDependencies bundles collaborators for the service.
type TicketTypeDependencies struct {
	EventCatalog   repository.EventCatalog
	TicketTypeRepo repository.TicketTypeRepository
	TicketRepo     repository.TicketRepository
	Clock          clock.Clock
	Cache          *cache.AvailabilityCache
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Config         config.PurchaseConfig
}

// CreateTicketTypeInput describes a new sale category.
type CreateTicketTypeInput struct {
	EventID     string
	Name        string
	Description string
	Category    domain.TicketCategory
	Price       decimal.Decimal
	Currency    string
	ServiceFee  *decimal.Decimal
	Quantity    int
	MaxPerOrder *int
	SalesStart  time.Time
	SalesEnd    time.Time
	MinimumAge  *int
	HasSeating  bool
}

// UpdateTicketTypeInput lists admin edits. Nil fields are left unchanged.
type UpdateTicketTypeInput struct {
	Name             *string
	Description      *string
	Price            *decimal.Decimal
	ServiceFee       *decimal.Decimal
	ClearServiceFee  bool
	Quantity         *int
	MaxPerOrder      *int
	ClearMaxPerOrder bool
	SalesStart       *time.Time
	SalesEnd         *time.Time
	MinimumAge       *int
}

// ReconciliationReport compares the sold counter with the issued tickets.
type ReconciliationReport struct {
	TicketTypeID  string `json:"ticket_type_id"`
	Quantity      int    `json:"quantity"`
	Sold          int    `json:"sold"`
	ActiveTickets int    `json:"active_tickets"`
	// UnbackedSeats counts sold seats without a live ticket, i.e. cancelled
	// tickets plus seats lost to failed issuance.
	UnbackedSeats int      `json:"unbacked_seats"`
	Consistent    bool     `json:"consistent"`
	Violations    []string `json:"violations"`
}

// NewTicketTypeService constructs the service.
func NewTicketTypeService(deps TicketTypeDependencies) *TicketTypeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := orRealClock(deps.Clock)
	return &TicketTypeService{
		events:      deps.EventCatalog,
		ticketTypes: deps.TicketTypeRepo,
		tickets:     deps.TicketRepo,
		clock:       clk,
		cache:       deps.Cache,
		logger:      logger,
		retrier:     newCASRetrier(deps.Config, deps.Metrics),
		publisher:   publisher{dispatcher: deps.Dispatcher, clock: clk, logger: logger},
	}
}

// CreateTicketType validates input against the owning event and stores a new
// ticket type with nothing sold.
func (s *TicketTypeService) CreateTicketType(ctx context.Context, input CreateTicketTypeInput) (*domain.TicketType, error) {
	if strings.TrimSpace(input.EventID) == "" {
		return nil, apperrors.NewValidationError("event_id is required", nil)
	}
	if _, err := s.events.GetByID(ctx, input.EventID); err != nil {
		return nil, notFound(err, "event", input.EventID)
	}

	if input.Category == "" {
		input.Category = domain.TicketCategoryGeneral
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tt := &domain.TicketType{
		ID:          uuid.NewString(),
		EventID:     input.EventID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		Price:       input.Price,
		Currency:    strings.ToUpper(input.Currency),
		ServiceFee:  input.ServiceFee,
		MinimumAge:  input.MinimumAge,
		HasSeating:  input.HasSeating,
	}
	if err := tt.SetQuantity(input.Quantity, now); err != nil {
		return nil, err
	}
	if err := tt.SetMaxPerOrder(input.MaxPerOrder); err != nil {
		return nil, err
	}
	if err := tt.SetSalesWindow(input.SalesStart, input.SalesEnd, now); err != nil {
		return nil, err
	}

	if err := s.ticketTypes.Create(ctx, tt); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("ticket type already exists", map[string]any{"id": tt.ID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketTypeCreated,
		TicketTypeID: tt.ID,
		Payload: events.TicketTypeCreatedPayload{
			EventID:  tt.EventID,
			Name:     tt.Name,
			Category: tt.Category,
			Quantity: tt.Quantity,
			Price:    tt.Price,
			Currency: tt.Currency,
		},
	})
	return tt, nil
}

func validateCreate(input CreateTicketTypeInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if !input.Category.Valid() {
		details["category"] = "unknown category"
	}
	if input.Price.IsNegative() {
		details["price"] = "must not be negative"
	}
	if !currencyPattern.MatchString(strings.ToUpper(input.Currency)) {
		details["currency"] = "must be a three-letter ISO 4217 code"
	}
	if input.ServiceFee != nil && input.ServiceFee.IsNegative() {
		details["service_fee"] = "must not be negative"
	}
	if input.MinimumAge != nil && *input.MinimumAge < 0 {
		details["minimum_age"] = "must not be negative"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket type", details)
	}
	return nil
}

// GetTicketType loads a ticket type with its status derived now.
func (s *TicketTypeService) GetTicketType(ctx context.Context, id string) (*domain.TicketType, error) {
	tt, err := s.ticketTypes.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "ticket type", id)
	}
	tt.Refresh(s.clock.Now())
	return tt, nil
}

// ListByEvent returns the ticket types of an event.
func (s *TicketTypeService) ListByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, notFound(err, "event", eventID)
	}
	list, err := s.ticketTypes.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := s.clock.Now()
	for i := range list {
		list[i].Refresh(now)
	}
	return list, nil
}

// UpdateTicketType applies admin edits under the same optimistic discipline as
// purchases, so an edit never overwrites a concurrent sale.
func (s *TicketTypeService) UpdateTicketType(ctx context.Context, id string, input UpdateTicketTypeInput) (*domain.TicketType, error) {
	var updated *domain.TicketType
	_, err := s.retrier.run(ctx, func(ctx context.Context) error {
		tt, err := s.ticketTypes.GetByID(ctx, id)
		if err != nil {
			return notFound(err, "ticket type", id)
		}
		if tt.Cancelled {
			return apperrors.NewValidationError("cancelled ticket types cannot be edited", map[string]any{"id": id})
		}
		expected := tt.Version
		if err := applyUpdate(tt, input, s.clock.Now()); err != nil {
			return err
		}
		if err := s.ticketTypes.UpdateIfVersion(ctx, tt, expected); err != nil {
			return err
		}
		updated = tt
		return nil
	})
	if err != nil {
		return nil, s.writeError(err, id)
	}

	s.refreshCache(ctx, updated)
	s.publish(ctx, events.Event{
		Type:         events.EventTicketTypeUpdated,
		TicketTypeID: id,
		Payload: events.TicketTypeUpdatedPayload{
			Version:  updated.Version,
			Quantity: updated.Quantity,
			Status:   updated.Status,
		},
	})
	return updated, nil
}

func applyUpdate(tt *domain.TicketType, input UpdateTicketTypeInput, now time.Time) error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return apperrors.NewValidationError("name must not be empty", nil)
		}
		tt.Name = name
	}
	if input.Description != nil {
		tt.Description = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return apperrors.NewValidationError("price must not be negative", nil)
		}
		tt.Price = *input.Price
	}
	switch {
	case input.ClearServiceFee:
		tt.ServiceFee = nil
	case input.ServiceFee != nil:
		if input.ServiceFee.IsNegative() {
			return apperrors.NewValidationError("service_fee must not be negative", nil)
		}
		fee := *input.ServiceFee
		tt.ServiceFee = &fee
	}
	if input.Quantity != nil {
		if err := tt.SetQuantity(*input.Quantity, now); err != nil {
			return err
		}
	}
	switch {
	case input.ClearMaxPerOrder:
		_ = tt.SetMaxPerOrder(nil)
	case input.MaxPerOrder != nil:
		limit := *input.MaxPerOrder
		if err := tt.SetMaxPerOrder(&limit); err != nil {
			return err
		}
	}
	if input.SalesStart != nil || input.SalesEnd != nil {
		start, end := tt.SalesStart, tt.SalesEnd
		if input.SalesStart != nil {
			start = *input.SalesStart
		}
		if input.SalesEnd != nil {
			end = *input.SalesEnd
		}
		if err := tt.SetSalesWindow(start, end, now); err != nil {
			return err
		}
	}
	if input.MinimumAge != nil {
		if *input.MinimumAge < 0 {
			return apperrors.NewValidationError("minimum_age must not be negative", nil)
		}
		age := *input.MinimumAge
		tt.MinimumAge = &age
	}
	tt.Refresh(now)
	return nil
}

// CancelTicketType stops all further sales. It reports false when the type was
// already cancelled. Issued tickets are untouched.
func (s *TicketTypeService) CancelTicketType(ctx context.Context, id string) (*domain.TicketType, bool, error) {
	var (
		result  *domain.TicketType
		changed bool
	)
	_, err := s.retrier.run(ctx, func(ctx context.Context) error {
		tt, err := s.ticketTypes.GetByID(ctx, id)
		if err != nil {
			return notFound(err, "ticket type", id)
		}
		expected := tt.Version
		if !tt.Cancel(s.clock.Now()) {
			result, changed = tt, false
			return nil
		}
		if err := s.ticketTypes.UpdateIfVersion(ctx, tt, expected); err != nil {
			return err
		}
		result, changed = tt, true
		return nil
	})
	if err != nil {
		return nil, false, s.writeError(err, id)
	}
	if changed {
		s.refreshCache(ctx, result)
		s.publish(ctx, events.Event{
			Type:         events.EventTicketTypeCancelled,
			TicketTypeID: id,
			Payload:      events.TicketTypeCancelledPayload{Sold: result.Sold},
		})
	}
	return result, changed, nil
}

// Availability reports inventory counters with the status derived at read
// time. Counters may come from the cache; they lag only when a write failed to refresh it.
func (s *TicketTypeService) Availability(ctx context.Context, id string) (domain.Availability, error) {
	now := s.clock.Now()
	in, hit, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("availability cache read failed", zap.String("ticket_type_id", id), zap.Error(err))
	}
	if hit {
		tt := domain.TicketType{
			ID:         id,
			Quantity:   in.Quantity,
			Sold:       in.Sold,
			SalesStart: in.SalesStart,
			SalesEnd:   in.SalesEnd,
			Cancelled:  in.Cancelled,
		}
		return tt.AvailabilityAt(now), nil
	}

	tt, err := s.ticketTypes.GetByID(ctx, id)
	if err != nil {
		return domain.Availability{}, notFound(err, "ticket type", id)
	}
	s.refreshCache(ctx, tt)
	return tt.AvailabilityAt(now), nil
}

// Reconcile checks the relationship between sold and the issued tickets.
func (s *TicketTypeService) Reconcile(ctx context.Context, id string) (ReconciliationReport, error) {
	tt, err := s.ticketTypes.GetByID(ctx, id)
	if err != nil {
		return ReconciliationReport{}, notFound(err, "ticket type", id)
	}
	active, err := s.tickets.CountActiveByTicketType(ctx, id)
	if err != nil {
		return ReconciliationReport{}, apperrors.NewInternalError(err)
	}

	report := ReconciliationReport{
		TicketTypeID:  id,
		Quantity:      tt.Quantity,
		Sold:          tt.Sold,
		ActiveTickets: active,
		UnbackedSeats: max(tt.Sold-active, 0),
		Violations:    []string{},
	}
	if tt.Sold > tt.Quantity {
		report.Violations = append(report.Violations, "sold exceeds quantity")
	}
	if tt.Sold < 0 {
		report.Violations = append(report.Violations, "sold is negative")
	}
	if active > tt.Sold {
		report.Violations = append(report.Violations, "active tickets exceed sold")
	}
	report.Consistent = len(report.Violations) == 0
	if !report.Consistent {
		s.logger.Error("inventory reconciliation failed",
			zap.String("ticket_type_id", id),
			zap.Int("quantity", tt.Quantity),
			zap.Int("sold", tt.Sold),
			zap.Int("active_tickets", active),
			zap.Strings("violations", report.Violations))
	}
	return report, nil
}

func (s *TicketTypeService) writeError(err error, id string) error {
	switch {
	case errors.Is(err, errRetriesExhausted):
		return apperrors.NewConflict("ticket type was modified concurrently, retry the request", map[string]any{"id": id})
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket type", map[string]any{"id": id})
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return err
	}
	return apperrors.NewInternalError(err)
}

// refreshCache stores a committed or freshly loaded snapshot. Older versions
// never replace newer ones.
func (s *TicketTypeService) refreshCache(ctx context.Context, tt *domain.TicketType) {
	if _, err := s.cache.Set(ctx, tt); err != nil {
		s.logger.Warn("availability cache write failed",
			zap.String("ticket_type_id", tt.ID),
			zap.Int64("version", tt.Version),
			zap.Error(err))
	}
}
