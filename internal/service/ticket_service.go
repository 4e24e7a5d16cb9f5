package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-inventory/internal/clock"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/events"
	"github.com/spec-kit/ticket-inventory/internal/observability"
	"github.com/spec-kit/ticket-inventory/internal/repository"
	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

// Check-in results reported to metrics.
const (
	checkInAdmitted = "admitted"
	checkInRejected = "rejected"
	checkInUnknown  = "unknown"
)

// TicketService coordinates the redemption lifecycle of issued tickets.
type TicketService struct {
	tickets repository.TicketRepository
	clock   clock.Clock
	metrics *observability.Metrics
	logger  *zap.Logger
	publisher
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := orRealClock(deps.Clock)
	return &TicketService{
		tickets:   deps.TicketRepo,
		clock:     clk,
		metrics:   deps.Metrics,
		logger:    logger,
		publisher: publisher{dispatcher: deps.Dispatcher, clock: clk, logger: logger},
	}
}

// CheckIn redeems the ticket with the given code. It returns false without an
// error when the ticket was already used or is no longer valid.
func (s *TicketService) CheckIn(ctx context.Context, ticketCode string) (bool, error) {
	code := domain.NormalizeTicketCode(ticketCode)
	if code == "" {
		return false, apperrors.NewValidationError("ticket_code is required", nil)
	}
	ticket, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordCheckIn(checkInUnknown)
		}
		return false, notFound(err, "ticket", code)
	}

	if !ticket.CheckIn(s.clock.Now()) {
		s.metrics.RecordCheckIn(checkInRejected)
		return false, nil
	}
	updated, err := s.tickets.UpdateStatusIf(ctx, ticket, domain.TicketStatusValid)
	if err != nil {
		return false, apperrors.NewInternalError(err)
	}
	if !updated {
		// A concurrent scan or cancellation got there first.
		s.metrics.RecordCheckIn(checkInRejected)
		return false, nil
	}

	s.metrics.RecordCheckIn(checkInAdmitted)
	s.publish(ctx, events.Event{
		Type:         events.EventTicketCheckedIn,
		TicketTypeID: ticket.TicketTypeID,
		Payload: events.TicketCheckedInPayload{
			TicketID:   ticket.ID,
			TicketCode: ticket.TicketCode,
		},
	})
	return true, nil
}

// CancelTicket voids a VALID ticket. The seat is not returned to inventory.
func (s *TicketService) CancelTicket(ctx context.Context, ticketID string) (bool, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, notFound(err, "ticket", ticketID)
	}
	if !ticket.Cancel(s.clock.Now()) {
		return false, nil
	}
	updated, err := s.tickets.UpdateStatusIf(ctx, ticket, domain.TicketStatusValid)
	if err != nil {
		return false, apperrors.NewInternalError(err)
	}
	if !updated {
		return false, nil
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketCancelled,
		TicketTypeID: ticket.TicketTypeID,
		Payload: events.TicketCancelledPayload{
			TicketID: ticket.ID,
			OwnerID:  ticket.OwnerID,
		},
	})
	return true, nil
}

// GetTicket loads one ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", ticketID)
	}
	return ticket, nil
}

// ListByOwner pages through a purchaser's tickets, newest first.
func (s *TicketService) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.NewValidationError("owner is required", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.tickets.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return list, nil
}

// ExpireEnded marks every unused ticket of a finished event as EXPIRED.
func (s *TicketService) ExpireEnded(ctx context.Context) (int, error) {
	count, err := s.tickets.ExpireForEndedEvents(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.metrics.RecordTicketsExpired(count)
		s.publish(ctx, events.Event{
			Type:    events.EventTicketsExpired,
			Payload: events.TicketsExpiredPayload{Count: count},
		})
	}
	return count, nil
}
