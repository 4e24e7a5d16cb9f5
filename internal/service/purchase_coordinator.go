package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

// PurchaseCoordinator sells seats without overselling. Each attempt reads a
// versioned snapshot, validates it, and commits the new sold count only if the
// version is unchanged; losers reload and try again.
type PurchaseCoordinator struct {
	ticketTypes repository.TicketTypeRepository
	tickets     repository.TicketRepository
	tx          repository.Transactor
	codes       domain.CodeGenerator
	clock       clock.Clock
	cache       *cache.AvailabilityCache
	metrics     *observability.Metrics
	logger      *zap.Logger
	retrier     casRetrier
	publisher
}

// PurchaseDependencies bundles collaborators for the coordinator.
type PurchaseDependencies struct {
	TicketTypeRepo repository.TicketTypeRepository
	TicketRepo     repository.TicketRepository
	// Transactor is optional. Without it the inventory commit and the ticket
	// inserts are separate writes.
	Transactor repository.Transactor
	Codes      domain.CodeGenerator
	Clock      clock.Clock
	Cache      *cache.AvailabilityCache
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.PurchaseConfig
}

// NewPurchaseCoordinator constructs the coordinator.
func NewPurchaseCoordinator(deps PurchaseDependencies) *PurchaseCoordinator {
	codes := deps.Codes
	if codes == nil {
		codes = domain.UUIDCodeGenerator{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := orRealClock(deps.Clock)
	return &PurchaseCoordinator{
		ticketTypes: deps.TicketTypeRepo,
		tickets:     deps.TicketRepo,
		tx:          deps.Transactor,
		codes:       codes,
		clock:       clk,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      logger,
		retrier:     newCASRetrier(deps.Config, deps.Metrics),
		publisher:   publisher{dispatcher: deps.Dispatcher, clock: clk, logger: logger},
	}
}

// Purchase buys quantity seats of a ticket type for purchaserID and returns the
// IDs of the issued tickets.
func (c *PurchaseCoordinator) Purchase(ctx context.Context, ticketTypeID string, quantity int, purchaserID string) ([]string, error) {
	ids, err := c.purchase(ctx, ticketTypeID, quantity, purchaserID)
	c.record(err)
	return ids, err
}

func (c *PurchaseCoordinator) purchase(ctx context.Context, ticketTypeID string, quantity int, purchaserID string) ([]string, error) {
	if quantity < 1 {
		return nil, apperrors.NewValidationError("requested quantity must be at least 1", map[string]any{"requested": quantity})
	}
	if strings.TrimSpace(purchaserID) == "" {
		return nil, apperrors.NewValidationError("purchaser is required", nil)
	}

	var (
		issued    []*domain.Ticket
		committed *domain.TicketType
	)
	attempts, err := c.retrier.run(ctx, func(ctx context.Context) error {
		tt, tickets, err := c.attempt(ctx, ticketTypeID, quantity, purchaserID)
		if err != nil {
			return err
		}
		issued, committed = tickets, tt
		return nil
	})
	if errors.Is(err, errRetriesExhausted) {
		return nil, apperrors.NewConflict("ticket type is under heavy contention, retry the purchase", map[string]any{
			"ticket_type_id": ticketTypeID,
			"attempts":       attempts,
		})
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(issued))
	for i, t := range issued {
		ids[i] = t.ID
	}
	c.metrics.RecordTicketsIssued(len(ids))
	c.refreshCache(ctx, committed)
	c.publish(ctx, events.Event{
		Type:         events.EventTicketsPurchased,
		TicketTypeID: ticketTypeID,
		Payload: events.TicketsPurchasedPayload{
			PurchaserID: purchaserID,
			Quantity:    quantity,
			TicketIDs:   ids,
			Sold:        committed.Sold,
			Attempts:    attempts,
		},
	})
	return ids, nil
}

// attempt performs one read-validate-commit round. It returns
// repository.ErrVersionConflict when another writer committed first.
func (c *PurchaseCoordinator) attempt(ctx context.Context, ticketTypeID string, quantity int, purchaserID string) (*domain.TicketType, []*domain.Ticket, error) {
	tt, err := c.ticketTypes.GetByID(ctx, ticketTypeID)
	if err != nil {
		return nil, nil, notFound(err, "ticket type", ticketTypeID)
	}
	expected := tt.Version
	now := c.clock.Now()
	if err := tt.Purchase(quantity, now); err != nil {
		return nil, nil, err
	}

	tickets := make([]*domain.Ticket, quantity)
	for i := range tickets {
		tickets[i] = domain.NewTicket(tt.ID, purchaserID, c.codes, now)
	}

	if c.tx != nil {
		err := c.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := c.ticketTypes.UpdateIfVersion(ctx, tt, expected); err != nil {
				return err
			}
			if err := c.tickets.CreateBatch(ctx, tickets); err != nil {
				return fmt.Errorf("issue tickets: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, nil, c.commitError(err, ticketTypeID)
		}
		return tt, tickets, nil
	}

	if err := c.ticketTypes.UpdateIfVersion(ctx, tt, expected); err != nil {
		return nil, nil, c.commitError(err, ticketTypeID)
	}
	if err := c.tickets.CreateBatch(ctx, tickets); err != nil {
		return nil, nil, c.inconsistency(ctx, tt, quantity, purchaserID, err)
	}
	return tt, tickets, nil
}

func (c *PurchaseCoordinator) commitError(err error, ticketTypeID string) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket type", map[string]any{"id": ticketTypeID})
	default:
		return apperrors.NewInternalError(err)
	}
}

// inconsistency reports seats that were committed with no tickets behind them.
// The sold counter is left as is; fixing it needs an operator.
func (c *PurchaseCoordinator) inconsistency(ctx context.Context, tt *domain.TicketType, quantity int, purchaserID string, cause error) error {
	c.logger.Error("inventory committed but ticket issuance failed",
		zap.String("ticket_type_id", tt.ID),
		zap.Int64("version", tt.Version),
		zap.Int("quantity", quantity),
		zap.String("purchaser_id", purchaserID),
		zap.Error(cause))
	c.refreshCache(ctx, tt)
	c.publish(ctx, events.Event{
		Type:         events.EventInventoryInconsistency,
		TicketTypeID: tt.ID,
		Payload: events.InventoryInconsistencyPayload{
			PurchaserID: purchaserID,
			Quantity:    quantity,
			Version:     tt.Version,
			Error:       cause.Error(),
		},
	})
	return apperrors.NewInconsistency("seats were reserved but tickets could not be issued", map[string]any{
		"ticket_type_id": tt.ID,
		"quantity":       quantity,
		"version":        tt.Version,
	}, cause)
}

func (c *PurchaseCoordinator) refreshCache(ctx context.Context, tt *domain.TicketType) {
	if _, err := c.cache.Set(ctx, tt); err != nil {
		c.logger.Warn("availability cache write failed",
			zap.String("ticket_type_id", tt.ID),
			zap.Int64("version", tt.Version),
			zap.Error(err))
	}
}

func (c *PurchaseCoordinator) record(err error) {
	switch {
	case err == nil:
		c.metrics.RecordPurchase(observability.OutcomeSuccess, "")
	case errors.Is(err, apperrors.ErrSoldOut):
		reason, _ := apperrors.SoldOutReason(err)
		c.metrics.RecordPurchase(observability.OutcomeSoldOut, reason)
	case errors.Is(err, apperrors.ErrInvalidArgument):
		c.metrics.RecordPurchase(observability.OutcomeInvalid, "")
	case errors.Is(err, apperrors.ErrNotFound):
		c.metrics.RecordPurchase(observability.OutcomeNotFound, "")
	case errors.Is(err, apperrors.ErrConflict):
		c.metrics.RecordPurchase(observability.OutcomeConflict, "")
	case errors.Is(err, apperrors.ErrInconsistency):
		c.metrics.RecordPurchase(observability.OutcomeInconsistency, "")
	default:
		c.metrics.RecordPurchase(observability.OutcomeError, "")
	}
}
