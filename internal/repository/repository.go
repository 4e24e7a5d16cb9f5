package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict is returned when a conditional update lost a race.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// EventCatalog resolves the events ticket types belong to.
type EventCatalog interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)
}

// TicketTypeRepository persists inventory aggregates.
type TicketTypeRepository interface {
	Create(ctx context.Context, ticketType *domain.TicketType) error
	GetByID(ctx context.Context, id string) (*domain.TicketType, error)
	ListByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
	// UpdateIfVersion writes the aggregate only if the stored version still equals
	// expectedVersion, then bumps ticketType.Version. It returns ErrVersionConflict otherwise.
	UpdateIfVersion(ctx context.Context, ticketType *domain.TicketType, expectedVersion int64) error
}

// TicketRepository persists issued tickets.
type TicketRepository interface {
	CreateBatch(ctx context.Context, tickets []*domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error)
	// UpdateStatusIf persists the ticket's lifecycle fields only while the stored
	// status is still from. It reports whether a row changed.
	UpdateStatusIf(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) (bool, error)
	CountActiveByTicketType(ctx context.Context, ticketTypeID string) (int, error)
	// ExpireForEndedEvents moves VALID tickets of events that ended before now to EXPIRED.
	ExpireForEndedEvents(ctx context.Context, now time.Time) (int, error)
}

// Transactor runs fn in one atomic unit of work. Repositories called with the
// context handed to fn take part in the transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
