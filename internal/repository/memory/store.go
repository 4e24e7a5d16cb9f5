// Package memory provides an in-process implementation of the repository
// interfaces. It backs local development without Postgres and the
// concurrency tests of the purchase path.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/repository"
)

type txKey struct{}

type memTx struct {
	undo []func()
}

// Store keeps events, ticket types and tickets in maps.
type Store struct {
	// txMu serializes units of work and standalone writes.
	txMu sync.Mutex
	mu   sync.RWMutex

	events      map[string]domain.Event
	ticketTypes map[string]domain.TicketType
	tickets     map[string]domain.Ticket
	codes       map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		events:      make(map[string]domain.Event),
		ticketTypes: make(map[string]domain.TicketType),
		tickets:     make(map[string]domain.Ticket),
		codes:       make(map[string]string),
	}
}

// PutEvent registers a catalog event.
func (s *Store) PutEvent(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

// Events exposes the store as an EventCatalog.
func (s *Store) Events() repository.EventCatalog { return eventCatalog{s} }

// TicketTypes exposes the store as a TicketTypeRepository.
func (s *Store) TicketTypes() repository.TicketTypeRepository { return ticketTypes{s} }

// Tickets exposes the store as a TicketRepository.
func (s *Store) Tickets() repository.TicketRepository { return tickets{s} }

// WithTx runs fn atomically: writes made through ctx are undone when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// mutate applies fn under the write lock. Inside a transaction the returned undo
// is recorded for rollback.
func (s *Store) mutate(ctx context.Context, fn func() (undo func(), err error)) error {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		s.mu.Lock()
		undo, err := fn()
		s.mu.Unlock()
		if err == nil && undo != nil {
			tx.undo = append(tx.undo, undo)
		}
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fn()
	return err
}

type eventCatalog struct{ s *Store }

func (c eventCatalog) GetByID(_ context.Context, id string) (*domain.Event, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	event, ok := c.s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &event, nil
}

type ticketTypes struct{ s *Store }

func (r ticketTypes) Create(ctx context.Context, tt *domain.TicketType) error {
	return r.s.mutate(ctx, func() (func(), error) {
		if _, exists := r.s.ticketTypes[tt.ID]; exists {
			return nil, repository.ErrDuplicate
		}
		now := time.Now().UTC()
		if tt.Version == 0 {
			tt.Version = 1
		}
		tt.CreatedAt, tt.UpdatedAt = now, now
		r.s.ticketTypes[tt.ID] = *tt
		id := tt.ID
		return func() { delete(r.s.ticketTypes, id) }, nil
	})
}

func (r ticketTypes) GetByID(_ context.Context, id string) (*domain.TicketType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tt, ok := r.s.ticketTypes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tt, nil
}

func (r ticketTypes) ListByEvent(_ context.Context, eventID string) ([]domain.TicketType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.TicketType{}
	for _, tt := range r.s.ticketTypes {
		if tt.EventID == eventID {
			result = append(result, tt)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SalesStart.Equal(result[j].SalesStart) {
			return result[i].SalesStart.Before(result[j].SalesStart)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (r ticketTypes) UpdateIfVersion(ctx context.Context, tt *domain.TicketType, expectedVersion int64) error {
	return r.s.mutate(ctx, func() (func(), error) {
		current, ok := r.s.ticketTypes[tt.ID]
		if !ok {
			return nil, repository.ErrNotFound
		}
		if current.Version != expectedVersion {
			return nil, repository.ErrVersionConflict
		}
		tt.Version = expectedVersion + 1
		tt.UpdatedAt = time.Now().UTC()
		tt.CreatedAt = current.CreatedAt
		r.s.ticketTypes[tt.ID] = *tt
		return func() { r.s.ticketTypes[current.ID] = current }, nil
	})
}

type tickets struct{ s *Store }

func (r tickets) CreateBatch(ctx context.Context, batch []*domain.Ticket) error {
	return r.s.mutate(ctx, func() (func(), error) {
		seen := make(map[string]struct{}, len(batch))
		for _, t := range batch {
			if _, exists := r.s.tickets[t.ID]; exists {
				return nil, repository.ErrDuplicate
			}
			if _, exists := r.s.codes[t.TicketCode]; exists {
				return nil, repository.ErrDuplicate
			}
			if _, dup := seen[t.TicketCode]; dup {
				return nil, repository.ErrDuplicate
			}
			seen[t.TicketCode] = struct{}{}
		}
		for _, t := range batch {
			r.s.tickets[t.ID] = *t
			r.s.codes[t.TicketCode] = t.ID
		}
		return func() {
			for _, t := range batch {
				delete(r.s.tickets, t.ID)
				delete(r.s.codes, t.TicketCode)
			}
		}, nil
	})
}

func (r tickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r tickets) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	id, ok := r.s.codes[code]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r tickets) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.s.mu.RLock()
	owned := []domain.Ticket{}
	for _, t := range r.s.tickets {
		if t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].PurchaseDate.Equal(owned[j].PurchaseDate) {
			return owned[i].PurchaseDate.After(owned[j].PurchaseDate)
		}
		return owned[i].ID < owned[j].ID
	})
	if offset >= len(owned) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (r tickets) UpdateStatusIf(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) (bool, error) {
	updated := false
	err := r.s.mutate(ctx, func() (func(), error) {
		current, ok := r.s.tickets[ticket.ID]
		if !ok || current.Status != from {
			return nil, nil
		}
		next := current
		next.Status = ticket.Status
		next.CheckedIn = ticket.CheckedIn
		next.CheckedInAt = ticket.CheckedInAt
		next.UpdatedAt = ticket.UpdatedAt
		r.s.tickets[ticket.ID] = next
		updated = true
		return func() { r.s.tickets[current.ID] = current }, nil
	})
	return updated, err
}

func (r tickets) CountActiveByTicketType(_ context.Context, ticketTypeID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, t := range r.s.tickets {
		if t.TicketTypeID == ticketTypeID && t.Active() {
			count++
		}
	}
	return count, nil
}

func (r tickets) ExpireForEndedEvents(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	err := r.s.mutate(ctx, func() (func(), error) {
		var previous []domain.Ticket
		for id, t := range r.s.tickets {
			tt, ok := r.s.ticketTypes[t.TicketTypeID]
			if !ok {
				continue
			}
			event, ok := r.s.events[tt.EventID]
			if !ok || !event.Ended(now) {
				continue
			}
			before := t
			if t.Expire(now) {
				r.s.tickets[id] = t
				previous = append(previous, before)
				expired++
			}
		}
		return func() {
			for _, t := range previous {
				r.s.tickets[t.ID] = t
			}
		}, nil
	})
	return expired, err
}
