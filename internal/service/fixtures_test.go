package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-inventory/internal/clock"
	"github.com/spec-kit/ticket-inventory/internal/config"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/events"
	"github.com/spec-kit/ticket-inventory/internal/repository/memory"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	clock      *clock.Fake
	dispatcher events.Dispatcher
	recorder   *eventRecorder
	eventID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:      store,
		clock:      clock.NewFake(baseTime),
		dispatcher: events.NewInMemoryDispatcher(),
		recorder:   &eventRecorder{},
		eventID:    "event-1",
	}
	store.PutEvent(domain.Event{
		ID:       f.eventID,
		Name:     "GopherCon",
		StartsAt: baseTime.Add(30 * 24 * time.Hour),
		EndsAt:   baseTime.Add(32 * 24 * time.Hour),
		Active:   true,
	})
	events.SubscribeAll(f.dispatcher, f.recorder.handle)
	return f
}

func (f *fixture) purchaseConfig() config.PurchaseConfig {
	return config.PurchaseConfig{MaxAttempts: 8, RetryBackoffMS: 0}
}

func (f *fixture) coordinator() *PurchaseCoordinator {
	return NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: f.store.TicketTypes(),
		TicketRepo:     f.store.Tickets(),
		Transactor:     f.store,
		Clock:          f.clock,
		Dispatcher:     f.dispatcher,
		Config:         f.purchaseConfig(),
	})
}

func (f *fixture) ticketTypeService() *TicketTypeService {
	return NewTicketTypeService(TicketTypeDependencies{
		EventCatalog:   f.store.Events(),
		TicketTypeRepo: f.store.TicketTypes(),
		TicketRepo:     f.store.Tickets(),
		Clock:          f.clock,
		Dispatcher:     f.dispatcher,
		Config:         f.purchaseConfig(),
	})
}

func (f *fixture) ticketService() *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo: f.store.Tickets(),
		Clock:      f.clock,
		Dispatcher: f.dispatcher,
	})
}

// seedTicketType stores a ticket type on sale around baseTime.
func (f *fixture) seedTicketType(t *testing.T, id string, quantity, sold int, mutate ...func(*domain.TicketType)) *domain.TicketType {
	t.Helper()
	tt := &domain.TicketType{
		ID:         id,
		EventID:    f.eventID,
		Name:       "General Admission",
		Category:   domain.TicketCategoryGeneral,
		Price:      decimal.RequireFromString("49.00"),
		Currency:   "EUR",
		Quantity:   quantity,
		Sold:       sold,
		SalesStart: baseTime.Add(-time.Hour),
		SalesEnd:   baseTime.Add(24 * time.Hour),
	}
	for _, m := range mutate {
		m(tt)
	}
	tt.Refresh(f.clock.Now())
	require.NoError(t, f.store.TicketTypes().Create(context.Background(), tt))
	return tt
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (f *fixture) eventsOfType(typ events.EventType) []events.Event {
	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	var out []events.Event
	for _, e := range f.recorder.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }
