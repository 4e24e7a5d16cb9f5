package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-inventory/internal/config"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/events"
	"github.com/spec-kit/ticket-inventory/internal/repository"
	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

type mockTicketTypeRepo struct {
	mock.Mock
}

func (m *mockTicketTypeRepo) Create(ctx context.Context, tt *domain.TicketType) error {
	return m.Called(ctx, tt).Error(0)
}

func (m *mockTicketTypeRepo) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	args := m.Called(ctx, id)
	tt, _ := args.Get(0).(*domain.TicketType)
	return tt, args.Error(1)
}

func (m *mockTicketTypeRepo) ListByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	args := m.Called(ctx, eventID)
	list, _ := args.Get(0).([]domain.TicketType)
	return list, args.Error(1)
}

func (m *mockTicketTypeRepo) UpdateIfVersion(ctx context.Context, tt *domain.TicketType, expected int64) error {
	return m.Called(ctx, tt, expected).Error(0)
}

// racingTicketTypes loses the first `lose` conditional updates as if another
// writer had committed first.
type racingTicketTypes struct {
	repository.TicketTypeRepository
	lose    int32
	updates atomic.Int32
}

func (r *racingTicketTypes) UpdateIfVersion(ctx context.Context, tt *domain.TicketType, expected int64) error {
	if r.updates.Add(1) <= r.lose {
		return repository.ErrVersionConflict
	}
	return r.TicketTypeRepository.UpdateIfVersion(ctx, tt, expected)
}

type failingTickets struct {
	repository.TicketRepository
	err error
}

func (f failingTickets) CreateBatch(context.Context, []*domain.Ticket) error {
	return f.err
}

func TestPurchase_IssuesOneTicketPerSeat(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	ctx := context.Background()

	ids, err := f.coordinator().Purchase(ctx, "tt-1", 3, "attendee-1")
	require.NoError(t, err)
	require.Len(t, ids, 3)

	tt, err := f.store.TicketTypes().GetByID(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, tt.Sold)
	assert.Equal(t, int64(2), tt.Version)

	owned, err := f.store.Tickets().ListByOwner(ctx, "attendee-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, owned, 3)
	codes := map[string]struct{}{}
	for _, ticket := range owned {
		assert.Equal(t, "tt-1", ticket.TicketTypeID)
		assert.Equal(t, domain.TicketStatusValid, ticket.Status)
		assert.False(t, ticket.CheckedIn)
		assert.Equal(t, baseTime, ticket.PurchaseDate)
		codes[ticket.TicketCode] = struct{}{}
	}
	assert.Len(t, codes, 3)

	purchased := f.eventsOfType(events.EventTicketsPurchased)
	require.Len(t, purchased, 1)
	payload := purchased[0].Payload.(events.TicketsPurchasedPayload)
	assert.ElementsMatch(t, ids, payload.TicketIDs)
	assert.Equal(t, 3, payload.Sold)
	assert.Equal(t, 1, payload.Attempts)
}

func TestPurchase_TwoConcurrentBuyersOverlap(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	coordinator := f.coordinator()

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coordinator.Purchase(context.Background(), "tt-1", 6, "attendee")
		}(i)
	}
	wg.Wait()

	var succeeded, soldOut int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrSoldOut):
			reason, _ := apperrors.SoldOutReason(err)
			assert.Equal(t, domain.SoldOutInsufficientRemaining, reason)
			soldOut++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, soldOut)

	tt, err := f.store.TicketTypes().GetByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 6, tt.Sold)
}

func TestPurchase_LastSeatMakesTypeSoldOut(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 9)
	ctx := context.Background()

	_, err := f.coordinator().Purchase(ctx, "tt-1", 1, "attendee-1")
	require.NoError(t, err)

	availability, err := f.ticketTypeService().Availability(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, availability.Sold)
	assert.Equal(t, 0, availability.AvailableQuantity)
	assert.Equal(t, domain.TicketTypeStatusSoldOut, availability.Status)

	_, err = f.coordinator().Purchase(ctx, "tt-1", 1, "attendee-2")
	reason, ok := apperrors.SoldOutReason(err)
	require.True(t, ok)
	assert.Equal(t, domain.SoldOutInsufficientRemaining, reason)
}

func TestPurchase_SoldOutReasons(t *testing.T) {
	cases := []struct {
		name     string
		quantity int
		mutate   func(*domain.TicketType)
		request  int
		reason   string
	}{
		{
			name:     "over per-order limit",
			quantity: 100,
			mutate:   func(tt *domain.TicketType) { tt.MaxPerOrder = intPtr(4) },
			request:  5,
			reason:   domain.SoldOutPerOrderLimit,
		},
		{
			name:     "not yet on sale",
			quantity: 100,
			mutate: func(tt *domain.TicketType) {
				tt.SalesStart = baseTime.Add(time.Hour)
				tt.SalesEnd = baseTime.Add(48 * time.Hour)
			},
			request: 1,
			reason:  domain.SoldOutNotAvailable,
		},
		{
			name:     "sale ended",
			quantity: 100,
			mutate: func(tt *domain.TicketType) {
				tt.SalesStart = baseTime.Add(-48 * time.Hour)
				tt.SalesEnd = baseTime.Add(-time.Second)
			},
			request: 1,
			reason:  domain.SoldOutNotAvailable,
		},
		{
			name:     "cancelled",
			quantity: 100,
			mutate:   func(tt *domain.TicketType) { tt.Cancelled = true },
			request:  1,
			reason:   domain.SoldOutNotAvailable,
		},
		{
			name:     "zero quantity",
			quantity: 0,
			mutate:   func(*domain.TicketType) {},
			request:  1,
			reason:   domain.SoldOutInsufficientRemaining,
		},
		{
			name:     "not enough left",
			quantity: 3,
			mutate:   func(*domain.TicketType) {},
			request:  4,
			reason:   domain.SoldOutInsufficientRemaining,
		},
		{
			name:     "sold out and over per-order limit",
			quantity: 0,
			mutate:   func(tt *domain.TicketType) { tt.MaxPerOrder = intPtr(2) },
			request:  5,
			reason:   domain.SoldOutInsufficientRemaining,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedTicketType(t, "tt-1", tc.quantity, 0, tc.mutate)

			ids, err := f.coordinator().Purchase(context.Background(), "tt-1", tc.request, "attendee-1")
			assert.Nil(t, ids)
			require.ErrorIs(t, err, apperrors.ErrSoldOut)
			assert.False(t, apperrors.IsRetryable(err))
			reason, _ := apperrors.SoldOutReason(err)
			assert.Equal(t, tc.reason, reason)

			tt, err := f.store.TicketTypes().GetByID(context.Background(), "tt-1")
			require.NoError(t, err)
			assert.Equal(t, 0, tt.Sold)
			assert.Equal(t, int64(1), tt.Version)
		})
	}
}

func TestPurchase_NotYetOnSaleStatus(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0, func(tt *domain.TicketType) {
		tt.SalesStart = baseTime.Add(24 * time.Hour)
		tt.SalesEnd = baseTime.Add(48 * time.Hour)
	})

	availability, err := f.ticketTypeService().Availability(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketTypeStatusNotYetOnSale, availability.Status)
}

func TestPurchase_RejectsNonPositiveQuantityBeforeLoading(t *testing.T) {
	for _, qty := range []int{0, -1} {
		repo := &mockTicketTypeRepo{}
		coordinator := NewPurchaseCoordinator(PurchaseDependencies{
			TicketTypeRepo: repo,
			Config:         config.PurchaseConfig{MaxAttempts: 3},
		})

		_, err := coordinator.Purchase(context.Background(), "tt-1", qty, "attendee-1")
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "UpdateIfVersion", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestPurchase_UnknownTicketType(t *testing.T) {
	repo := &mockTicketTypeRepo{}
	repo.On("GetByID", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: repo,
		Config:         config.PurchaseConfig{MaxAttempts: 3},
	})

	_, err := coordinator.Purchase(context.Background(), "missing", 1, "attendee-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestPurchase_RetriesAfterLostRace(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	racing := &racingTicketTypes{TicketTypeRepository: f.store.TicketTypes(), lose: 2}
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: racing,
		TicketRepo:     f.store.Tickets(),
		Transactor:     f.store,
		Clock:          f.clock,
		Dispatcher:     f.dispatcher,
		Config:         config.PurchaseConfig{MaxAttempts: 5},
	})

	ids, err := coordinator.Purchase(context.Background(), "tt-1", 2, "attendee-1")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, int32(3), racing.updates.Load())

	purchased := f.eventsOfType(events.EventTicketsPurchased)
	require.Len(t, purchased, 1)
	assert.Equal(t, 3, purchased[0].Payload.(events.TicketsPurchasedPayload).Attempts)
}

func TestPurchase_ExhaustedRetriesReturnConflict(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	racing := &racingTicketTypes{TicketTypeRepository: f.store.TicketTypes(), lose: 1000}
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: racing,
		TicketRepo:     f.store.Tickets(),
		Transactor:     f.store,
		Clock:          f.clock,
		Config:         config.PurchaseConfig{MaxAttempts: 4},
	})

	_, err := coordinator.Purchase(context.Background(), "tt-1", 1, "attendee-1")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, int32(4), racing.updates.Load())

	tt, err := f.store.TicketTypes().GetByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, tt.Sold)
}

func TestPurchase_BackoffHonoursContext(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	racing := &racingTicketTypes{TicketTypeRepository: f.store.TicketTypes(), lose: 1000}
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: racing,
		TicketRepo:     f.store.Tickets(),
		Transactor:     f.store,
		Config:         config.PurchaseConfig{MaxAttempts: 10, RetryBackoffMS: 10_000},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coordinator.Purchase(ctx, "tt-1", 1, "attendee-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), racing.updates.Load())
}

func TestPurchase_TransactionRollsBackWhenIssuanceFails(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: f.store.TicketTypes(),
		TicketRepo:     failingTickets{TicketRepository: f.store.Tickets(), err: errors.New("disk full")},
		Transactor:     f.store,
		Clock:          f.clock,
		Dispatcher:     f.dispatcher,
		Config:         f.purchaseConfig(),
	})

	_, err := coordinator.Purchase(context.Background(), "tt-1", 2, "attendee-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInconsistency)
	assert.NotErrorIs(t, err, apperrors.ErrSoldOut)

	tt, err := f.store.TicketTypes().GetByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, tt.Sold)
	assert.Equal(t, int64(1), tt.Version)
	assert.Empty(t, f.eventsOfType(events.EventTicketsPurchased))
}

func TestPurchase_IssuanceFailureWithoutTransactionIsInconsistency(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: f.store.TicketTypes(),
		TicketRepo:     failingTickets{TicketRepository: f.store.Tickets(), err: errors.New("connection reset")},
		Clock:          f.clock,
		Dispatcher:     f.dispatcher,
		Config:         f.purchaseConfig(),
	})

	_, err := coordinator.Purchase(context.Background(), "tt-1", 2, "attendee-1")
	require.ErrorIs(t, err, apperrors.ErrInconsistency)
	assert.NotErrorIs(t, err, apperrors.ErrSoldOut)
	assert.False(t, apperrors.IsRetryable(err))

	// The committed seats stay sold until an operator reconciles them.
	tt, err := f.store.TicketTypes().GetByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Sold)

	inconsistencies := f.eventsOfType(events.EventInventoryInconsistency)
	require.Len(t, inconsistencies, 1)
	assert.Equal(t, "tt-1", inconsistencies[0].TicketTypeID)

	report, err := f.ticketTypeService().Reconcile(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.UnbackedSeats)
	assert.True(t, report.Consistent)
}

func TestPurchase_ConcurrentBuyersNeverOversell(t *testing.T) {
	const (
		quantity = 50
		buyers   = 40
	)
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", quantity, 0, func(tt *domain.TicketType) { tt.MaxPerOrder = intPtr(3) })
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: f.store.TicketTypes(),
		TicketRepo:     f.store.Tickets(),
		Transactor:     f.store,
		Clock:          f.clock,
		Config:         config.PurchaseConfig{MaxAttempts: 50, RetryBackoffMS: 1},
	})

	var (
		wg     sync.WaitGroup
		issued atomic.Int64
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 1 + rand.IntN(3)
			ids, err := coordinator.Purchase(context.Background(), "tt-1", n, "attendee")
			switch {
			case err == nil:
				assert.Len(t, ids, n)
				issued.Add(int64(len(ids)))
			case errors.Is(err, apperrors.ErrSoldOut), errors.Is(err, apperrors.ErrConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	tt, err := f.store.TicketTypes().GetByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, tt.Sold, quantity)
	assert.Equal(t, int64(tt.Sold), issued.Load())

	active, err := f.store.Tickets().CountActiveByTicketType(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, tt.Sold, active)

	owned, err := f.store.Tickets().ListByOwner(context.Background(), "attendee", 1000, 0)
	require.NoError(t, err)
	codes := map[string]struct{}{}
	for _, ticket := range owned {
		codes[ticket.TicketCode] = struct{}{}
	}
	assert.Len(t, codes, tt.Sold)
}

// stalledBroker accepts a connection and never acknowledges a write.
type stalledBroker struct{}

func (stalledBroker) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledBroker) Close() error { return nil }

func TestPurchase_StalledEventStreamDoesNotHoldResponse(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	stream := events.NewKafkaPublisher(stalledBroker{}, zap.NewNop(), events.KafkaPublisherConfig{
		BufferSize:   16,
		WriteTimeout: 50 * time.Millisecond,
	})
	stream.Register(f.dispatcher)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	began := time.Now()
	ids, err := f.coordinator().Purchase(ctx, "tt-1", 2, "attendee-1")
	elapsed := time.Since(began)

	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.NoError(t, ctx.Err())
	require.NoError(t, stream.Close())
}

func TestPurchase_SubscriberFailureIsLoggedNotReturned(t *testing.T) {
	f := newFixture(t)
	f.seedTicketType(t, "tt-1", 10, 0)
	f.dispatcher.Subscribe(events.EventTicketsPurchased, func(context.Context, events.Event) error {
		return errors.New("sink unavailable")
	})
	core, logs := observer.New(zapcore.WarnLevel)
	coordinator := NewPurchaseCoordinator(PurchaseDependencies{
		TicketTypeRepo: f.store.TicketTypes(),
		TicketRepo:     f.store.Tickets(),
		Transactor:     f.store,
		Clock:          f.clock,
		Dispatcher:     f.dispatcher,
		Logger:         zap.New(core),
		Config:         f.purchaseConfig(),
	})

	ids, err := coordinator.Purchase(context.Background(), "tt-1", 1, "attendee-1")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	failed := logs.FilterMessage("event subscribers failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "tickets_purchased", fields["event_type"])
	assert.Equal(t, "tt-1", fields["ticket_type_id"])
	assert.Contains(t, fields["error"], "sink unavailable")
}
