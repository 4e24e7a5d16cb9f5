package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func onSale(quantity, sold int) *TicketType {
	tt := &TicketType{
		ID:         "tt-1",
		Price:      decimal.RequireFromString("20.00"),
		Currency:   "USD",
		Quantity:   quantity,
		Sold:       sold,
		SalesStart: now.Add(-time.Hour),
		SalesEnd:   now.Add(time.Hour),
	}
	tt.Refresh(now)
	return tt
}

func limit(n int) *int { return &n }

func TestSetQuantity(t *testing.T) {
	tt := onSale(10, 10)
	assert.Equal(t, TicketTypeStatusSoldOut, tt.Status)

	require.NoError(t, tt.SetQuantity(15, now))
	assert.Equal(t, TicketTypeStatusOnSale, tt.Status)

	assert.ErrorIs(t, tt.SetQuantity(-1, now), apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, tt.SetQuantity(9, now), apperrors.ErrInvalidArgument)
	assert.Equal(t, 15, tt.Quantity)

	require.NoError(t, tt.SetQuantity(10, now))
	assert.Equal(t, TicketTypeStatusSoldOut, tt.Status)
}

func TestSetSold(t *testing.T) {
	tt := onSale(10, 0)

	assert.ErrorIs(t, tt.SetSold(-1, now), apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, tt.SetSold(11, now), apperrors.ErrInvalidArgument)
	require.NoError(t, tt.SetSold(10, now))
	assert.Equal(t, TicketTypeStatusSoldOut, tt.Status)
}

func TestSetSalesWindow(t *testing.T) {
	tt := onSale(10, 0)

	assert.ErrorIs(t, tt.SetSalesEnd(tt.SalesStart, now), apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, tt.SetSalesStart(tt.SalesEnd.Add(time.Second), now), apperrors.ErrInvalidArgument)
	assert.Equal(t, TicketTypeStatusOnSale, tt.Status)

	require.NoError(t, tt.SetSalesStart(now.Add(time.Minute), now))
	assert.Equal(t, TicketTypeStatusNotYetOnSale, tt.Status)

	require.NoError(t, tt.SetSalesWindow(now.Add(-3*time.Hour), now.Add(-2*time.Hour), now))
	assert.Equal(t, TicketTypeStatusSaleEnded, tt.Status)
}

func TestSetMaxPerOrder(t *testing.T) {
	tt := onSale(10, 0)
	assert.ErrorIs(t, tt.SetMaxPerOrder(limit(0)), apperrors.ErrInvalidArgument)
	require.NoError(t, tt.SetMaxPerOrder(limit(2)))
	require.NoError(t, tt.SetMaxPerOrder(nil))
	assert.Nil(t, tt.MaxPerOrder)
}

func TestCancelIsOneWay(t *testing.T) {
	tt := onSale(10, 0)
	assert.True(t, tt.Cancel(now))
	assert.False(t, tt.Cancel(now))
	assert.Equal(t, TicketTypeStatusCancelled, tt.Status)

	require.NoError(t, tt.SetQuantity(50, now))
	assert.Equal(t, TicketTypeStatusCancelled, tt.Status)
}

func TestCanPurchase(t *testing.T) {
	assert.False(t, onSale(0, 0).CanPurchase(1, now))
	assert.False(t, onSale(10, 0).CanPurchase(0, now))
	assert.True(t, onSale(10, 9).CanPurchase(1, now))
	assert.False(t, onSale(10, 9).CanPurchase(2, now))

	capped := onSale(10, 0)
	capped.MaxPerOrder = limit(4)
	assert.True(t, capped.CanPurchase(4, now))
	assert.False(t, capped.CanPurchase(5, now))

	// Purchasability is evaluated at the given instant, not from the cached status.
	assert.False(t, onSale(10, 0).CanPurchase(1, now.Add(2*time.Hour)))
}

func TestPurchase(t *testing.T) {
	tt := onSale(10, 9)
	require.NoError(t, tt.Purchase(1, now))
	assert.Equal(t, 10, tt.Sold)
	assert.Equal(t, TicketTypeStatusSoldOut, tt.Status)
	assert.Equal(t, 0, tt.AvailableQuantity())

	assert.ErrorIs(t, onSale(10, 0).Purchase(0, now), apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, onSale(10, 0).Purchase(-3, now), apperrors.ErrInvalidArgument)
}

func TestPurchaseSoldOutReasons(t *testing.T) {
	reasonOf := func(err error) string {
		require.ErrorIs(t, err, apperrors.ErrSoldOut)
		reason, ok := apperrors.SoldOutReason(err)
		require.True(t, ok)
		return reason
	}

	capped := onSale(10, 0)
	capped.MaxPerOrder = limit(4)
	assert.Equal(t, SoldOutPerOrderLimit, reasonOf(capped.Purchase(5, now)))
	assert.Equal(t, 0, capped.Sold)

	assert.Equal(t, SoldOutInsufficientRemaining, reasonOf(onSale(10, 6).Purchase(6, now)))
	assert.Equal(t, SoldOutInsufficientRemaining, reasonOf(onSale(10, 10).Purchase(1, now)))
	assert.Equal(t, SoldOutNotAvailable, reasonOf(onSale(10, 0).Purchase(1, now.Add(-2*time.Hour))))
	assert.Equal(t, SoldOutNotAvailable, reasonOf(onSale(10, 0).Purchase(1, now.Add(2*time.Hour))))

	cancelled := onSale(10, 0)
	cancelled.Cancel(now)
	assert.Equal(t, SoldOutNotAvailable, reasonOf(cancelled.Purchase(1, now)))

	// A closed window is reported ahead of the per-order cap.
	closed := onSale(10, 0)
	closed.MaxPerOrder = limit(1)
	assert.Equal(t, SoldOutNotAvailable, reasonOf(closed.Purchase(3, now.Add(2*time.Hour))))

	// An exhausted type reports remaining stock even when the order is over the cap.
	exhausted := onSale(10, 10)
	exhausted.MaxPerOrder = limit(2)
	err := exhausted.Purchase(5, now)
	assert.Equal(t, SoldOutInsufficientRemaining, reasonOf(err))
	assert.Equal(t, TicketTypeStatusSoldOut, exhausted.StatusAt(now))
}

func TestTotalPrice(t *testing.T) {
	tt := onSale(1, 0)
	assert.True(t, tt.TotalPrice().Equal(decimal.RequireFromString("20.00")))

	fee := decimal.RequireFromString("1.75")
	tt.ServiceFee = &fee
	assert.True(t, tt.TotalPrice().Equal(decimal.RequireFromString("21.75")))
}

func TestAvailabilityAt(t *testing.T) {
	tt := onSale(10, 4)
	a := tt.AvailabilityAt(now)
	assert.Equal(t, Availability{TicketTypeID: "tt-1", Quantity: 10, Sold: 4, AvailableQuantity: 6, Status: TicketTypeStatusOnSale}, a)

	a = tt.AvailabilityAt(now.Add(3 * time.Hour))
	assert.Equal(t, TicketTypeStatusSaleEnded, a.Status)
}
