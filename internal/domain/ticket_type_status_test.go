package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTicketTypeStatus(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(72 * time.Hour)
	open := StatusInputs{Quantity: 10, Sold: 0, SalesStart: start, SalesEnd: end}

	cases := []struct {
		name string
		in   StatusInputs
		now  time.Time
		want TicketTypeStatus
	}{
		{"before window", open, start.Add(-time.Nanosecond), TicketTypeStatusNotYetOnSale},
		{"at start boundary", open, start, TicketTypeStatusOnSale},
		{"inside window", open, start.Add(time.Hour), TicketTypeStatusOnSale},
		{"at end boundary", open, end, TicketTypeStatusOnSale},
		{"after window", open, end.Add(time.Nanosecond), TicketTypeStatusSaleEnded},
		{"sold out beats window", StatusInputs{Quantity: 10, Sold: 10, SalesStart: start, SalesEnd: end}, start.Add(-time.Hour), TicketTypeStatusSoldOut},
		{"sold out after window", StatusInputs{Quantity: 10, Sold: 10, SalesStart: start, SalesEnd: end}, end.Add(time.Hour), TicketTypeStatusSoldOut},
		{"zero quantity is sold out", StatusInputs{Quantity: 0, SalesStart: start, SalesEnd: end}, start, TicketTypeStatusSoldOut},
		{"cancelled beats everything", StatusInputs{Quantity: 10, Sold: 10, SalesStart: start, SalesEnd: end, Cancelled: true}, start, TicketTypeStatusCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveTicketTypeStatus(tc.in, tc.now)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.Valid())
			// Same inputs, same answer.
			assert.Equal(t, got, DeriveTicketTypeStatus(tc.in, tc.now))
		})
	}
}

func TestTicketTypeStatusValid(t *testing.T) {
	assert.False(t, TicketTypeStatus("PAUSED").Valid())
}
