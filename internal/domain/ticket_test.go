package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCodes []string

func (f *fixedCodes) NewCode() string {
	code := (*f)[0]
	*f = (*f)[1:]
	return code
}

func TestNewTicket(t *testing.T) {
	codes := &fixedCodes{"TKT-1", "TKT-2"}
	ticket := NewTicket("tt-1", "owner-1", codes, now)

	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, "TKT-1", ticket.TicketCode)
	assert.Equal(t, "tt-1", ticket.TicketTypeID)
	assert.Equal(t, "owner-1", ticket.OwnerID)
	assert.Equal(t, TicketStatusValid, ticket.Status)
	assert.False(t, ticket.CheckedIn)
	assert.Equal(t, now, ticket.PurchaseDate)
	assert.Len(t, *codes, 1)
}

func TestTicketCheckIn(t *testing.T) {
	ticket := NewTicket("tt-1", "owner-1", UUIDCodeGenerator{}, now)
	code := ticket.TicketCode

	assert.True(t, ticket.CheckIn(now.Add(time.Minute)))
	assert.Equal(t, TicketStatusUsed, ticket.Status)
	assert.True(t, ticket.CheckedIn)
	require.NotNil(t, ticket.CheckedInAt)
	assert.Equal(t, now.Add(time.Minute), *ticket.CheckedInAt)

	assert.False(t, ticket.CheckIn(now.Add(2*time.Minute)))
	assert.Equal(t, TicketStatusUsed, ticket.Status)
	assert.Equal(t, now.Add(time.Minute), *ticket.CheckedInAt)
	assert.Equal(t, code, ticket.TicketCode)

	assert.False(t, ticket.Cancel(now))
	assert.Equal(t, TicketStatusUsed, ticket.Status)
}

func TestTicketCancel(t *testing.T) {
	ticket := NewTicket("tt-1", "owner-1", UUIDCodeGenerator{}, now)

	assert.True(t, ticket.Cancel(now))
	assert.False(t, ticket.Cancel(now))
	assert.Equal(t, TicketStatusCancelled, ticket.Status)
	assert.False(t, ticket.Active())

	assert.False(t, ticket.CheckIn(now))
	assert.False(t, ticket.CheckedIn)
}

func TestTicketExpire(t *testing.T) {
	ticket := NewTicket("tt-1", "owner-1", UUIDCodeGenerator{}, now)
	assert.True(t, ticket.Expire(now))
	assert.False(t, ticket.Expire(now))
	assert.True(t, ticket.Active())
	assert.False(t, ticket.CheckIn(now))
}

func TestUUIDCodeGenerator(t *testing.T) {
	gen := UUIDCodeGenerator{}
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		code := gen.NewCode()
		require.Len(t, code, len("TKT-")+32)
		assert.Equal(t, code, NormalizeTicketCode(code))
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestNormalizeTicketCode(t *testing.T) {
	assert.Equal(t, "TKT-ABC", NormalizeTicketCode("  tkt-abc \t"))
}
