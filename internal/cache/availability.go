// Package cache holds the Redis-backed read caches and idempotency records.
// A nil cache value is valid and behaves as permanently empty.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

const availabilityPrefix = "inventory:availability:"

// storeIfNewer writes ARGV[1] unless the cached entry already carries a
// version at least ARGV[2]. ARGV[3] is the TTL in milliseconds.
var storeIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, entry = pcall(cjson.decode, current)
  if ok and type(entry) == 'table' then
    local version = tonumber(entry['version'])
    if version and version >= tonumber(ARGV[2]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// AvailabilityCache caches the counters and window of a ticket type. Status is
// never cached; readers derive it at read time from the cached inputs.
// Entries are versioned: a snapshot never replaces a newer one, so a slow
// read-through fill cannot undo a committed write.
type AvailabilityCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

type availabilityEntry struct {
	Version    int64     `json:"version"`
	Quantity   int       `json:"quantity"`
	Sold       int       `json:"sold"`
	SalesStart time.Time `json:"sales_start"`
	SalesEnd   time.Time `json:"sales_end"`
	Cancelled  bool      `json:"cancelled"`
}

// NewAvailabilityCache returns nil when client is nil or ttl is not positive.
func NewAvailabilityCache(client redis.Cmdable, ttl time.Duration) *AvailabilityCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &AvailabilityCache{client: client, ttl: ttl}
}

func availabilityKey(ticketTypeID string) string {
	return availabilityPrefix + ticketTypeID
}

// Get returns the cached status inputs, reporting whether the key was present.
func (c *AvailabilityCache) Get(ctx context.Context, ticketTypeID string) (domain.StatusInputs, bool, error) {
	if c == nil {
		return domain.StatusInputs{}, false, nil
	}
	raw, err := c.client.Get(ctx, availabilityKey(ticketTypeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.StatusInputs{}, false, nil
	}
	if err != nil {
		return domain.StatusInputs{}, false, fmt.Errorf("availability cache get: %w", err)
	}
	var entry availabilityEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.StatusInputs{}, false, fmt.Errorf("availability cache decode: %w", err)
	}
	return domain.StatusInputs{
		Quantity:   entry.Quantity,
		Sold:       entry.Sold,
		SalesStart: entry.SalesStart,
		SalesEnd:   entry.SalesEnd,
		Cancelled:  entry.Cancelled,
	}, true, nil
}

// Set stores the status inputs of tt unless the cache already holds tt.Version
// or later. It reports whether the entry was written.
func (c *AvailabilityCache) Set(ctx context.Context, tt *domain.TicketType) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := json.Marshal(availabilityEntry{
		Version:    tt.Version,
		Quantity:   tt.Quantity,
		Sold:       tt.Sold,
		SalesStart: tt.SalesStart.UTC(),
		SalesEnd:   tt.SalesEnd.UTC(),
		Cancelled:  tt.Cancelled,
	})
	if err != nil {
		return false, err
	}
	stored, err := storeIfNewer.Run(ctx, c.client, []string{availabilityKey(tt.ID)},
		string(raw), tt.Version, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("availability cache set: %w", err)
	}
	return stored == 1, nil
}
