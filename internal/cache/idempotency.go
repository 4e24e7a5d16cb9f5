package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idempotency:"
	pendingMarker     = "pending"
)

// ErrRequestInFlight is returned when another request holds the same key.
var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// StoredResponse is a replayable HTTP response.
type StoredResponse struct {
	Status      int             `json:"status"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// IdempotencyStore remembers responses by caller-supplied key.
type IdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewIdempotencyStore returns nil when client is nil or ttl is not positive.
func NewIdempotencyStore(client redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Key scopes a client key to a subject and operation.
func Key(scope, subjectID, clientKey string) string {
	return idempotencyPrefix + scope + ":" + subjectID + ":" + clientKey
}

// Begin claims key. It returns the stored response when the request already
// completed, ErrRequestInFlight when it is still running, and (nil, nil) when
// the caller now owns the key.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (*StoredResponse, error) {
	if s == nil {
		return nil, nil
	}
	claimed, err := s.client.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency claim: %w", err)
	}
	if claimed {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as in flight and let the client retry.
		return nil, ErrRequestInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if raw == pendingMarker {
		return nil, ErrRequestInFlight
	}
	var stored StoredResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return &stored, nil
}

// Complete records the final response for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, s.ttl).Err()
}

// Release forgets key so the client may retry the request.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}
