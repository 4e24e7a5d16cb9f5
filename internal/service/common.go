package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-inventory/internal/clock"
	"github.com/spec-kit/ticket-inventory/internal/config"
	"github.com/spec-kit/ticket-inventory/internal/events"
	"github.com/spec-kit/ticket-inventory/internal/observability"
	"github.com/spec-kit/ticket-inventory/internal/repository"
	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

// errRetriesExhausted marks a CAS loop that never won its race.
var errRetriesExhausted = errors.New("optimistic retries exhausted")

// casRetrier re-runs an optimistic read-modify-write until it commits.
type casRetrier struct {
	maxAttempts int
	backoff     time.Duration
	metrics     *observability.Metrics
}

func newCASRetrier(cfg config.PurchaseConfig, metrics *observability.Metrics) casRetrier {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return casRetrier{maxAttempts: attempts, backoff: cfg.RetryBackoff(), metrics: metrics}
}

// run calls fn until it returns something other than repository.ErrVersionConflict.
// It returns the number of attempts made and errRetriesExhausted when every
// attempt lost.
func (r casRetrier) run(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return attempt, err
		}
		r.metrics.RecordCASRetry()
		if attempt >= r.maxAttempts {
			return attempt, errRetriesExhausted
		}
		if err := r.wait(ctx, attempt); err != nil {
			return attempt, err
		}
	}
}

// wait sleeps for an exponentially growing, jittered delay.
func (r casRetrier) wait(ctx context.Context, attempt int) error {
	if r.backoff <= 0 {
		return ctx.Err()
	}
	d := r.backoff << min(attempt-1, 6)
	d = d/2 + time.Duration(rand.Int64N(int64(d/2)+1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return fmt.Errorf("load %s %s: %w", resource, id, err)
}

type publisher struct {
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

func (p publisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock.Now()
	}
	if event.Actor == (events.Actor{}) {
		event.Actor = events.ActorFromContext(ctx)
	}
	// Subscriber failures never fail a committed write.
	if err := p.dispatcher.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.Warn("event subscribers failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_type_id", event.TicketTypeID),
			zap.Error(err))
	}
}

func orRealClock(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.Real()
	}
	return c
}
