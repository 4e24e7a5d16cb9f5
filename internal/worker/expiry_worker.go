package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer marks tickets of ended events as expired.
type Expirer interface {
	ExpireEnded(ctx context.Context) (int, error)
}

// ExpiryWorker periodically sweeps VALID tickets whose event is over.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

// NewExpiryWorker returns nil when interval is not positive.
func NewExpiryWorker(expirer Expirer, interval time.Duration, logger *zap.Logger) *ExpiryWorker {
	if expirer == nil || interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryWorker{expirer: expirer, interval: interval, logger: logger}
}

// Start runs the sweep until ctx is cancelled. The returned channel closes
// once the loop has exited.
func (w *ExpiryWorker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if w == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
	return done
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.expirer.ExpireEnded(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("ticket expiry sweep failed", zap.Error(err))
		}
		return
	}
	if expired > 0 {
		w.logger.Info("tickets expired", zap.Int("count", expired))
	}
}
