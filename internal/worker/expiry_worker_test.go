package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireEnded(context.Context) (int, error) {
	e.calls.Add(1)
	return 1, e.err
}

func TestNewExpiryWorker_DisabledInterval(t *testing.T) {
	assert.Nil(t, NewExpiryWorker(&countingExpirer{}, 0, nil))

	var w *ExpiryWorker
	select {
	case <-w.Start(context.Background()):
	case <-time.After(time.Second):
		t.Fatal("nil worker should finish immediately")
	}
}

func TestExpiryWorker_SweepsUntilCancelled(t *testing.T) {
	expirer := &countingExpirer{}
	w := NewExpiryWorker(expirer, 5*time.Millisecond, nil)
	require.NotNil(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	done := w.Start(ctx)

	require.Eventually(t, func() bool { return expirer.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestExpiryWorker_KeepsRunningAfterErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db down")}
	w := NewExpiryWorker(expirer, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, time.Millisecond)
}
