package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewSoldOut("PER_ORDER_LIMIT", "too many", nil))

	assert.ErrorIs(t, err, ErrSoldOut)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, NewConflict("busy", nil), ErrConflict)
	assert.ErrorIs(t, NewValidationError("bad", nil), ErrInvalidArgument)
	assert.ErrorIs(t, NewNotFound("ticket", nil), ErrNotFound)
	assert.ErrorIs(t, NewInconsistency("lost", nil, errors.New("insert failed")), ErrInconsistency)
}

func TestSoldOutReason(t *testing.T) {
	reason, ok := SoldOutReason(NewSoldOut("INSUFFICIENT_REMAINING", "only 1 left", map[string]any{"available": 1}))
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_REMAINING", reason)

	_, ok = SoldOutReason(NewConflict("busy", nil))
	assert.False(t, ok)
}

func TestRetryableOnlyForConflict(t *testing.T) {
	assert.True(t, IsRetryable(NewConflict("busy", nil)))
	assert.False(t, IsRetryable(NewSoldOut("NOT_AVAILABLE", "closed", nil)))
	assert.False(t, IsRetryable(NewInconsistency("lost", nil, nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	notFound := ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, CodeNotFound, notFound.Code)
	assert.Equal(t, http.StatusNotFound, notFound.HTTPStatus)

	cause := errors.New("boom")
	internal := ToDomainError(cause)
	assert.Equal(t, CodeInternal, internal.Code)
	assert.ErrorIs(t, internal, cause)

	inconsistency := ToDomainError(NewInconsistency("lost", nil, cause))
	assert.Equal(t, http.StatusInternalServerError, inconsistency.HTTPStatus)
	assert.Contains(t, inconsistency.Error(), "boom")
}
