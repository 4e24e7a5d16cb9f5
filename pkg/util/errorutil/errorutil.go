package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by services and the HTTP layer.
const (
	CodeValidation    = "VALIDATION_FAILED"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeConflict      = "CONFLICT"
	CodeSoldOut       = "TICKET_SOLD_OUT"
	CodeInconsistency = "INVENTORY_INCONSISTENCY"
	CodeInternal      = "INTERNAL_ERROR"
)

// Sentinels usable with errors.Is; matching is by Code.
var (
	ErrInvalidArgument = &DomainError{Code: CodeValidation}
	ErrNotFound        = &DomainError{Code: CodeNotFound}
	ErrConflict        = &DomainError{Code: CodeConflict}
	ErrSoldOut         = &DomainError{Code: CodeSoldOut}
	ErrInconsistency   = &DomainError{Code: CodeInconsistency}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewConflict reports transient contention. Callers may retry the whole request.
func NewConflict(message string, details map[string]any) error {
	de := NewDomainError(CodeConflict, message, http.StatusConflict, details)
	de.Retryable = true
	return de
}

// NewSoldOut reports that a purchase cannot be satisfied. reason is exposed in Details.
func NewSoldOut(reason, message string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	return NewDomainError(CodeSoldOut, message, http.StatusConflict, details)
}

// NewInconsistency reports inventory committed without matching tickets.
// It requires manual reconciliation and is never retryable.
func NewInconsistency(message string, details map[string]any, err error) error {
	return &DomainError{
		Code:       CodeInconsistency,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Details:    details,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// SoldOutReason extracts the reason attached by NewSoldOut.
func SoldOutReason(err error) (string, bool) {
	var de *DomainError
	if !errors.As(err, &de) || de.Code != CodeSoldOut {
		return "", false
	}
	reason, ok := de.Details["reason"].(string)
	return reason, ok
}

// IsRetryable reports whether the caller may retry the request as a whole.
func IsRetryable(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Retryable
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}
