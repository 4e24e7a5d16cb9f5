package dto

import apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and optional details.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// NewErrorBody renders a domain error.
func NewErrorBody(de *apperrors.DomainError) ErrorBody {
	return ErrorBody{Error: ErrorDetail{
		Code:      de.Code,
		Message:   de.Message,
		Details:   de.Details,
		Retryable: de.Retryable,
	}}
}
