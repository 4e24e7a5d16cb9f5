package domain

import (
	"strings"

	"github.com/google/uuid"
)

const ticketCodePrefix = "TKT-"

// CodeGenerator produces redemption codes for issued tickets.
type CodeGenerator interface {
	NewCode() string
}

// UUIDCodeGenerator derives codes from random (v4) UUIDs.
type UUIDCodeGenerator struct{}

// NewCode returns TKT- followed by 32 upper-case hex characters.
func (UUIDCodeGenerator) NewCode() string {
	return ticketCodePrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NormalizeTicketCode trims and upper-cases a scanned code.
func NormalizeTicketCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
