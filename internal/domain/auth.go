package domain

import "time"

// Role enumerates what an authenticated caller may do.
type Role string

const (
	RoleAttendee  Role = "ATTENDEE"
	RoleOrganizer Role = "ORGANIZER"
	RoleStaff     Role = "STAFF"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAttendee, RoleOrganizer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Token represents issued authentication token metadata.
type Token struct {
	SubjectID string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
