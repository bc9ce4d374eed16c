package auth

import "strings"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
	// RoleVLE is the field kiosk operator (VLE / Akshaya centre).
	RoleVLE Role = "vle"
)

var Roles = []Role{RoleAdmin, RoleStaff, RoleVLE}

func ParseRole(raw string) (Role, bool) {
	normalized := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, role := range Roles {
		if role == normalized {
			return role, true
		}
	}
	return "", false
}

// IsStaff is true for the internal roles that review documents and answer tickets.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)
