// Package identity resolves the calling user to an actor scoped to a clinic
// and enforces the clinic role hierarchy.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a clinic role. The hierarchy is admin > doctor > reception.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDoctor    Role = "doctor"
	RoleReception Role = "reception"
)

var (
	// ErrUnauthenticated is returned when no valid session accompanies the call.
	ErrUnauthenticated = errors.New("identity: unauthenticated")

	// ErrNoMembership is returned when the user has no role record for the clinic.
	ErrNoMembership = errors.New("identity: no clinic membership")

	// ErrInsufficientPermission is returned when the actor's role does not
	// satisfy the required role.
	ErrInsufficientPermission = errors.New("identity: insufficient permission")
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RoleReception:
		return RoleReception, nil
	}
	return "", fmt.Errorf("identity: unknown role %q", raw)
}

// Satisfies reports whether r meets the required role. Admin satisfies any
// requirement; doctor satisfies doctor and reception; reception satisfies
// only reception.
func (r Role) Satisfies(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	if r == required {
		return true
	}
	return r == RoleDoctor && required == RoleReception
}

// Actor is a caller resolved to an identity, role, and clinic scope.
type Actor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	ClinicID string `json:"clinicId"`
}

// Require fails unless the actor's role satisfies the required role.
// Pure check, no side effects; runs before any business data is read.
func Require(actor Actor, required Role) error {
	if !actor.Role.Satisfies(required) {
		return fmt.Errorf("%w: role %s does not satisfy required %s", ErrInsufficientPermission, actor.Role, required)
	}
	return nil
}
