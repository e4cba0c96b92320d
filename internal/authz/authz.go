package authz

import (
	"errors"

	"github.com/bizstudio/portal/internal/models"
)

// Role is the minimum role an operation requires. RoleAny admits every active user.
type Role string

const (
	RoleAny    Role = ""
	RoleMember Role = models.RoleMember
	RoleAdmin  Role = models.RoleAdmin
)

var (
	// ErrUnauthenticated indicates no authenticated user.
	ErrUnauthenticated = errors.New("authz: unauthenticated")
	// ErrForbidden indicates an authenticated user lacking the required role or status.
	ErrForbidden = errors.New("authz: forbidden")
)

// IsAuthorized reports whether user is present, active and, when required is set, holds that role.
func IsAuthorized(user *models.User, required Role) bool {
	if user == nil || !user.IsActive() {
		return false
	}
	switch required {
	case RoleAny, RoleMember:
		return true
	default:
		return user.Role == string(required)
	}
}

// Require is IsAuthorized with a reason.
func Require(user *models.User, required Role) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if !IsAuthorized(user, required) {
		return ErrForbidden
	}
	return nil
}
