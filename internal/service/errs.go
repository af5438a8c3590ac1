// Package service holds what the domain services share: error kinds the
// HTTP layer maps to status codes, and the acting user.
package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"xhsmarket/internal/store"
	"xhsmarket/pkg/rbac"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Invalid returns a validation error carrying a readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Forbidden returns a permission error carrying a readable reason.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Conflict returns a state conflict error carrying a readable reason.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == rbac.RoleAdmin }

// CanManage reports whether the actor owns ownerID's resource or is an admin.
func (a Actor) CanManage(ownerID string) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == ownerID)
}

// Require checks a role permission and maps a denial to ErrForbidden.
func (a Actor) Require(permission string) error {
	if err := rbac.CheckPermission(a.UserID, a.Role, permission); err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return nil
}

// NewID returns a fresh entity ID.
func NewID() string {
	return uuid.NewString()
}
