package minidrive

import (
	"errors"

	"github.com/MrEthical07/minidrive/drive"
	"github.com/MrEthical07/minidrive/session"
	"github.com/MrEthical07/minidrive/transport"
)

var (
	// ErrUnauthorized is returned by any authorized call the API rejected
	// with 401. The session has already been cleared when it is seen.
	ErrUnauthorized = transport.ErrUnauthorized
	// ErrAdminRequired is returned by an admin-only login for a non-admin.
	ErrAdminRequired     = session.ErrAdminRequired
	ErrNotAuthenticated  = session.ErrNotAuthenticated
	ErrInvalidPermission = drive.ErrInvalidPermission

	ErrBuilderUsed = errors.New("builder already used")
)

// AuthError is a rejected login or signup.
type AuthError = session.AuthError

// APIError is a failed drive operation.
type APIError = drive.APIError

// IsUnauthorized reports whether err came from the auth-failure policy.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
