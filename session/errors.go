package session

import (
	"errors"
	"strconv"
)

var (
	// ErrAdminRequired is returned by an admin-only login for a non-admin account.
	ErrAdminRequired = errors.New("admin access required")
	// ErrNilTransport is returned by New without a transport.
	ErrNilTransport = errors.New("session: nil transport")
	// ErrNilTokenStore is returned by New without a token store.
	ErrNilTokenStore = errors.New("session: nil token store")
	// ErrNotAuthenticated is returned by UpdateUser when no session exists.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMalformedResponse is returned when a success response lacks token or user.
	ErrMalformedResponse = errors.New("malformed auth response")
)

// AuthError is a login or signup rejection reported by the API.
type AuthError struct {
	Op      string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Detail includes the operation and status, for logs.
func (e *AuthError) Detail() string {
	return e.Op + " failed (" + strconv.Itoa(e.Status) + "): " + e.Message
}
