package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means no HTTP response reached us at all (connection
	// refused, DNS failure, timeout). Distinct from every HTTP-level failure.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthenticated is the silent 401/403 outcome of the revalidation
	// check. Not user-visible; the guard redirects instead.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired is the backend's explicit SESSION_EXPIRED signal.
	ErrSessionExpired = errors.New("session expired")
)

const codeSessionExpired = "SESSION_EXPIRED"

// BackendError carries the backend's own rejection detail for inline display
// on the originating form (wrong password, expired reset token, ...).
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}
