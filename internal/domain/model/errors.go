package model

import (
	"errors"
	"fmt"
)

var (
	// ErrCodec marks malformed compressed or encoded payloads.
	ErrCodec = errors.New("codec error")
	// ErrAuthentication marks rejected credentials or an expired session.
	// Recoverable only by logging in again.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNetwork marks transport failures and timeouts. Retrying may help.
	ErrNetwork = errors.New("network error")
	// ErrRemoteService marks a non-credential failure reported by the remote service.
	ErrRemoteService = errors.New("remote service error")
	// ErrIncompatiblePlan marks a response or document whose shape is not understood.
	ErrIncompatiblePlan = errors.New("incompatible plan format")
	// ErrPlanNotFound is returned when no plan is stored for a date.
	ErrPlanNotFound = errors.New("plan not found")

	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrRefreshInProgress  = errors.New("refresh already in progress")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidCredentials = errors.New("identifier and secret are required")
)

// RemoteServiceError carries the status the remote service reported verbatim.
type RemoteServiceError struct {
	Code    int
	Message string
}

func (e *RemoteServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote service error (code %d)", e.Code)
	}
	return fmt.Sprintf("remote service error (code %d): %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrRemoteService.
func (e *RemoteServiceError) Unwrap() error {
	return ErrRemoteService
}
