package sdk

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped from API status codes. Use errors.Is() to check.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrTimeout            = errors.New("timed out")
)

// APIError carries the HTTP status and server message of a failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gallery api: %d %s", e.Status, e.Message)
}

// Unwrap maps the status code onto a sentinel for errors.Is checks.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case 400:
		return ErrValidation
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	case 503:
		return ErrServiceUnavailable
	case 504:
		return ErrTimeout
	default:
		return nil
	}
}
