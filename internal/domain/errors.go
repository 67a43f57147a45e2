package domain

import "errors"

var (
	// ErrNotFound signals a missing image.
	ErrNotFound = errors.New("image not found")
	// ErrSessionNotFound signals a missing or already consumed upload session.
	ErrSessionNotFound = errors.New("upload session not found")
	// ErrValidation signals malformed input (bad session id, unparsable metadata).
	ErrValidation = errors.New("validation failed")
	// ErrServiceUnavailable signals that the inference service cannot be
	// reached, including a fast-fail while its circuit breaker is open.
	ErrServiceUnavailable = errors.New("inference service unavailable")
	// ErrTimeout signals a per-call deadline exceeded against the inference service.
	ErrTimeout = errors.New("inference call timed out")
)
