package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the gateway throttles the caller.
	ErrRateLimited = errors.New("gateway rate limited")

	// ErrRejected is matched by every *RejectedError.
	ErrRejected = errors.New("gateway rejected request")

	// ErrUnreachable is returned on transport failures, timeouts, 5xx answers
	// and while the circuit breaker is open.
	ErrUnreachable = errors.New("gateway unreachable")

	// ErrNotFound is returned when the remote charge does not exist.
	ErrNotFound = errors.New("remote charge not found")
)

// RejectedError carries the gateway's reason for refusing a request.
type RejectedError struct {
	StatusCode int
	Code       string
	Reason     string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway rejected request (%d %s): %s", e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("gateway rejected request (%d): %s", e.StatusCode, e.Reason)
}

// Is makes errors.Is(err, ErrRejected) true for any RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// IsRetryable reports whether a failed call may succeed if repeated unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrRateLimited)
}
