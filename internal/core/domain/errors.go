package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPermissionDenied   = errors.New("domain: microphone permission denied")
	ErrRateLimited        = errors.New("domain: rate limited")
	ErrTransport          = errors.New("domain: transport failure")
	ErrInvalidInput       = errors.New("domain: invalid input")
	ErrSubmissionInFlight = errors.New("domain: submission already in flight")
	ErrUnknownProfile     = errors.New("domain: unknown mapping profile")
	ErrNotFound           = errors.New("domain: not found")
	ErrSessionClosed      = errors.New("domain: session closed")
)

// RateLimitError is returned by analyzers when the remote endpoint answers 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
