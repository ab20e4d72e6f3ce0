package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrCredentials marks missing or malformed API credentials. Fails fast,
	// never retried.
	ErrCredentials = errors.New("credentials error")
	// ErrRateLimited marks upstream rate limiting, distinguishable from other
	// transient failures so embedding retries can back off on it.
	ErrRateLimited = errors.New("rate limited")
	ErrTemporary   = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
