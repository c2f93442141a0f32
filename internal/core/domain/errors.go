package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrIndexUnavailable means every search call for a request failed. The
	// caller may retry the whole request; the core does not retry it.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrConfiguration marks a misconfiguration detected at startup, such as
	// token budgets that leave no room for context.
	ErrConfiguration = errors.New("configuration error")
	ErrTemporary     = errors.New("temporary failure")
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
