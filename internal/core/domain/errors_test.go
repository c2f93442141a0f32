package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapErrorPreservesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := WrapError(ErrIndexUnavailable, "hybrid search", cause)

	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("kind lost: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
	if !IsKind(err, ErrIndexUnavailable) {
		t.Fatal("IsKind must match the wrapped kind")
	}
	if IsKind(err, ErrInvalidInput) {
		t.Fatal("IsKind matched the wrong kind")
	}
}

func TestWrapErrorNilPassthrough(t *testing.T) {
	if err := WrapError(ErrConfiguration, "load config", nil); err != nil {
		t.Fatalf("expected nil for nil cause, got %v", err)
	}
}
