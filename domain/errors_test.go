package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindStatusCodes(t *testing.T) {
	tests := []struct {
		kind   ErrorKind
		status int
	}{
		{KindNotFound, 404},
		{KindUnauthorized, 401},
		{KindBadRequest, 400},
		{KindSignature, 403},
		{KindDelivery, 502},
		{KindFederation, 500},
	}

	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.status {
			t.Errorf("%s: got %d want %d", tt.kind, got, tt.status)
		}
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(NotFoundError("nope")); got != 404 {
		t.Errorf("NotFound: got %d", got)
	}
	if got := StatusOf(errors.New("plain")); got != 500 {
		t.Errorf("Foreign errors map to 500, got %d", got)
	}
	if got := StatusOf(fmt.Errorf("wrapped: %w", SignatureError("bad sig"))); got != 403 {
		t.Errorf("Wrapped errors must unwrap, got %d", got)
	}
}

func TestIsKind(t *testing.T) {
	err := BadRequestError("malformed %s", "envelope")
	if !IsKind(err, KindBadRequest) {
		t.Error("IsKind should match")
	}
	if IsKind(err, KindNotFound) {
		t.Error("IsKind should not match a different kind")
	}
	if IsKind(errors.New("x"), KindBadRequest) {
		t.Error("IsKind should not match foreign errors")
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := DeliveryError("POST to %s failed: %v", "https://x.example/inbox", cause)

	if !errors.Is(err, cause) {
		t.Error("Trailing error argument must be wrapped")
	}
	if err.Error() == "" {
		t.Error("Error text must not be empty")
	}
}
