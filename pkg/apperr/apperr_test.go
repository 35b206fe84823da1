package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{BadRequest("bad"), http.StatusBadRequest},
		{Unauthorized("no"), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWrapKeepsTypedErrors(t *testing.T) {
	original := Conflict("User already exists")
	wrapped := fmt.Errorf("signup: %w", original)
	if got := Wrap(wrapped); got != wrapped {
		t.Fatalf("expected typed error to pass through unchanged, got %v", got)
	}
	if !IsKind(Wrap(wrapped), KindConflict) {
		t.Fatalf("expected conflict kind to survive wrapping")
	}
}

func TestWrapConvertsUnknownErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause)
	if !IsKind(err, KindInternal) {
		t.Fatalf("expected internal kind, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to stay in the chain")
	}
	if msg := PublicMessage(err); msg != InternalMessage {
		t.Fatalf("unexpected public message %q", msg)
	}
	if Wrap(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}

func TestPublicMessageForTypedError(t *testing.T) {
	if msg := PublicMessage(Unauthorized("Invalid email or password")); msg != "Invalid email or password" {
		t.Fatalf("unexpected message %q", msg)
	}
}
