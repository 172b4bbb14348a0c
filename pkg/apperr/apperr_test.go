package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindPredicates(t *testing.T) {
	if !IsConflict(Conflict("duplicate instance")) {
		t.Fatalf("expected conflict kind")
	}
	if IsConflict(NotFound("policy %s", "p1")) {
		t.Fatalf("not-found must not report as conflict")
	}
	if !IsValidation(Validation("empty action")) {
		t.Fatalf("expected validation kind")
	}
	if IsValidation(nil) {
		t.Fatalf("nil must not match any kind")
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("attach: %w", CrossTenant("policy owned by other org"))
	if !IsCrossTenant(err) {
		t.Fatalf("expected cross-tenant through wrap, got %v", err)
	}
}

func TestStorePreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Store(cause)
	if !IsStore(err) {
		t.Fatalf("expected store kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be unwrappable")
	}
	if Store(nil) != nil {
		t.Fatalf("Store(nil) must be nil")
	}
}
