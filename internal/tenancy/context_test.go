package tenancy

import (
	"context"
	"testing"
)

func TestWithClinicIDAndClinicIDFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithClinicID(ctx, "clinic-123")

	got, ok := ClinicIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected clinic id to be present")
	}
	if got != "clinic-123" {
		t.Fatalf("expected clinic-123, got %s", got)
	}
}

func TestClinicIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected missing clinic id to return false")
	}

	ctx = context.WithValue(ctx, clinicKey, 42)
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected non-string clinic id to return false")
	}

	ctx = WithClinicID(context.Background(), "")
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected empty clinic id to return false")
	}
}
