package requestctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("RequestIDFromContext() = %q, want %q", got, "req-1")
	}
}

func TestRequestIDFromNilContext(t *testing.T) {
	if got := RequestIDFromContext(nil); got != "" {
		t.Fatalf("RequestIDFromContext(nil) = %q, want empty", got)
	}
}

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-2")
	next, id := EnsureRequestID(ctx)
	if id != "req-2" || next != ctx {
		t.Fatalf("EnsureRequestID() = %q, want existing id and context", id)
	}
}

func TestEnsureRequestIDGeneratesUUID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", id, err)
	}
	if RequestIDFromContext(ctx) != id {
		t.Fatal("expected generated id stored in context")
	}
}
