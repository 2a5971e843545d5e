package auth

import (
	"context"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "ivan", "subscriber", "SUB-7")

	if uid, err := UserID(ctx); err != nil || uid != "ivan" {
		t.Fatalf("user id: %q %v", uid, err)
	}
	if role, err := Role(ctx); err != nil || role != "subscriber" {
		t.Fatalf("role: %q %v", role, err)
	}
	if sub, ok := SubscriberID(ctx); !ok || sub != "SUB-7" {
		t.Fatalf("subscriber: %q %v", sub, ok)
	}

	staff := WithIdentity(context.Background(), "ops", "operator", "")
	if _, ok := SubscriberID(staff); ok {
		t.Fatalf("staff identity must not carry a subscriber")
	}
	if _, err := UserID(context.Background()); err == nil {
		t.Fatalf("expected error without identity")
	}
}
