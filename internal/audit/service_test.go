package audit

import (
	"context"
	"testing"

	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
)

func TestService_AppendRequiresType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{BillID: "b1"}); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.Events()) != 0 {
		t.Fatalf("expected no events")
	}
}

func TestService_RecordFillsActorAndIP(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := auth.WithIdentity(context.Background(), "op-1", "operator", "")
	ctx = WithClientIP(ctx, "1.2.3.4")

	if err := svc.Record(ctx, EventTypeBonusApplied, "sub-1", "bill-1", "bonus-1", "bonus applied", map[string]string{"old_amount": "100.00", "new_amount": "70.00"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if e.ActorUserID != "op-1" || e.ActorRole != "operator" {
		t.Fatalf("expected actor from context, got %q/%q", e.ActorUserID, e.ActorRole)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at stamped")
	}
	if e.Metadata != `{"new_amount":"70.00","old_amount":"100.00"}` {
		t.Fatalf("unexpected metadata %s", e.Metadata)
	}
	if len(repo.EventsOfType(EventTypeBonusApplied)) != 1 {
		t.Fatalf("expected bonus_applied event")
	}
}

func TestService_NilServiceErrors(t *testing.T) {
	var svc *Service
	if err := svc.Append(context.Background(), Event{Type: EventTypeBillPaid}); err == nil {
		t.Fatalf("expected error")
	}
}
