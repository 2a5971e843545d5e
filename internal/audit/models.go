package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Every monetary mutation (bill insert, bill amount change, bonus flag) has one.
// - actor and ip capture are best-effort; do not block billing flows on audit failures,
//   except for reconciliation reports which are the only record of a double fault.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP when the event originates from HTTP.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	SubscriberID string `json:"subscriber_id,omitempty" db:"subscriber_id"`
	BillID       string `json:"bill_id,omitempty" db:"bill_id"`
	BonusID      string `json:"bonus_id,omitempty" db:"bonus_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details (amounts before/after etc).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeBillGenerated EventType = "bill_generated"
	EventTypeBillPaid      EventType = "bill_paid"
	EventTypeBonusCreated  EventType = "bonus_created"
	EventTypeBonusApplied  EventType = "bonus_applied"

	// EventTypeBonusCompensated records a bill amount restored after the bonus
	// flag update failed.
	EventTypeBonusCompensated EventType = "bonus_compensated"

	// EventTypeReconciliationRequired records a failed compensation: the bill
	// amount and the bonus flag disagree and an operator must reconcile them.
	EventTypeReconciliationRequired EventType = "reconciliation_required"
)
