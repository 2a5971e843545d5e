package audit

import (
	"context"
	"database/sql"
)

// Schema creates the append-only audit_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id            TEXT PRIMARY KEY,
  type          TEXT NOT NULL,
  actor_user_id TEXT,
  actor_role    TEXT,
  ip_address    TEXT,
  subscriber_id TEXT,
  bill_id       TEXT,
  bonus_id      TEXT,
  message       TEXT,
  metadata      JSONB,
  created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_bill_idx ON audit_events (bill_id);
`

// PostgresRepo appends to the audit_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, ip_address,
  subscriber_id, bill_id, bonus_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10, '')::jsonb,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.SubscriberID,
		e.BillID,
		e.BonusID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
