package bonus

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
	"github.com/tulen-chik/beltelekom-sub000/pkg/utils"
)

// Schema creates the bonuses table. Requires billing.Schema first.
const Schema = `
CREATE TABLE IF NOT EXISTS bonuses (
  id            TEXT PRIMARY KEY,
  bill_id       TEXT NOT NULL REFERENCES bills (id),
  subscriber_id TEXT NOT NULL,
  amount        NUMERIC NOT NULL CHECK (amount > 0 AND amount = round(amount, 2)),
  reason        TEXT NOT NULL,
  applied       BOOLEAN NOT NULL DEFAULT FALSE,
  created_at    TIMESTAMPTZ NOT NULL,
  applied_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS bonuses_bill_idx ON bonuses (bill_id);
`

// PostgresStore stores bonuses in Postgres and runs applications in a
// transaction with the bill and bonus rows locked.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, b Bonus) error {
	const q = `
INSERT INTO bonuses (id, bill_id, subscriber_id, amount, reason, applied, created_at, applied_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := s.db.ExecContext(ctx, q,
		b.ID,
		b.BillID,
		b.SubscriberID,
		b.Amount,
		b.Reason,
		b.Applied,
		b.CreatedAt,
		b.AppliedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Bonus, error) {
	return getBonus(ctx, s.db, id, false)
}

func (s *PostgresStore) MarkApplied(ctx context.Context, id string, at time.Time) error {
	return markApplied(ctx, s.db, id, at)
}

// txAttempts bounds reruns after a deadlock between concurrent applications.
const txAttempts = 3

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithRetryTx(ctx, s.db, &sql.TxOptions{}, txAttempts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, pgTx{tx: tx, bills: billing.NewPostgresRepo(tx)})
	})
}

type pgTx struct {
	tx    *sql.Tx
	bills *billing.PostgresRepo
}

func (t pgTx) LockBonus(ctx context.Context, id string) (Bonus, error) {
	return getBonus(ctx, t.tx, id, true)
}

func (t pgTx) LockBill(ctx context.Context, id string) (billing.Bill, error) {
	return t.bills.GetForUpdate(ctx, id)
}

func (t pgTx) UpdateBillAmount(ctx context.Context, id string, expected, next decimal.Decimal) error {
	return t.bills.UpdateAmount(ctx, id, expected, next)
}

func (t pgTx) MarkApplied(ctx context.Context, id string, at time.Time) error {
	return markApplied(ctx, t.tx, id, at)
}

func getBonus(ctx context.Context, db utils.DBTX, id string, forUpdate bool) (Bonus, error) {
	q := `
SELECT id, bill_id, subscriber_id, amount, reason, applied, created_at, applied_at
FROM bonuses
WHERE id = $1
`
	if forUpdate {
		// Lock the bonus row to serialize concurrent applications of it.
		q += "FOR UPDATE\n"
	}
	var (
		b         Bonus
		appliedAt sql.NullTime
	)
	if err := db.QueryRowContext(ctx, q, id).Scan(
		&b.ID,
		&b.BillID,
		&b.SubscriberID,
		&b.Amount,
		&b.Reason,
		&b.Applied,
		&b.CreatedAt,
		&appliedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bonus{}, ErrBonusNotFound
		}
		return Bonus{}, err
	}
	if appliedAt.Valid {
		at := appliedAt.Time
		b.AppliedAt = &at
	}
	return b, nil
}

func markApplied(ctx context.Context, db utils.DBTX, id string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE bonuses SET applied = TRUE, applied_at = $2 WHERE id = $1 AND applied = FALSE`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bonuses WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrBonusNotFound
	}
	return ErrAlreadyApplied
}
