package billing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/pkg/utils"
)

// Repository persists bills.
//
// Details are written once by Insert and never updated. The amount changes only
// through UpdateAmount, which is a compare-and-set on the current value.
type Repository interface {
	Insert(ctx context.Context, b Bill) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Bill, error)
	ListBySubscriber(ctx context.Context, subscriberID string) ([]Bill, error)
	MarkPaid(ctx context.Context, id string) error
	// UpdateAmount sets the amount to next only if it currently equals expected.
	// Returns ErrNotFound or ErrAmountConflict when nothing was updated.
	UpdateAmount(ctx context.Context, id string, expected, next decimal.Decimal) error
}

// Schema creates the bills table.
const Schema = `
CREATE TABLE IF NOT EXISTS bills (
  id            TEXT PRIMARY KEY,
  subscriber_id TEXT NOT NULL,
  start_date    DATE NOT NULL,
  end_date      DATE NOT NULL,
  amount        NUMERIC NOT NULL,
  details       JSONB NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL,
  paid          BOOLEAN NOT NULL DEFAULT FALSE,
  CHECK (start_date <= end_date)
);
CREATE INDEX IF NOT EXISTS bills_subscriber_idx ON bills (subscriber_id, created_at);
`

// PostgresRepo works on either a *sql.DB or a *sql.Tx.
type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const billColumns = `id, subscriber_id, start_date, end_date, amount, details, created_at, paid`

func (r *PostgresRepo) Insert(ctx context.Context, b Bill) error {
	const q = `
INSERT INTO bills (` + billColumns + `)
VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q,
		b.ID,
		b.SubscriberID,
		b.StartDate,
		b.EndDate,
		b.Amount,
		b.Details,
		b.CreatedAt,
		b.Paid,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Bill, error) {
	const q = `SELECT ` + billColumns + ` FROM bills WHERE id = $1`
	return scanBill(r.db.QueryRowContext(ctx, q, id))
}

// GetForUpdate locks the bill row until the surrounding transaction ends.
// Only meaningful when the repository wraps a *sql.Tx.
func (r *PostgresRepo) GetForUpdate(ctx context.Context, id string) (Bill, error) {
	const q = `SELECT ` + billColumns + ` FROM bills WHERE id = $1 FOR UPDATE`
	return scanBill(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) ListBySubscriber(ctx context.Context, subscriberID string) ([]Bill, error) {
	const q = `SELECT ` + billColumns + ` FROM bills WHERE subscriber_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Bill, 0)
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkPaid(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bills SET paid = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) UpdateAmount(ctx context.Context, id string, expected, next decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bills SET amount = $3 WHERE id = $1 AND amount = $2`, id, expected, next)
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
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bills WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAmountConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (Bill, error) {
	var b Bill
	if err := row.Scan(
		&b.ID,
		&b.SubscriberID,
		&b.StartDate,
		&b.EndDate,
		&b.Amount,
		&b.Details,
		&b.CreatedAt,
		&b.Paid,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bill{}, ErrNotFound
		}
		return Bill{}, err
	}
	return b, nil
}
