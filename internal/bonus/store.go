package bonus

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
)

// Store persists bonuses.
type Store interface {
	Insert(ctx context.Context, b Bonus) error
	// Get returns ErrBonusNotFound for unknown ids.
	Get(ctx context.Context, id string) (Bonus, error)
	// MarkApplied flips a pending bonus to applied. It returns ErrAlreadyApplied
	// if the bonus is no longer pending.
	MarkApplied(ctx context.Context, id string, at time.Time) error
}

// BillStore is the slice of bill storage the ledger needs.
// billing.Repository satisfies it.
type BillStore interface {
	Get(ctx context.Context, id string) (billing.Bill, error)
	UpdateAmount(ctx context.Context, id string, expected, next decimal.Decimal) error
}

// Transactor is implemented by stores that can run a bonus application as one
// atomic unit. When the bonus store implements it the ledger needs no
// compensation step.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes row-locking reads and writes bound to one transaction.
type Tx interface {
	LockBonus(ctx context.Context, id string) (Bonus, error)
	LockBill(ctx context.Context, id string) (billing.Bill, error)
	UpdateBillAmount(ctx context.Context, id string, expected, next decimal.Decimal) error
	MarkApplied(ctx context.Context, id string, at time.Time) error
}
