package bonus

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bonus is a credit granted against one bill.
//
// State machine: Pending (Applied=false) -> Applied (Applied=true). Applied is
// terminal; the only transition is made by Ledger.Apply.
type Bonus struct {
	ID           string          `json:"id" db:"id"`
	BillID       string          `json:"bill_id" db:"bill_id"`
	SubscriberID string          `json:"subscriber_id" db:"subscriber_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Reason       string          `json:"reason" db:"reason"`

	Applied   bool       `json:"applied" db:"applied"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty" db:"applied_at"`
}

type CreateRequest struct {
	BillID       string          `json:"bill_id"`
	SubscriberID string          `json:"subscriber_id"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

// ApplyResult reports the outcome of Ledger.Apply. Amounts are set only on success.
type ApplyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	BonusID   string          `json:"bonus_id"`
	BillID    string          `json:"bill_id,omitempty"`
	OldAmount decimal.Decimal `json:"old_amount"`
	NewAmount decimal.Decimal `json:"new_amount"`
}
