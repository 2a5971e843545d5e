package bonus

import (
	"fmt"

	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
)

var (
	ErrInvalidArgument   = fmt.Errorf("bonus: invalid argument: %w", faults.ErrValidation)
	ErrAlreadyApplied    = fmt.Errorf("bonus already applied: %w", faults.ErrValidation)
	ErrAmountExceedsBill = fmt.Errorf("bonus amount exceeds bill amount: %w", faults.ErrValidation)

	// ErrBillChanged means the bill amount moved between read and update.
	ErrBillChanged = fmt.Errorf("bill amount changed concurrently: %w", faults.ErrValidation)

	ErrBillNotFound  = fmt.Errorf("bill not found: %w", faults.ErrNotFound)
	ErrBonusNotFound = fmt.Errorf("bonus not found: %w", faults.ErrNotFound)

	ErrStorage  = fmt.Errorf("bonus storage failure: %w", faults.ErrInfrastructure)
	ErrBillBusy = fmt.Errorf("bill is locked by another operation: %w", faults.ErrInfrastructure)

	// ErrReconciliationRequired means the bill amount and the bonus flag
	// disagree after a failed compensation. An audit event names both records.
	ErrReconciliationRequired = fmt.Errorf("manual reconciliation required: %w", faults.ErrConsistency)
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
