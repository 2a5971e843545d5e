package billing

import (
	"fmt"

	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
)

var (
	ErrInvalidArgument = fmt.Errorf("billing: invalid argument: %w", faults.ErrValidation)
	ErrInvalidRange    = fmt.Errorf("billing: start_date after end_date: %w", faults.ErrValidation)
	ErrNotFound        = fmt.Errorf("bill not found: %w", faults.ErrNotFound)
	ErrCallNotFound    = fmt.Errorf("call not found: %w", faults.ErrNotFound)

	// ErrAmountConflict means the bill amount no longer matches the expected
	// value of a compare-and-set update.
	ErrAmountConflict = fmt.Errorf("bill amount changed concurrently: %w", faults.ErrValidation)
)

// TariffNotFoundError identifies the call that could not be rated.
// Err wraps tariff.ErrTariffNotFound.
type TariffNotFoundError struct {
	CallID   string
	ZoneCode string
	Err      error
}

func (e *TariffNotFoundError) Error() string {
	return fmt.Sprintf("call %s: zone %q: %v", e.CallID, e.ZoneCode, e.Err)
}

func (e *TariffNotFoundError) Unwrap() error { return e.Err }
