package tariff

import (
	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
)

var secondsPerMinute = decimal.NewFromInt(60)

// RateCall prices one call: (duration_seconds / 60) * rate.
//
// Billing is linear per second, no rounding up to whole minutes and no currency
// rounding; the full-precision value is kept. A null rate or zero duration is free.
func RateCall(call calls.CallRecord, rate Rate) decimal.Decimal {
	if !rate.PerMinute.Valid || call.DurationSeconds <= 0 {
		return decimal.Zero
	}
	// Multiply first so 60-second multiples stay exact.
	return rate.PerMinute.Decimal.Mul(decimal.NewFromInt(int64(call.DurationSeconds))).Div(secondsPerMinute)
}
