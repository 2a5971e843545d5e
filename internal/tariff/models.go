package tariff

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
)

// Tariff is one pricing row for a zone. ZoneCode + StartDate + EndDate form the key;
// the validity window is closed on both ends.
//
// Rates are per minute. A null rate means the half of day is not billed.
// Tariffs are maintained by pricing administration and are read-only here.
type Tariff struct {
	ZoneCode string `json:"zone_code" db:"zone_code"`
	Name     string `json:"name" db:"name"`

	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`

	DayRateStart   decimal.NullDecimal `json:"day_rate_start" db:"day_rate_start"`
	NightRateStart decimal.NullDecimal `json:"night_rate_start" db:"night_rate_start"`
	DayRateEnd     decimal.NullDecimal `json:"day_rate_end" db:"day_rate_end"`
	NightRateEnd   decimal.NullDecimal `json:"night_rate_end" db:"night_rate_end"`
}

// Covers reports whether date falls inside [StartDate, EndDate].
func (t Tariff) Covers(date time.Time) bool {
	d := calls.DateOf(date)
	return !d.Before(calls.DateOf(t.StartDate)) && !d.After(calls.DateOf(t.EndDate))
}

// RateFor returns the per-minute rate for a day part in the given phase.
func (t Tariff) RateFor(part DayPart, phase Phase) decimal.NullDecimal {
	switch {
	case phase == PhaseStart && part == DayPartDay:
		return t.DayRateStart
	case phase == PhaseStart:
		return t.NightRateStart
	case part == DayPartDay:
		return t.DayRateEnd
	default:
		return t.NightRateEnd
	}
}

// DayPart is the half of day a call is rated in.
type DayPart string

const (
	DayPartDay   DayPart = "day"
	DayPartNight DayPart = "night"
)

// Daytime is [DayStartHour, NightStartHour); everything else is night.
// Every rating path uses this one rule.
const (
	DayStartHour   = 6
	NightStartHour = 22
)

// DayPartAt classifies a call start time.
func DayPartAt(start calls.TimeOfDay) DayPart {
	h := start.Hour()
	if h >= DayStartHour && h < NightStartHour {
		return DayPartDay
	}
	return DayPartNight
}

// Phase selects which rate pair of a tariff row applies. Final billing uses
// the end-of-period rates.
type Phase int

const (
	PhaseEnd Phase = iota
	PhaseStart
)

// Rate is the outcome of tariff resolution for one call.
type Rate struct {
	ZoneCode   string
	TariffName string
	DayPart    DayPart

	// PerMinute is null when the tariff defines no rate for this day part.
	PerMinute decimal.NullDecimal
}
