package billing

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
)

// DetailsSchemaVersion is written into every Details document. Bump it when
// the shape of DetailLine changes so readers can branch on old rows.
const DetailsSchemaVersion = 1

// Bill is a generated subscriber bill.
//
// Invariants:
// - Amount equals the sum of detail line costs at creation; afterwards only
//   bonus application may reduce it, once per bonus.
// - StartDate <= EndDate.
// - Details are immutable once the bill is inserted.
type Bill struct {
	ID           string    `json:"id" db:"id"`
	SubscriberID string    `json:"subscriber_id" db:"subscriber_id"`
	StartDate    time.Time `json:"start_date" db:"start_date"`
	EndDate      time.Time `json:"end_date" db:"end_date"`

	// Amount is kept at full precision; format with FormatAmount for display.
	Amount decimal.Decimal `json:"amount" db:"amount"`

	// Details is stored as JSONB.
	Details Details `json:"details" db:"details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Paid      bool      `json:"paid" db:"paid"`
}

// Details is the typed bill breakdown persisted alongside the bill.
type Details struct {
	SchemaVersion int          `json:"schema_version"`
	Lines         []DetailLine `json:"lines"`
	CallIDs       []string     `json:"call_ids"`
}

// Value stores Details as a JSON document.
func (d Details) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Details) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Details{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("billing: cannot scan %T into Details", src)
	}
}

// DetailLine is one rated call, in the order calls were presented.
type DetailLine struct {
	CallID          string          `json:"call_id"`
	Date            time.Time       `json:"date"`
	Time            calls.TimeOfDay `json:"time"`
	DurationSeconds int             `json:"duration"`
	Cost            decimal.Decimal `json:"cost"`

	// TariffName is denormalized for audit display.
	TariffName string `json:"tariff_name"`
	ZoneCode   string `json:"zone_code"`
	DayPart    string `json:"day_part"`
}

// GenerateRequest selects the calls a bill is generated from.
type GenerateRequest struct {
	SubscriberID string    `json:"subscriber_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`

	// CallIDs picks calls among the subscriber's calls in range.
	// Empty selects every call in range.
	CallIDs []string `json:"call_ids,omitempty"`
}

// Round2 rounds an amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders an amount with two decimals. Presentation only.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
