package calls

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for call dates, tariff windows
// and bill periods.
const DateLayout = "2006-01-02"

// CallRecord is a call detail record for one subscriber.
//
// Records are produced by the upstream CDR ingestion and are read-only here:
// billing never mutates them, it only rates them.
type CallRecord struct {
	ID           string `json:"id" db:"id"`
	SubscriberID string `json:"subscriber_id" db:"subscriber_id"`

	// ZoneCode references the tariff zone the call is priced under.
	ZoneCode string `json:"zone_code" db:"zone_code"`

	// CallDate is the calendar date of the call (UTC midnight).
	CallDate time.Time `json:"call_date" db:"call_date"`
	// StartTime is the wall-clock start of the call, second precision.
	StartTime TimeOfDay `json:"start_time" db:"start_time"`

	// DurationSeconds is the billable duration; never negative.
	DurationSeconds int `json:"duration" db:"duration"`
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date: bad %q", s)
	}
	return d, nil
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimeOfDay is a wall-clock time with second precision, stored as seconds
// since midnight. It marshals as "HH:MM:SS".
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay, rejecting out-of-range components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("time of day: out of range %02d:%02d:%02d", hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// ParseTimeOfDay accepts "HH:MM:SS" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
		}
	}
	return 0, fmt.Errorf("time of day: bad %q", s)
}

func (t TimeOfDay) Hour() int { return int(t) / 3600 }

func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Scan implements sql.Scanner for TIME columns read as text or timestamps.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.scanText(v)
	case []byte:
		return t.scanText(string(v))
	case time.Time:
		tod, err := NewTimeOfDay(v.Hour(), v.Minute(), v.Second())
		if err != nil {
			return err
		}
		*t = tod
		return nil
	default:
		return fmt.Errorf("time of day: unsupported scan type %T", src)
	}
}

func (t *TimeOfDay) scanText(s string) error {
	// Postgres renders TIME with optional fractional seconds.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}
