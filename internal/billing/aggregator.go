package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
)

// Generate rates every selected call against the tariff table and returns an
// unsaved bill. It is pure: same calls and tariffs give the same amount and lines.
//
// Generation is all-or-nothing: the first call without a tariff aborts with a
// *TariffNotFoundError and no bill is returned. Lines keep the input order.
// ID and CreatedAt are left for the caller to stamp.
func Generate(subscriberID string, startDate, endDate time.Time, selected []calls.CallRecord, table tariff.Table) (Bill, error) {
	if subscriberID == "" || startDate.IsZero() || endDate.IsZero() {
		return Bill{}, ErrInvalidArgument
	}
	startDate, endDate = calls.DateOf(startDate), calls.DateOf(endDate)
	if startDate.After(endDate) {
		return Bill{}, ErrInvalidRange
	}

	details := Details{
		SchemaVersion: DetailsSchemaVersion,
		Lines:         make([]DetailLine, 0, len(selected)),
		CallIDs:       make([]string, 0, len(selected)),
	}
	total := decimal.Zero

	for _, c := range selected {
		if c.DurationSeconds < 0 {
			return Bill{}, fmt.Errorf("call %s: negative duration: %w", c.ID, ErrInvalidArgument)
		}
		rate, err := table.Resolve(c.ZoneCode, c.CallDate, c.StartTime, tariff.PhaseEnd)
		if err != nil {
			if errors.Is(err, tariff.ErrTariffNotFound) {
				return Bill{}, &TariffNotFoundError{CallID: c.ID, ZoneCode: c.ZoneCode, Err: err}
			}
			return Bill{}, err
		}
		cost := tariff.RateCall(c, rate)
		total = total.Add(cost)

		details.Lines = append(details.Lines, DetailLine{
			CallID:          c.ID,
			Date:            calls.DateOf(c.CallDate),
			Time:            c.StartTime,
			DurationSeconds: c.DurationSeconds,
			Cost:            cost,
			TariffName:      rate.TariffName,
			ZoneCode:        rate.ZoneCode,
			DayPart:         string(rate.DayPart),
		})
		details.CallIDs = append(details.CallIDs, c.ID)
	}

	return Bill{
		SubscriberID: subscriberID,
		StartDate:    startDate,
		EndDate:      endDate,
		Amount:       total,
		Details:      details,
	}, nil
}
