package tariff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
)

var (
	ErrTariffNotFound  = fmt.Errorf("tariff not found: %w", faults.ErrValidation)
	ErrInvalidArgument = fmt.Errorf("tariff: invalid argument: %w", faults.ErrValidation)
)

// Repository abstracts tariff persistence.
type Repository interface {
	// ListByZone returns tariff rows for the zone. A non-zero on narrows the result
	// to rows whose window contains that date.
	ListByZone(ctx context.Context, zoneCode string, on time.Time) ([]Tariff, error)
}

// Resolver selects the applicable tariff row and rate for a call.
//
// Contract:
// - zone must match and start_date <= call_date <= end_date
// - the latest start_date wins; ties go to the earlier end_date, then name
// - no match is ErrTariffNotFound; a call is never rated without a tariff
type Resolver struct {
	repo  Repository
	phase Phase
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo, phase: PhaseEnd}
}

// WithPhase returns a resolver that rates with the given rate pair.
func (r *Resolver) WithPhase(p Phase) *Resolver {
	return &Resolver{repo: r.repo, phase: p}
}

// ResolveRate resolves the rate for a call placed in zone on callDate at startTime.
func (r *Resolver) ResolveRate(ctx context.Context, zoneCode string, callDate time.Time, startTime calls.TimeOfDay) (Rate, error) {
	rows, err := r.load(ctx, zoneCode, callDate)
	if err != nil {
		return Rate{}, err
	}
	return NewTable(rows...).Resolve(zoneCode, callDate, startTime, r.phase)
}

// Current returns the tariff row in force for zone on date.
func (r *Resolver) Current(ctx context.Context, zoneCode string, on time.Time) (Tariff, error) {
	rows, err := r.load(ctx, zoneCode, on)
	if err != nil {
		return Tariff{}, err
	}
	t, ok := SelectTariff(rows, zoneCode, on)
	if !ok {
		return Tariff{}, fmt.Errorf("zone %q on %s: %w", zoneCode, on.Format(calls.DateLayout), ErrTariffNotFound)
	}
	return t, nil
}

func (r *Resolver) load(ctx context.Context, zoneCode string, on time.Time) ([]Tariff, error) {
	if strings.TrimSpace(zoneCode) == "" || on.IsZero() {
		return nil, ErrInvalidArgument
	}
	if r.repo == nil {
		return nil, fmt.Errorf("tariff: repository not configured")
	}
	rows, err := r.repo.ListByZone(ctx, zoneCode, on)
	if err != nil {
		return nil, faults.Infrastructure("list tariffs", err)
	}
	return rows, nil
}

// SelectTariff picks the current row for zone on date from rows.
func SelectTariff(rows []Tariff, zoneCode string, date time.Time) (Tariff, bool) {
	var best Tariff
	found := false
	for _, t := range rows {
		if t.ZoneCode != zoneCode || !t.Covers(date) {
			continue
		}
		if !found || preferred(t, best) {
			best = t
			found = true
		}
	}
	return best, found
}

func preferred(a, b Tariff) bool {
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.After(b.StartDate)
	}
	if !a.EndDate.Equal(b.EndDate) {
		return a.EndDate.Before(b.EndDate)
	}
	return a.Name < b.Name
}

// Table is an immutable in-memory tariff set. Resolution against a Table is
// pure, which keeps bill generation deterministic for a given input.
type Table struct {
	byZone map[string][]Tariff
}

func NewTable(rows ...Tariff) Table {
	byZone := make(map[string][]Tariff)
	for _, t := range rows {
		byZone[t.ZoneCode] = append(byZone[t.ZoneCode], t)
	}
	return Table{byZone: byZone}
}

// Resolve is resolveRate over the table.
func (tb Table) Resolve(zoneCode string, callDate time.Time, startTime calls.TimeOfDay, phase Phase) (Rate, error) {
	if strings.TrimSpace(zoneCode) == "" || callDate.IsZero() {
		return Rate{}, ErrInvalidArgument
	}
	t, ok := SelectTariff(tb.byZone[zoneCode], zoneCode, callDate)
	if !ok {
		return Rate{}, fmt.Errorf("zone %q on %s: %w", zoneCode, callDate.Format(calls.DateLayout), ErrTariffNotFound)
	}
	part := DayPartAt(startTime)
	return Rate{
		ZoneCode:   zoneCode,
		TariffName: t.Name,
		DayPart:    part,
		PerMinute:  t.RateFor(part, phase),
	}, nil
}

// Len returns the number of rows in the table.
func (tb Table) Len() int {
	n := 0
	for _, rows := range tb.byZone {
		n += len(rows)
	}
	return n
}
