package tariff

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory tariff store for tests and local development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []Tariff

	// Err, when set, is returned by every read.
	Err error
}

func NewMemoryRepo(rows ...Tariff) *MemoryRepo {
	return &MemoryRepo{rows: append([]Tariff(nil), rows...)}
}

func (r *MemoryRepo) ListByZone(ctx context.Context, zoneCode string, on time.Time) ([]Tariff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]Tariff, 0)
	for _, t := range r.rows {
		if t.ZoneCode != zoneCode {
			continue
		}
		if !on.IsZero() && !t.Covers(on) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
