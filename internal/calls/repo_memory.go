package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory call store for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	calls []CallRecord
}

func NewMemoryRepo(records ...CallRecord) *MemoryRepo {
	return &MemoryRepo{calls: append([]CallRecord(nil), records...)}
}

func (r *MemoryRepo) Add(c CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *MemoryRepo) ListBySubscriber(ctx context.Context, subscriberID string, from, to time.Time) ([]CallRecord, error) {
	if subscriberID == "" {
		return nil, ErrInvalidArgument
	}
	from, to = DateOf(from), DateOf(to)

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, c := range r.calls {
		if c.SubscriberID != subscriberID {
			continue
		}
		d := DateOf(c.CallDate)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CallDate.Equal(out[j].CallDate) {
			return out[i].CallDate.Before(out[j].CallDate)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
