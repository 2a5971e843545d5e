package billing

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryRepo is an in-memory bill store for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	bills map[string]Bill

	// Err, when set, fails every call.
	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bills: make(map[string]Bill)}
}

func (r *MemoryRepo) Insert(ctx context.Context, b Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.bills[b.ID]; ok {
		return ErrInvalidArgument
	}
	r.bills[b.ID] = b
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Bill{}, r.Err
	}
	b, ok := r.bills[id]
	if !ok {
		return Bill{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) ListBySubscriber(ctx context.Context, subscriberID string) ([]Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]Bill, 0)
	for _, b := range r.bills {
		if b.SubscriberID == subscriberID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) MarkPaid(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	b, ok := r.bills[id]
	if !ok {
		return ErrNotFound
	}
	b.Paid = true
	r.bills[id] = b
	return nil
}

func (r *MemoryRepo) UpdateAmount(ctx context.Context, id string, expected, next decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	b, ok := r.bills[id]
	if !ok {
		return ErrNotFound
	}
	if !b.Amount.Equal(expected) {
		return ErrAmountConflict
	}
	b.Amount = next
	r.bills[id] = b
	return nil
}

// Len returns the number of stored bills.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bills)
}
