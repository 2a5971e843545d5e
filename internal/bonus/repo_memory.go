package bonus

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory bonus store for tests and local development.
// It does not implement Transactor, so the ledger compensates on failure.
type MemoryStore struct {
	mu      sync.Mutex
	bonuses map[string]Bonus

	// Err, when set, fails every call.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bonuses: make(map[string]Bonus)}
}

func (s *MemoryStore) Insert(ctx context.Context, b Bonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.bonuses[b.ID]; ok {
		return ErrInvalidArgument
	}
	s.bonuses[b.ID] = b
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Bonus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Bonus{}, s.Err
	}
	b, ok := s.bonuses[id]
	if !ok {
		return Bonus{}, ErrBonusNotFound
	}
	return b, nil
}

func (s *MemoryStore) MarkApplied(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	b, ok := s.bonuses[id]
	if !ok {
		return ErrBonusNotFound
	}
	if b.Applied {
		return ErrAlreadyApplied
	}
	b.Applied = true
	b.AppliedAt = &at
	s.bonuses[id] = b
	return nil
}
