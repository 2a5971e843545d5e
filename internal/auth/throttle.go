package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tulen-chik/beltelekom-sub000/pkg/utils"
)

var ErrLoginLocked = errors.New("too many failed login attempts, try again later")

// AttemptStore keeps failed-login counters that expire on their own.
type AttemptStore interface {
	Failures(ctx context.Context, key string) (int64, error)
	// RecordFailure increments the counter; the first failure of a window starts its TTL.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Throttle locks a username out after too many failed logins within the lockout window.
type Throttle struct {
	store       AttemptStore
	maxAttempts int64
	lockout     time.Duration
}

func NewThrottle(store AttemptStore, maxAttempts int, lockout time.Duration) *Throttle {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &Throttle{store: store, maxAttempts: int64(maxAttempts), lockout: lockout}
}

func attemptKey(username string) string {
	return "billing:login:fail:" + normalizeUsername(username)
}

// Allow returns ErrLoginLocked while username is locked out.
func (t *Throttle) Allow(ctx context.Context, username string) error {
	n, err := t.store.Failures(ctx, attemptKey(username))
	if err != nil {
		return err
	}
	if n >= t.maxAttempts {
		return ErrLoginLocked
	}
	return nil
}

func (t *Throttle) Failed(ctx context.Context, username string) error {
	_, err := t.store.RecordFailure(ctx, attemptKey(username), t.lockout)
	return err
}

func (t *Throttle) Succeeded(ctx context.Context, username string) error {
	return t.store.Reset(ctx, attemptKey(username))
}

// RedisAttemptStore shares counters across API instances.
type RedisAttemptStore struct {
	rdb *redis.Client
}

func NewRedisAttemptStore(rdb *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{rdb: rdb}
}

func (s *RedisAttemptStore) Failures(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisAttemptStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	return utils.IncrementWithTTL(ctx, s.rdb, key, window)
}

func (s *RedisAttemptStore) Reset(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// MemoryAttemptStore is a single-process AttemptStore for tests and local runs.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	entries map[string]attemptEntry
	clock   func() time.Time
}

type attemptEntry struct {
	n       int64
	expires time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{entries: make(map[string]attemptEntry), clock: time.Now}
}

func (s *MemoryAttemptStore) Failures(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.clock().Before(e.expires) {
		delete(s.entries, key)
		return 0, nil
	}
	return e.n, nil
}

func (s *MemoryAttemptStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expires) {
		e = attemptEntry{expires: now.Add(window)}
	}
	e.n++
	s.entries[key] = e
	return e.n, nil
}

func (s *MemoryAttemptStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
