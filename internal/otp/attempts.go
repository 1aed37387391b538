package otp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
)

// Attempts counts failed redemptions per caller and booking. Counts expire
// after a window so idle entries do not pile up.
type Attempts interface {
	Failures(ctx context.Context, key string) (int, error)
	RecordFailure(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

// attemptKey scopes a booking to the caller so one user cannot lock out
// another. Unverified callers are told apart by a hash of their token.
func attemptKey(ctx context.Context, bookingID string) string {
	principal := "anonymous"
	if user, ok := identity.UserFromContext(ctx); ok {
		switch {
		case user.Subject != "":
			principal = "sub:" + user.Subject
		case user.Token != "":
			sum := sha256.Sum256([]byte(user.Token))
			principal = "tok:" + hex.EncodeToString(sum[:8])
		}
	}
	return principal + "|" + bookingID
}

const defaultMemoryLimit = 10000

// MemoryAttempts keeps counts in process. The map is bounded by limit; when
// full, expired entries go first, then the entry closest to expiry.
type MemoryAttempts struct {
	mu      sync.Mutex
	entries map[string]memoryAttempt
	window  time.Duration
	limit   int
	now     func() time.Time
}

type memoryAttempt struct {
	count   int
	expires time.Time
}

// NewMemoryAttempts creates an in-process counter with the given window.
func NewMemoryAttempts(window time.Duration) *MemoryAttempts {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &MemoryAttempts{
		entries: make(map[string]memoryAttempt),
		window:  window,
		limit:   defaultMemoryLimit,
		now:     time.Now,
	}
}

func (m *MemoryAttempts) Failures(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return 0, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return 0, nil
	}
	return e.count, nil
}

func (m *MemoryAttempts) RecordFailure(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.expires) {
		if !ok && len(m.entries) >= m.limit {
			m.evictLocked(now)
		}
		e = memoryAttempt{expires: now.Add(m.window)}
	}
	e.count++
	m.entries[key] = e
	return e.count, nil
}

func (m *MemoryAttempts) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys.
func (m *MemoryAttempts) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryAttempts) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, key)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = key, e.expires
		}
	}
	if len(m.entries) >= m.limit && oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// RedisAttempts shares counts between API instances.
type RedisAttempts struct {
	redis  *redis.Client
	window time.Duration
}

// NewRedisAttempts creates a Redis-backed counter with the given window.
func NewRedisAttempts(client *redis.Client, window time.Duration) *RedisAttempts {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisAttempts{redis: client, window: window}
}

func (r *RedisAttempts) key(key string) string {
	return "otp:attempts:" + key
}

func (r *RedisAttempts) Failures(ctx context.Context, key string) (int, error) {
	n, err := r.redis.Get(ctx, r.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("otp: read attempts: %w", err)
	}
	return n, nil
}

func (r *RedisAttempts) RecordFailure(ctx context.Context, key string) (int, error) {
	k := r.key(key)
	n, err := r.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("otp: record attempt: %w", err)
	}
	if n == 1 {
		if err := r.redis.Expire(ctx, k, r.window).Err(); err != nil {
			return int(n), fmt.Errorf("otp: expire attempts: %w", err)
		}
	}
	return int(n), nil
}

func (r *RedisAttempts) Clear(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("otp: clear attempts: %w", err)
	}
	return nil
}
