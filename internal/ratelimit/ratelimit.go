package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is the fixed counting window.
const Window = 60 * time.Second

var (
	ErrTenantLimited = errors.New("Tenant rate limit exceeded")
	ErrUserLimited   = errors.New("User rate limit exceeded")
)

// Store increments a counter, starting its window on the first hit.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces per-tenant and per-user request quotas.
type Limiter struct {
	store     Store
	tenantMax int64
	userMax   int64
}

// New builds a limiter. A non-positive limit disables that check.
func New(store Store, tenantPerMin, userPerMin int) *Limiter {
	return &Limiter{store: store, tenantMax: int64(tenantPerMin), userMax: int64(userPerMin)}
}

// Check counts one request for the tenant and, when userID is set, the user.
func (l *Limiter) Check(ctx context.Context, tenantID, userID string) error {
	if l.tenantMax > 0 {
		n, err := l.store.Incr(ctx, "rl:tenant:"+tenantID, Window)
		if err != nil {
			return err
		}
		if n > l.tenantMax {
			return ErrTenantLimited
		}
	}
	if userID != "" && l.userMax > 0 {
		n, err := l.store.Incr(ctx, "rl:user:"+userID, Window)
		if err != nil {
			return err
		}
		if n > l.userMax {
			return ErrUserLimited
		}
	}
	return nil
}

// RedisStore keeps counters in Redis so limits hold across API replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// MemoryStore is a single-process counter store. Expired windows are swept
// at most once per window length.
type MemoryStore struct {
	mu        sync.Mutex
	counters  map[string]*counter
	now       func() time.Time
	nextSweep time.Time
}

type counter struct {
	n       int64
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter), now: time.Now}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(s.nextSweep) {
		for k, c := range s.counters {
			if !now.Before(c.expires) {
				delete(s.counters, k)
			}
		}
		s.nextSweep = now.Add(window)
	}

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expires) {
		c = &counter{expires: now.Add(window)}
		s.counters[key] = c
	}
	c.n++
	return c.n, nil
}
