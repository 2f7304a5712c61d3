package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationSet remembers revoked token ids until the tokens would have
// expired on their own.
type RevocationSet interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const revokedKeyPrefix = "auth:revoked:"

// RedisRevocationSet stores revoked ids as expiring Redis keys.
type RedisRevocationSet struct {
	client redis.Cmdable
}

// NewRedisRevocationSet wraps a Redis client.
func NewRedisRevocationSet(client redis.Cmdable) *RedisRevocationSet {
	return &RedisRevocationSet{client: client}
}

// Revoke marks jti revoked for ttl. Tokens already past expiry need no entry.
func (s *RedisRevocationSet) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti is in the set.
func (s *RedisRevocationSet) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("auth: check revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryRevocationSet keeps revoked ids in process.
type MemoryRevocationSet struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemoryRevocationSet builds an empty set. A nil now uses time.Now.
func NewMemoryRevocationSet(now func() time.Time) *MemoryRevocationSet {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocationSet{now: now, entries: make(map[string]time.Time)}
}

// Revoke marks jti revoked for ttl.
func (s *MemoryRevocationSet) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = s.now().Add(ttl)
	return nil
}

// IsRevoked reports whether jti is in the set, dropping it once expired.
func (s *MemoryRevocationSet) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.entries[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.entries, jti)
		return false, nil
	}
	return true, nil
}

var (
	_ RevocationSet = (*RedisRevocationSet)(nil)
	_ RevocationSet = (*MemoryRevocationSet)(nil)
)
