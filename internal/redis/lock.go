package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore hands out short-lived named leases shared by every instance.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// TryAcquire takes the named lease for ttl. Returns false if another
// holder has it. The lease is never released early; it expires.
func (s *LockStore) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", name)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}
