package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles per-ride single-writer locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func rideLockKey(rideID string) string {
	return fmt.Sprintf("lock:ride:%s", rideID)
}

// AcquireRideLock attempts to acquire the lock for the given ride.
// It returns the owner token and true if the lock was acquired, false if
// another writer holds it.
func (s *LockStore) AcquireRideLock(ctx context.Context, rideID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, rideLockKey(rideID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}

	return token, ok, nil
}

// ReleaseRideLock releases the lock for the given ride if token still owns it.
func (s *LockStore) ReleaseRideLock(ctx context.Context, rideID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{rideLockKey(rideID)}, token).Err()
}
