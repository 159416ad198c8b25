package redis

import (
	"context"
	"time"

	"ridecontract/internal/domain"
)

// RideLockInterface defines the interface for per-ride locking.
type RideLockInterface interface {
	AcquireRideLock(ctx context.Context, rideID string, ttl time.Duration) (string, bool, error)
	ReleaseRideLock(ctx context.Context, rideID, token string) error
}

// RideCacheInterface defines the interface for ride view caching.
type RideCacheInterface interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// PublisherInterface defines the interface for event publishing.
type PublisherInterface interface {
	Publish(ctx context.Context, payload []byte) error
}

// Ensure concrete types implement interfaces.
var (
	_ RideLockInterface  = (*LockStore)(nil)
	_ RideCacheInterface = (*CacheStore)(nil)
	_ PublisherInterface = (*EventPublisher)(nil)
)
