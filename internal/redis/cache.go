package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ridecontract/internal/domain"
)

// RideCacheTTL bounds how long a ride view may be served from cache. Every
// transition overwrites the entry, the TTL only limits stale reads after a
// failed cache write.
const RideCacheTTL = 30 * time.Second

const rideCachePrefix = "cache:ride:"

// CacheStore handles ride view caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// setIfNewerScript stores ARGV[1] unless the cached view has a version of
// at least ARGV[2].
var setIfNewerScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
	local ok, cached = pcall(cjson.decode, current)
	if ok and type(cached) == "table" then
		local version = tonumber(cached["version"])
		if version and version >= tonumber(ARGV[2]) then
			return 0
		end
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// cachedRide is the JSON form of a ride view.
type cachedRide struct {
	ID                  string           `json:"id"`
	Rider               domain.Identity  `json:"rider"`
	Driver              *domain.Identity `json:"driver,omitempty"`
	Destination         []byte           `json:"destination"`
	Price               uint64           `json:"price"`
	Escrow              uint64           `json:"escrow"`
	Completed           bool             `json:"completed"`
	Disputed            bool             `json:"disputed"`
	RiderRating         *domain.Rating   `json:"rider_rating,omitempty"`
	DriverRating        *domain.Rating   `json:"driver_rating,omitempty"`
	DriverRatingSubject *domain.Identity `json:"driver_rating_subject,omitempty"`
	DisputeAttempts     int              `json:"dispute_attempts"`
	Version             int64            `json:"version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func toCached(ride *domain.Ride) *cachedRide {
	return &cachedRide{
		ID:                  ride.ID,
		Rider:               ride.Rider,
		Driver:              ride.Driver.Ptr(),
		Destination:         ride.Destination,
		Price:               ride.Price,
		Escrow:              ride.Escrow,
		Completed:           ride.Completed,
		Disputed:            ride.Disputed,
		RiderRating:         ride.RiderRating.Ptr(),
		DriverRating:        ride.DriverRating.Ptr(),
		DriverRatingSubject: ride.DriverRatingSubject.Ptr(),
		DisputeAttempts:     ride.DisputeAttempts,
		Version:             ride.Version,
		CreatedAt:           ride.CreatedAt,
		UpdatedAt:           ride.UpdatedAt,
	}
}

func (c *cachedRide) toRide() *domain.Ride {
	return &domain.Ride{
		ID:                  c.ID,
		Rider:               c.Rider,
		Driver:              domain.FromPtr(c.Driver),
		Destination:         c.Destination,
		Price:               c.Price,
		Escrow:              c.Escrow,
		Completed:           c.Completed,
		Disputed:            c.Disputed,
		RiderRating:         domain.FromPtr(c.RiderRating),
		DriverRating:        domain.FromPtr(c.DriverRating),
		DriverRatingSubject: domain.FromPtr(c.DriverRatingSubject),
		DisputeAttempts:     c.DisputeAttempts,
		Version:             c.Version,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// GetRide retrieves a ride view from cache. A miss returns nil, nil.
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	data, err := s.client.Get(ctx, rideCachePrefix+rideID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached cachedRide
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return cached.toRide(), nil
}

// SetRide stores a ride view in cache unless a view with the same or a
// higher version is already cached.
func (s *CacheStore) SetRide(ctx context.Context, ride *domain.Ride) error {
	data, err := json.Marshal(toCached(ride))
	if err != nil {
		return err
	}
	return setIfNewerScript.Run(ctx, s.client, []string{rideCachePrefix + ride.ID},
		data, ride.Version, RideCacheTTL.Milliseconds()).Err()
}

// InvalidateRide removes a ride view from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, rideCachePrefix+rideID).Err()
}
