package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ridecontract/internal/domain"
)

func TestCachedRideKeepsOptionalFields(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	ride := &domain.Ride{
		ID:                  "ride-1",
		Rider:               "rider-1",
		Driver:              domain.Some[domain.Identity]("driver-1"),
		Destination:         []byte("dest"),
		Price:               100,
		Escrow:              150,
		Completed:           true,
		RiderRating:         domain.Some(domain.Rating(0)),
		DriverRatingSubject: domain.Some[domain.Identity]("driver-0"),
		DisputeAttempts:     2,
		Version:             7,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	got := toCached(ride).toRide()

	assert.Equal(t, ride, got)
	assert.True(t, got.DriverRating.IsNone())
	assert.Equal(t, domain.Some(domain.Rating(0)), got.RiderRating)
}

func TestRideLockKey(t *testing.T) {
	assert.Equal(t, "lock:ride:ride-1", rideLockKey("ride-1"))
}
