package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecontract/internal/domain"
	"ridecontract/internal/service"
)

func TestDisputeRide(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ride := completedRide(t, f, 100, 100)

	_, err := f.Service.DisputeRide(ctx, ride.ID, driver)
	assert.ErrorIs(t, err, service.ErrDispute)
	requireUnchanged(t, f, ride)

	disputed, err := f.Service.DisputeRide(ctx, ride.ID, rider)
	require.NoError(t, err)
	assert.True(t, disputed.Disputed)
	assert.Equal(t, domain.RideStateDisputed, disputed.State())
	assert.Equal(t, 1, disputed.DisputeAttempts)

	again, err := f.Service.DisputeRide(ctx, ride.ID, rider)
	require.NoError(t, err)
	assert.Equal(t, 1, again.DisputeAttempts)
}

func TestResolveDispute_InFavorOfDriver(t *testing.T) {
	f := newFixture()
	ride := disputedRide(t, f, 100, 100)

	resolved, err := f.Service.ResolveDispute(context.Background(), ride.ID, true, rider)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), f.Store.Balance(driver))
	assert.Zero(t, resolved.Escrow)
	assert.Zero(t, f.Store.Escrow(ride.ID))
	assert.True(t, resolved.Driver.IsNone())
	assert.False(t, resolved.Completed)
	assert.False(t, resolved.Disputed)
}

func TestResolveDispute_InFavorOfRider(t *testing.T) {
	f := newFixture()
	ride := disputedRide(t, f, 100, 100)

	resolved, err := f.Service.ResolveDispute(context.Background(), ride.ID, false, rider)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), f.Store.Balance(rider))
	assert.Zero(t, f.Store.Balance(driver))
	assert.True(t, resolved.Driver.IsNone())
	assert.False(t, resolved.Disputed)
}

func TestResolveDispute_Preconditions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	t.Run("only the rider resolves", func(t *testing.T) {
		ride := disputedRide(t, f, 100, 100)
		_, err := f.Service.ResolveDispute(ctx, ride.ID, true, driver)
		assert.ErrorIs(t, err, service.ErrDispute)
		requireUnchanged(t, f, ride)
	})

	t.Run("must be disputed", func(t *testing.T) {
		ride := completedRide(t, f, 100, 100)
		_, err := f.Service.ResolveDispute(ctx, ride.ID, true, rider)
		assert.ErrorIs(t, err, service.ErrAlreadyResolved)
		requireUnchanged(t, f, ride)
	})

	t.Run("second resolution fails", func(t *testing.T) {
		ride := disputedRide(t, f, 100, 100)
		_, err := f.Service.ResolveDispute(ctx, ride.ID, true, rider)
		require.NoError(t, err)
		_, err = f.Service.ResolveDispute(ctx, ride.ID, true, rider)
		assert.ErrorIs(t, err, service.ErrAlreadyResolved)
	})

	t.Run("disputed before acceptance has no driver", func(t *testing.T) {
		ride := fundedRide(t, f, 100, 100)
		_, err := f.Service.DisputeRide(ctx, ride.ID, rider)
		require.NoError(t, err)
		_, err = f.Service.ResolveDispute(ctx, ride.ID, true, rider)
		assert.ErrorIs(t, err, service.ErrInvalidBid)
		assert.Equal(t, uint64(100), f.Store.Escrow(ride.ID))
	})
}

func TestDisputeAttemptLimit(t *testing.T) {
	policy := service.DefaultPolicy()
	policy.MaxDisputeAttempts = 2
	f := NewContractFixture(policy)
	ctx := context.Background()
	ride := requestRide(t, f, 100)

	for i := 0; i < 2; i++ {
		_, err := f.Service.AcceptRide(ctx, ride.ID, driver)
		require.NoError(t, err)
		_, err = f.Service.CompleteRide(ctx, ride.ID, driver)
		require.NoError(t, err)
		_, err = f.Service.DisputeRide(ctx, ride.ID, rider)
		require.NoError(t, err)
		_, err = f.Service.ResolveDispute(ctx, ride.ID, false, rider)
		require.NoError(t, err)
	}

	_, err := f.Service.DisputeRide(ctx, ride.ID, rider)
	assert.ErrorIs(t, err, service.ErrDispute)
	assert.Equal(t, 2, f.Store.GetRide(ride.ID).DisputeAttempts)
}
