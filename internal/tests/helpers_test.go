package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ridecontract/internal/domain"
	"ridecontract/internal/service"
)

const (
	rider    domain.Identity = "rider-1"
	driver   domain.Identity = "driver-1"
	stranger domain.Identity = "stranger-1"
)

func newFixture() *ContractFixture {
	return NewContractFixture(service.DefaultPolicy())
}

// requestRide opens a ride for rider at price.
func requestRide(t *testing.T, f *ContractFixture, price uint64) *domain.Ride {
	t.Helper()
	ride, err := f.Service.RequestRide(context.Background(), service.RequestRideRequest{
		Caller:      rider,
		Destination: []byte("12.97,77.59"),
		Price:       price,
	})
	require.NoError(t, err)
	return ride
}

// fundedRide opens a ride and deposits escrow into it.
func fundedRide(t *testing.T, f *ContractFixture, price, escrow uint64) *domain.Ride {
	t.Helper()
	ride := requestRide(t, f, price)
	if escrow > 0 {
		var err error
		ride, err = f.Service.AddFundsToRide(context.Background(), ride.ID, escrow, rider)
		require.NoError(t, err)
	}
	return ride
}

// acceptedRide opens a funded ride accepted by driver.
func acceptedRide(t *testing.T, f *ContractFixture, price, escrow uint64) *domain.Ride {
	t.Helper()
	ride := fundedRide(t, f, price, escrow)
	ride, err := f.Service.AcceptRide(context.Background(), ride.ID, driver)
	require.NoError(t, err)
	return ride
}

// completedRide opens a funded ride that driver accepted and completed.
func completedRide(t *testing.T, f *ContractFixture, price, escrow uint64) *domain.Ride {
	t.Helper()
	ride := acceptedRide(t, f, price, escrow)
	ride, err := f.Service.CompleteRide(context.Background(), ride.ID, driver)
	require.NoError(t, err)
	return ride
}

// disputedRide opens a completed ride that the rider disputed.
func disputedRide(t *testing.T, f *ContractFixture, price, escrow uint64) *domain.Ride {
	t.Helper()
	ride := completedRide(t, f, price, escrow)
	ride, err := f.Service.DisputeRide(context.Background(), ride.ID, rider)
	require.NoError(t, err)
	return ride
}

// requireUnchanged asserts a rejected operation left ride and escrow intact.
func requireUnchanged(t *testing.T, f *ContractFixture, before *domain.Ride) {
	t.Helper()
	after := f.Store.GetRide(before.ID)
	require.NotNil(t, after)
	require.Equal(t, before.Driver, after.Driver)
	require.Equal(t, before.Completed, after.Completed)
	require.Equal(t, before.Disputed, after.Disputed)
	require.Equal(t, before.Price, after.Price)
	require.Equal(t, before.Destination, after.Destination)
	require.Equal(t, before.RiderRating, after.RiderRating)
	require.Equal(t, before.DriverRating, after.DriverRating)
	require.Equal(t, before.Escrow, f.Store.Escrow(before.ID))
}
