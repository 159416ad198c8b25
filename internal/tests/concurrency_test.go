package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecontract/internal/domain"
	"ridecontract/internal/service"
)

// Without the Redis lock the transaction alone must keep a ride single-writer.
func TestConcurrentAccept_OnlyOneDriverWins(t *testing.T) {
	store := NewMockStore()
	svc := service.NewContractService(service.ContractServiceDeps{
		Store:      store,
		Transactor: store,
		Policy:     service.DefaultPolicy(),
	})
	ctx := context.Background()

	ride, err := svc.RequestRide(ctx, service.RequestRideRequest{Caller: rider, Price: 100})
	require.NoError(t, err)

	const drivers = 20
	var wg sync.WaitGroup
	errs := make(chan error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AcceptRide(ctx, ride.ID, domain.Identity(fmt.Sprintf("driver-%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, service.ErrInvalidBid)
	}
	assert.Equal(t, 1, succeeded)
}

func TestConcurrentRelease_PaysOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ride := completedRide(t, f, 100, 200)

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Service.ReleasePayment(ctx, ride.ID, rider)
			if err != nil && !errors.Is(err, service.ErrInvalidBid) && !errors.Is(err, service.ErrRideBusy) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(200), f.Store.Balance(driver))
	assert.Zero(t, f.Store.Escrow(ride.ID))
}
