package repository

import (
	"context"

	"ridecontract/internal/domain"
)

// RideRepository defines the persistence operations for ride contracts.
// Implementations do not persist Ride.Escrow; the escrow balance is owned by
// the EscrowLedger.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetForUpdate retrieves a ride and locks it for the rest of the
	// surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// Update updates an existing ride.
	Update(ctx context.Context, ride *domain.Ride) error

	// ListRated retrieves rides that carry a rating for subject in the given role.
	ListRated(ctx context.Context, subject domain.Identity, role domain.Role) ([]*domain.Ride, error)
}
