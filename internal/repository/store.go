package repository

import "context"

// Store groups the repositories a ride contract operation works with.
type Store interface {
	Rides() RideRepository
	Ledger() EscrowLedger
}

// Transactor runs fn against a Store whose writes commit together. If fn
// returns an error nothing it wrote is kept.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
