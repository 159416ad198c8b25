package repository

import (
	"context"

	"ridecontract/internal/domain"
)

// EscrowLedger holds the value escrowed by rides and the balances of the
// parties it is paid out to. Implementations must be all-or-nothing.
type EscrowLedger interface {
	// Deposit adds amount paid by from to the escrow of rideID.
	Deposit(ctx context.Context, rideID string, from domain.Identity, amount uint64) error

	// WithdrawAll empties the escrow of rideID and returns the withdrawn funds.
	WithdrawAll(ctx context.Context, rideID string) (*domain.Funds, error)

	// ValueOf returns the current escrow balance of rideID.
	ValueOf(ctx context.Context, rideID string) (uint64, error)

	// Transfer hands funds to exactly one recipient. Funds are consumed even
	// when empty; an empty transfer records nothing and succeeds.
	Transfer(ctx context.Context, funds *domain.Funds, to domain.Identity, kind domain.TransferKind) error

	// BalanceOf returns the amount paid out to an identity so far.
	BalanceOf(ctx context.Context, id domain.Identity) (uint64, error)

	// ListTransfers returns the escrow movements of a ride, oldest first.
	ListTransfers(ctx context.Context, rideID string) ([]*domain.Transfer, error)
}
