package domain

import "errors"

// ErrFundsSpent is returned when withdrawn funds are handed over twice.
var ErrFundsSpent = errors.New("funds already transferred")

// Funds is value withdrawn from a ride escrow that has not been delivered
// yet. It can be taken exactly once; afterwards it holds nothing.
type Funds struct {
	rideID string
	amount uint64
	spent  bool
}

// NewFunds wraps an amount withdrawn from the escrow of rideID.
func NewFunds(rideID string, amount uint64) *Funds {
	return &Funds{rideID: rideID, amount: amount}
}

// RideID returns the ride the funds were withdrawn from.
func (f *Funds) RideID() string { return f.rideID }

// Amount returns the value still held.
func (f *Funds) Amount() uint64 {
	if f == nil {
		return 0
	}
	return f.amount
}

// Take moves the held amount out and zeroes the funds.
func (f *Funds) Take() (uint64, error) {
	if f == nil || f.spent {
		return 0, ErrFundsSpent
	}
	amount := f.amount
	f.amount = 0
	f.spent = true
	return amount, nil
}
