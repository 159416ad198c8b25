package domain

import "time"

// TransferKind identifies why value moved in or out of an escrow.
type TransferKind string

const (
	TransferDeposit      TransferKind = "DEPOSIT"
	TransferRelease      TransferKind = "RELEASE"
	TransferResolution   TransferKind = "RESOLUTION"
	TransferCancellation TransferKind = "CANCELLATION"
	TransferRefund       TransferKind = "REFUND"
)

// Transfer is an audit record of a single escrow movement. For deposits the
// party is the payer, for every other kind it is the recipient.
type Transfer struct {
	ID        string
	RideID    string
	Kind      TransferKind
	Party     Identity
	Amount    uint64
	CreatedAt time.Time
}
