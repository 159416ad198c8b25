package service

import "errors"

// ContractError is a business-rule violation of the ride contract. Each one
// carries a stable code; callers match sentinels with errors.Is and read the
// code with errors.As.
type ContractError struct {
	Code string
	msg  string
}

func (e *ContractError) Error() string { return e.msg }

func newContractError(code, msg string) *ContractError {
	return &ContractError{Code: code, msg: msg}
}

// Contract errors. None of them is retryable: the transition is illegal in
// the current state of the ride.
var (
	// ErrInvalidRide is returned when the ride state or input does not allow the operation.
	ErrInvalidRide = newContractError("InvalidRide", "invalid ride")

	// ErrInvalidBid is returned when the ride has already been accepted, or has no driver to pay.
	ErrInvalidBid = newContractError("InvalidBid", "invalid bid")

	// ErrNotDriver is returned when the caller is not the driver of the ride.
	ErrNotDriver = newContractError("NotDriver", "caller is not the driver")

	// ErrNotRider is returned when the caller is not the rider of the ride.
	ErrNotRider = newContractError("NotRider", "caller is not the rider")

	// ErrInsufficientFunds is returned when the escrow does not cover the price.
	ErrInsufficientFunds = newContractError("InsufficientFunds", "insufficient funds in escrow")

	// ErrDispute is returned when the caller may not open or resolve a dispute.
	ErrDispute = newContractError("Dispute", "dispute not allowed")

	// ErrAlreadyResolved is returned when resolving a ride that is not disputed.
	ErrAlreadyResolved = newContractError("AlreadyResolved", "dispute already resolved")

	// ErrInvalidWithdrawal is returned when funds cannot be added or withdrawn.
	ErrInvalidWithdrawal = newContractError("InvalidWithdrawal", "invalid withdrawal")

	// ErrInvalidRating is returned when a rating is outside [0, 5].
	ErrInvalidRating = newContractError("InvalidRating", "invalid rating")

	// ErrAlreadyRated is returned when a write-once rating is set a second time.
	ErrAlreadyRated = newContractError("AlreadyRated", "rating already given")
)

var (
	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidCaller is returned when the caller identity is empty.
	ErrInvalidCaller = errors.New("invalid caller identity")

	// ErrRideBusy is returned when another writer holds the ride lock.
	ErrRideBusy = errors.New("ride is being modified by another request")
)

// ErrorCode returns the contract code of err, or "" for other errors.
func ErrorCode(err error) string {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
