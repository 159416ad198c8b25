package domain

import "time"

// Identity is the authenticated caller or counterparty of a ride.
// It is opaque to the contract and only compared for equality.
type Identity string

// Role identifies which side of a ride a rating refers to.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
)

// Rating is a counterparty score in [0, MaxRating].
type Rating uint8

// MaxRating is the highest accepted rating.
const MaxRating Rating = 5

// RideState is derived from the ride fields; it is never stored.
type RideState string

const (
	RideStateRequested RideState = "REQUESTED"
	RideStateAccepted  RideState = "ACCEPTED"
	RideStateCompleted RideState = "COMPLETED"
	RideStateDisputed  RideState = "DISPUTED"
)

// Ride represents a single ride contract between a rider and a driver.
type Ride struct {
	ID          string
	Rider       Identity
	Driver      Option[Identity]
	Destination []byte
	Price       uint64
	Escrow      uint64 // Mirror of the ledger balance, loaded with the ride.
	Completed   bool
	Disputed    bool

	RiderRating         Option[Rating]
	DriverRating        Option[Rating]
	DriverRatingSubject Option[Identity] // Driver that DriverRating was given to.
	DisputeAttempts     int

	// Version is incremented by every committed transition. Cached views
	// never replace a view with a higher version.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the lifecycle state from the ride fields.
func (r *Ride) State() RideState {
	switch {
	case r.Disputed:
		return RideStateDisputed
	case r.Completed:
		return RideStateCompleted
	case r.Driver.IsSome():
		return RideStateAccepted
	default:
		return RideStateRequested
	}
}

// IsDriver reports whether id is the accepted driver of the ride.
func (r *Ride) IsDriver(id Identity) bool {
	driver, ok := r.Driver.Get()
	return ok && driver == id
}

// IsRider reports whether id requested the ride.
func (r *Ride) IsRider(id Identity) bool {
	return r.Rider == id
}

// Settleable reports whether payment may be released to the driver.
func (r *Ride) Settleable() bool {
	return r.Completed && !r.Disputed
}

// ResetCycle clears the per-cycle lifecycle fields after the escrow has been
// drained or the ride was cancelled. The ride can be accepted again afterwards.
func (r *Ride) ResetCycle() {
	r.Driver = None[Identity]()
	r.Completed = false
	r.Disputed = false
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored instance.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Destination != nil {
		clone.Destination = append([]byte(nil), r.Destination...)
	}
	return &clone
}
