package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"

	"ridecontract/internal/domain"
	"ridecontract/internal/repository"
)

// Operation names a ride contract operation. It labels metrics, traces and
// notifications.
type Operation string

const (
	OpRequestRide           Operation = "request_ride"
	OpAcceptRide            Operation = "accept_ride"
	OpCompleteRide          Operation = "complete_ride"
	OpMarkRideComplete      Operation = "mark_ride_complete"
	OpDisputeRide           Operation = "dispute_ride"
	OpResolveDispute        Operation = "resolve_dispute"
	OpReleasePayment        Operation = "release_payment"
	OpCancelRide            Operation = "cancel_ride"
	OpUpdateRideDestination Operation = "update_ride_destination"
	OpUpdateRidePrice       Operation = "update_ride_price"
	OpAddFunds              Operation = "add_funds_to_ride"
	OpRequestRefund         Operation = "request_refund"
	OpRateDriver            Operation = "rate_driver"
	OpRateRider             Operation = "rate_rider"
)

const (
	// DefaultMaxEscrowMultiplier caps the escrow at twice the ride price.
	DefaultMaxEscrowMultiplier = 2
	defaultLockTTL             = 10 * time.Second
)

// Policy holds the configurable rules of the contract.
type Policy struct {
	// MaxEscrowMultiplier bounds escrow to Price * MaxEscrowMultiplier when funds are added.
	MaxEscrowMultiplier uint64
	// WriteOnceRatings rejects a second rating for the same ride and role.
	WriteOnceRatings bool
	// MaxDisputeAttempts limits how often a rider may dispute one ride. Zero means unlimited.
	MaxDisputeAttempts int
	// LockTTL bounds how long a single transition may hold the ride lock.
	LockTTL time.Duration
}

// DefaultPolicy returns the standard contract rules.
func DefaultPolicy() Policy {
	return Policy{
		MaxEscrowMultiplier: DefaultMaxEscrowMultiplier,
		WriteOnceRatings:    true,
		LockTTL:             defaultLockTTL,
	}
}

// Settlement describes the escrow movement made by a transition. Party is
// the payer for deposits and the recipient for every other kind.
type Settlement struct {
	Kind   domain.TransferKind
	Party  domain.Identity
	Amount uint64
}

// RideLocker serializes writers of a single ride.
type RideLocker interface {
	AcquireRideLock(ctx context.Context, rideID string, ttl time.Duration) (string, bool, error)
	ReleaseRideLock(ctx context.Context, rideID, token string) error
}

// RideCache caches ride views for reads. SetRide must keep a cached view
// whose Version is at least that of ride.
type RideCache interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// ContractServiceDeps contains the dependencies of a ContractService.
// Locker, Cache, Notifications and Metrics are optional.
type ContractServiceDeps struct {
	Store         repository.Store
	Transactor    repository.Transactor
	Locker        RideLocker
	Cache         RideCache
	Notifications *NotificationService
	Metrics       *Metrics
	Logger        *slog.Logger
	Policy        Policy
}

// ContractService implements the ride contract state machine.
type ContractService struct {
	store         repository.Store
	tx            repository.Transactor
	locker        RideLocker
	cache         RideCache
	notifications *NotificationService
	metrics       *Metrics
	logger        *slog.Logger
	policy        Policy
	now           func() time.Time
}

// NewContractService creates a new ContractService.
func NewContractService(deps ContractServiceDeps) *ContractService {
	policy := deps.Policy
	if policy.MaxEscrowMultiplier == 0 {
		policy.MaxEscrowMultiplier = DefaultMaxEscrowMultiplier
	}
	if policy.LockTTL <= 0 {
		policy.LockTTL = defaultLockTTL
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ContractService{
		store:         deps.Store,
		tx:            deps.Transactor,
		locker:        deps.Locker,
		cache:         deps.Cache,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		logger:        logger,
		policy:        policy,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for ride timestamps.
func (s *ContractService) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s.now = now
}

// Policy returns the rules the service enforces.
func (s *ContractService) Policy() Policy { return s.policy }

// RequestRideRequest contains the parameters for requesting a ride.
type RequestRideRequest struct {
	Caller      domain.Identity
	Destination []byte
	Price       uint64
}

// RequestRide creates a new ride with an empty escrow and no driver.
func (s *ContractService) RequestRide(ctx context.Context, req RequestRideRequest) (ride *domain.Ride, err error) {
	defer newrelic.FromContext(ctx).StartSegment("contract/" + string(OpRequestRide)).End()
	defer func() { s.metrics.observe(string(OpRequestRide), err) }()

	if req.Caller == "" {
		return nil, ErrInvalidCaller
	}
	if req.Price == 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidRide)
	}

	now := s.now()
	ride = &domain.Ride{
		ID:          uuid.New().String(),
		Rider:       req.Caller,
		Destination: append([]byte(nil), req.Destination...),
		Price:       req.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		return store.Rides().Create(ctx, ride)
	})
	if err != nil {
		return nil, err
	}

	if s.notifications != nil {
		_ = s.notifications.NotifyRideRequested(ctx, ride)
	}

	return ride, nil
}

// AcceptRide assigns the caller as driver. A ride is accepted at most once
// per cycle.
func (s *ContractService) AcceptRide(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpAcceptRide, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if ride.Driver.IsSome() {
			return nil, fmt.Errorf("%w: ride already accepted", ErrInvalidBid)
		}
		ride.Driver = domain.Some(caller)
		return nil, nil
	})
}

// CompleteRide marks the ride completed by its driver.
func (s *ContractService) CompleteRide(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpCompleteRide, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if ride.Driver.IsNone() {
			return nil, fmt.Errorf("%w: ride has no driver", ErrInvalidRide)
		}
		if !ride.IsDriver(caller) {
			return nil, ErrNotDriver
		}
		ride.Completed = true
		return nil, nil
	})
}

// MarkRideComplete marks the ride completed by its driver once the escrow
// covers the price.
func (s *ContractService) MarkRideComplete(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpMarkRideComplete, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsDriver(caller) {
			return nil, ErrNotDriver
		}
		if ride.Escrow < ride.Price {
			return nil, fmt.Errorf("%w: escrow %d below price %d", ErrInsufficientFunds, ride.Escrow, ride.Price)
		}
		ride.Completed = true
		return nil, nil
	})
}

// DisputeRide puts the ride on hold, blocking payment release.
func (s *ContractService) DisputeRide(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpDisputeRide, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, fmt.Errorf("%w: only the rider may dispute", ErrDispute)
		}
		if ride.Disputed {
			return nil, nil
		}
		if limit := s.policy.MaxDisputeAttempts; limit > 0 && ride.DisputeAttempts >= limit {
			return nil, fmt.Errorf("%w: dispute limit of %d reached", ErrDispute, limit)
		}
		ride.DisputeAttempts++
		ride.Disputed = true
		return nil, nil
	})
}

// ResolveDispute drains the escrow to the driver when resolved is true and
// back to the rider otherwise, then resets the ride cycle.
func (s *ContractService) ResolveDispute(ctx context.Context, rideID string, resolved bool, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpResolveDispute, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, fmt.Errorf("%w: only the rider may resolve", ErrDispute)
		}
		if !ride.Disputed {
			return nil, ErrAlreadyResolved
		}
		driver, ok := ride.Driver.Get()
		if !ok {
			return nil, fmt.Errorf("%w: ride has no driver", ErrInvalidBid)
		}

		recipient := ride.Rider
		if resolved {
			recipient = driver
		}
		settled, err := drain(ctx, ledger, ride, recipient, domain.TransferResolution)
		if err != nil {
			return nil, err
		}
		ride.ResetCycle()
		return settled, nil
	})
}

// ReleasePayment pays the whole escrow to the driver of a completed,
// undisputed ride and resets the ride cycle.
func (s *ContractService) ReleasePayment(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpReleasePayment, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, ErrNotRider
		}
		// A repeated release fails here with InvalidBid.
		driver, ok := ride.Driver.Get()
		if !ok {
			return nil, fmt.Errorf("%w: ride has no driver", ErrInvalidBid)
		}
		if !ride.Settleable() {
			return nil, fmt.Errorf("%w: ride must be completed and not disputed", ErrInvalidRide)
		}

		settled, err := drain(ctx, ledger, ride, driver, domain.TransferRelease)
		if err != nil {
			return nil, err
		}
		ride.ResetCycle()
		return settled, nil
	})
}

// CancelRide lets either party abandon the current cycle. An accepted ride
// that is neither completed nor disputed refunds its escrow to the rider.
func (s *ContractService) CancelRide(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpCancelRide, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) && !ride.IsDriver(caller) {
			return nil, fmt.Errorf("%w: only the rider or driver may cancel", ErrNotDriver)
		}

		var settled *Settlement
		if ride.Driver.IsSome() && !ride.Completed && !ride.Disputed {
			var err error
			settled, err = drain(ctx, ledger, ride, ride.Rider, domain.TransferCancellation)
			if err != nil {
				return nil, err
			}
		}
		ride.ResetCycle()
		return settled, nil
	})
}

// UpdateRideDestination replaces the destination before completion.
func (s *ContractService) UpdateRideDestination(ctx context.Context, rideID string, destination []byte, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpUpdateRideDestination, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, ErrNotRider
		}
		if ride.Completed {
			return nil, fmt.Errorf("%w: ride already completed", ErrInvalidRide)
		}
		ride.Destination = append([]byte(nil), destination...)
		return nil, nil
	})
}

// UpdateRidePrice replaces the price before completion.
func (s *ContractService) UpdateRidePrice(ctx context.Context, rideID string, price uint64, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpUpdateRidePrice, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, ErrNotRider
		}
		if ride.Completed {
			return nil, fmt.Errorf("%w: ride already completed", ErrInvalidRide)
		}
		if price == 0 {
			return nil, fmt.Errorf("%w: price must be positive", ErrInvalidRide)
		}
		ride.Price = price
		return nil, nil
	})
}

// AddFundsToRide deposits amount into the escrow. The escrow may not exceed
// Price * MaxEscrowMultiplier afterwards.
func (s *ContractService) AddFundsToRide(ctx context.Context, rideID string, amount uint64, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpAddFunds, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, ErrNotRider
		}
		if ride.Completed || ride.Disputed {
			return nil, fmt.Errorf("%w: ride is %s", ErrInvalidWithdrawal, ride.State())
		}
		if amount == 0 {
			return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidWithdrawal)
		}

		limit := escrowCap(ride.Price, s.policy.MaxEscrowMultiplier)
		total, carry := bits.Add64(ride.Escrow, amount, 0)
		if carry != 0 || total > limit {
			return nil, fmt.Errorf("%w: escrow would exceed %d", ErrInvalidWithdrawal, limit)
		}

		if err := ledger.Deposit(ctx, ride.ID, caller, amount); err != nil {
			return nil, err
		}
		ride.Escrow = total
		return &Settlement{Kind: domain.TransferDeposit, Party: caller, Amount: amount}, nil
	})
}

// RequestRefund drains the escrow back to the rider before completion and
// resets the ride cycle.
func (s *ContractService) RequestRefund(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpRequestRefund, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, ErrNotRider
		}
		if ride.Completed {
			return nil, fmt.Errorf("%w: ride already completed", ErrInvalidWithdrawal)
		}

		settled, err := drain(ctx, ledger, ride, ride.Rider, domain.TransferRefund)
		if err != nil {
			return nil, err
		}
		ride.ResetCycle()
		return settled, nil
	})
}

// RateDriver records the rider's rating of the driver.
func (s *ContractService) RateDriver(ctx context.Context, rideID string, rating int, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpRateDriver, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsRider(caller) {
			return nil, ErrNotRider
		}
		value, err := s.checkRating(ride, rating, ride.DriverRating)
		if err != nil {
			return nil, err
		}
		ride.DriverRating = domain.Some(value)
		ride.DriverRatingSubject = ride.Driver
		return nil, nil
	})
}

// RateRider records the driver's rating of the rider.
func (s *ContractService) RateRider(ctx context.Context, rideID string, rating int, caller domain.Identity) (*domain.Ride, error) {
	return s.transition(ctx, OpRateRider, rideID, caller, func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error) {
		if !ride.IsDriver(caller) {
			return nil, ErrNotDriver
		}
		value, err := s.checkRating(ride, rating, ride.RiderRating)
		if err != nil {
			return nil, err
		}
		ride.RiderRating = domain.Some(value)
		return nil, nil
	})
}

func (s *ContractService) checkRating(ride *domain.Ride, rating int, current domain.Option[domain.Rating]) (domain.Rating, error) {
	if !ride.Settleable() {
		return 0, fmt.Errorf("%w: ride must be completed and not disputed", ErrInvalidRide)
	}
	if rating < 0 || rating > int(domain.MaxRating) {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidRating, rating, domain.MaxRating)
	}
	if s.policy.WriteOnceRatings && current.IsSome() {
		return 0, ErrAlreadyRated
	}
	return domain.Rating(rating), nil
}

// GetRide returns the current view of a ride including its escrow balance.
func (s *ContractService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	if s.cache != nil {
		if cached, err := s.cache.GetRide(ctx, rideID); err == nil && cached != nil {
			return cached, nil
		}
	}

	ride, err := s.store.Rides().GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Escrow, err = s.store.Ledger().ValueOf(ctx, rideID); err != nil {
		return nil, err
	}

	// SetRide drops this view if a transition cached a newer version since
	// the reads above.
	if s.cache != nil {
		_ = s.cache.SetRide(ctx, ride)
	}

	return ride, nil
}

// GetRideDestination returns the destination payload of a ride.
func (s *ContractService) GetRideDestination(ctx context.Context, rideID string) ([]byte, error) {
	ride, err := s.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return ride.Destination, nil
}

// GetRidePrice returns the price of a ride.
func (s *ContractService) GetRidePrice(ctx context.Context, rideID string) (uint64, error) {
	ride, err := s.GetRide(ctx, rideID)
	if err != nil {
		return 0, err
	}
	return ride.Price, nil
}

// ListTransfers returns the escrow movements of a ride.
func (s *ContractService) ListTransfers(ctx context.Context, rideID string) ([]*domain.Transfer, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if _, err := s.store.Rides().GetByID(ctx, rideID); err != nil {
		return nil, err
	}
	return s.store.Ledger().ListTransfers(ctx, rideID)
}

// AccountBalance returns the value paid out to id by ride escrows.
func (s *ContractService) AccountBalance(ctx context.Context, id domain.Identity) (uint64, error) {
	if id == "" {
		return 0, ErrInvalidCaller
	}
	return s.store.Ledger().BalanceOf(ctx, id)
}

// transitionFunc checks the preconditions of an operation and applies it to
// ride. It must not touch the ledger before every precondition has passed.
type transitionFunc func(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride) (*Settlement, error)

// transition runs fn on the locked ride inside a single transaction. On
// error neither the ride nor its escrow change.
func (s *ContractService) transition(ctx context.Context, op Operation, rideID string, caller domain.Identity, fn transitionFunc) (result *domain.Ride, err error) {
	defer newrelic.FromContext(ctx).StartSegment("contract/" + string(op)).End()
	defer func() { s.metrics.observe(string(op), err) }()

	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if caller == "" {
		return nil, ErrInvalidCaller
	}

	unlock, err := s.lock(ctx, rideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var before, after *domain.Ride
	var settled *Settlement
	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		ride, err := store.Rides().GetForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Escrow, err = store.Ledger().ValueOf(ctx, rideID); err != nil {
			return err
		}

		before = ride.Clone()
		if settled, err = fn(ctx, store.Ledger(), ride); err != nil {
			return err
		}

		ride.Version++
		ride.UpdatedAt = s.now()
		if err := store.Rides().Update(ctx, ride); err != nil {
			return err
		}
		after = ride
		return nil
	})
	if err != nil {
		s.logger.DebugContext(ctx, "ride contract transition rejected",
			slog.String("operation", string(op)),
			slog.String("ride_id", rideID),
			slog.String("caller", string(caller)),
			slog.Any("error", err),
		)
		return nil, err
	}

	// Still under the ride lock: the committed view replaces any older one a
	// concurrent read may be about to cache.
	if s.cache != nil {
		if err := s.cache.SetRide(ctx, after); err != nil {
			_ = s.cache.InvalidateRide(ctx, rideID)
		}
	}
	if settled != nil {
		s.metrics.moved(settled.Kind, settled.Amount)
	}
	if s.notifications != nil {
		_ = s.notifications.NotifyTransition(ctx, op, before, caller, settled)
	}

	return after, nil
}

// lock acquires the single-writer lock of a ride. Without a locker the
// database row lock is the only serialization.
func (s *ContractService) lock(ctx context.Context, rideID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	token, ok, err := s.locker.AcquireRideLock(ctx, rideID, s.policy.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRideBusy
	}

	return func() {
		if err := s.locker.ReleaseRideLock(context.WithoutCancel(ctx), rideID, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release ride lock",
				slog.String("ride_id", rideID),
				slog.Any("error", err),
			)
		}
	}, nil
}

// drain withdraws the entire escrow and hands it to exactly one recipient.
// An empty escrow moves nothing.
func drain(ctx context.Context, ledger repository.EscrowLedger, ride *domain.Ride, to domain.Identity, kind domain.TransferKind) (*Settlement, error) {
	funds, err := ledger.WithdrawAll(ctx, ride.ID)
	if err != nil {
		return nil, err
	}

	amount := funds.Amount()
	if err := ledger.Transfer(ctx, funds, to, kind); err != nil {
		return nil, err
	}

	ride.Escrow = 0
	return &Settlement{Kind: kind, Party: to, Amount: amount}, nil
}

// escrowCap returns price * multiplier, saturating at math.MaxUint64.
func escrowCap(price, multiplier uint64) uint64 {
	hi, lo := bits.Mul64(price, multiplier)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
