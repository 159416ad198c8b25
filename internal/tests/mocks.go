package tests

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"ridecontract/internal/domain"
	"ridecontract/internal/repository"
	"ridecontract/internal/service"
)

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// MockStore is an in-memory implementation of repository.Store and
// repository.Transactor. A failed transaction restores the state it started
// from.
type MockStore struct {
	txMu sync.Mutex // Serializes transactions like row locks do.
	mu   sync.RWMutex

	rides     map[string]*domain.Ride
	escrows   map[string]uint64
	accounts  map[domain.Identity]uint64
	transfers []*domain.Transfer

	// Counters for verification
	WithinTxCallCount int32
	RollbackCount     int32
	UpdateCallCount   int32
	TransferCallCount int32

	// Error injection
	CreateError   error
	UpdateError   error
	DepositError  error
	WithdrawError error
	TransferError error
	ListError     error

	// AfterValueOf runs after every escrow balance read, outside the store lock.
	AfterValueOf func(rideID string)
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		rides:    make(map[string]*domain.Ride),
		escrows:  make(map[string]uint64),
		accounts: make(map[domain.Identity]uint64),
	}
}

// Rides returns the ride repository view of the store.
func (m *MockStore) Rides() repository.RideRepository { return &MockRideRepository{store: m} }

// Ledger returns the escrow ledger view of the store.
func (m *MockStore) Ledger() repository.EscrowLedger { return &MockEscrowLedger{store: m} }

// WithinTx runs fn and rolls every write back if it fails.
func (m *MockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	atomic.AddInt32(&m.WithinTxCallCount, 1)
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(ctx, m); err != nil {
		atomic.AddInt32(&m.RollbackCount, 1)
		m.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	rides     map[string]*domain.Ride
	escrows   map[string]uint64
	accounts  map[domain.Identity]uint64
	transfers []*domain.Transfer
}

func (m *MockStore) snapshot() storeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := storeSnapshot{
		rides:     make(map[string]*domain.Ride, len(m.rides)),
		escrows:   make(map[string]uint64, len(m.escrows)),
		accounts:  make(map[domain.Identity]uint64, len(m.accounts)),
		transfers: append([]*domain.Transfer(nil), m.transfers...),
	}
	for id, ride := range m.rides {
		s.rides[id] = ride.Clone()
	}
	for id, v := range m.escrows {
		s.escrows[id] = v
	}
	for id, v := range m.accounts {
		s.accounts[id] = v
	}
	return s
}

func (m *MockStore) restore(s storeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides = s.rides
	m.escrows = s.escrows
	m.accounts = s.accounts
	m.transfers = s.transfers
}

// AddRide stores a ride directly, bypassing the contract.
func (m *MockStore) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride.Clone()
}

// SetEscrow sets the escrow balance of a ride directly.
func (m *MockStore) SetEscrow(rideID string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escrows[rideID] = amount
}

// SetBalance sets the payout balance of an identity directly.
func (m *MockStore) SetBalance(id domain.Identity, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = amount
}

// GetRide returns the stored ride for test assertions.
func (m *MockStore) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rides[id].Clone()
}

// Escrow returns the escrow balance of a ride for test assertions.
func (m *MockStore) Escrow(rideID string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.escrows[rideID]
}

// Balance returns the payout balance of an identity for test assertions.
func (m *MockStore) Balance(id domain.Identity) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[id]
}

// Transfers returns all recorded escrow movements.
func (m *MockStore) Transfers() []*domain.Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Transfer(nil), m.transfers...)
}

// TotalValue returns the value held in escrows plus the value paid out.
// Deposits are the only way it grows.
func (m *MockStore) TotalValue() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, v := range m.escrows {
		total += v
	}
	for _, v := range m.accounts {
		total += v
	}
	return total
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository over a MockStore.
type MockRideRepository struct {
	store *MockStore
}

func (r *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	m := r.store
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[ride.ID]; ok {
		return fmt.Errorf("ride %s already exists", ride.ID)
	}
	m.rides[ride.ID] = ride.Clone()
	return nil
}

func (r *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m := r.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	return ride.Clone(), nil
}

func (r *MockRideRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *MockRideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	m := r.store
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[ride.ID]; !ok {
		return repository.ErrNotFound
	}
	m.rides[ride.ID] = ride.Clone()
	return nil
}

func (r *MockRideRepository) ListRated(ctx context.Context, subject domain.Identity, role domain.Role) ([]*domain.Ride, error) {
	m := r.store
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Ride
	for _, ride := range m.rides {
		switch role {
		case domain.RoleDriver:
			if s, ok := ride.DriverRatingSubject.Get(); ok && s == subject && ride.DriverRating.IsSome() {
				result = append(result, ride.Clone())
			}
		case domain.RoleRider:
			if ride.Rider == subject && ride.RiderRating.IsSome() {
				result = append(result, ride.Clone())
			}
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK ESCROW LEDGER
// ──────────────────────────────────────────────

// MockEscrowLedger is a mock implementation of EscrowLedger over a MockStore.
type MockEscrowLedger struct {
	store *MockStore
}

func (l *MockEscrowLedger) Deposit(ctx context.Context, rideID string, from domain.Identity, amount uint64) error {
	m := l.store
	if m.DepositError != nil {
		return m.DepositError
	}
	if amount == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total, carry := bits.Add64(m.escrows[rideID], amount, 0)
	if carry != 0 {
		return repository.ErrAmountOverflow
	}
	m.escrows[rideID] = total
	m.record(rideID, domain.TransferDeposit, from, amount)
	return nil
}

func (l *MockEscrowLedger) WithdrawAll(ctx context.Context, rideID string) (*domain.Funds, error) {
	m := l.store
	if m.WithdrawError != nil {
		return nil, m.WithdrawError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	amount := m.escrows[rideID]
	m.escrows[rideID] = 0
	return domain.NewFunds(rideID, amount), nil
}

func (l *MockEscrowLedger) ValueOf(ctx context.Context, rideID string) (uint64, error) {
	m := l.store
	m.mu.RLock()
	value := m.escrows[rideID]
	m.mu.RUnlock()
	if m.AfterValueOf != nil {
		m.AfterValueOf(rideID)
	}
	return value, nil
}

func (l *MockEscrowLedger) Transfer(ctx context.Context, funds *domain.Funds, to domain.Identity, kind domain.TransferKind) error {
	m := l.store
	atomic.AddInt32(&m.TransferCallCount, 1)
	if m.TransferError != nil {
		return m.TransferError
	}
	rideID := funds.RideID()
	amount, err := funds.Take()
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total, carry := bits.Add64(m.accounts[to], amount, 0)
	if carry != 0 {
		return repository.ErrAmountOverflow
	}
	m.accounts[to] = total
	m.record(rideID, kind, to, amount)
	return nil
}

func (l *MockEscrowLedger) BalanceOf(ctx context.Context, id domain.Identity) (uint64, error) {
	m := l.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[id], nil
}

func (l *MockEscrowLedger) ListTransfers(ctx context.Context, rideID string) ([]*domain.Transfer, error) {
	m := l.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Transfer, 0)
	for _, t := range m.transfers {
		if t.RideID == rideID {
			copy := *t
			result = append(result, &copy)
		}
	}
	return result, nil
}

// record appends a transfer. The caller holds m.mu.
func (m *MockStore) record(rideID string, kind domain.TransferKind, party domain.Identity, amount uint64) {
	m.transfers = append(m.transfers, &domain.Transfer{
		ID:        fmt.Sprintf("transfer-%d", len(m.transfers)+1),
		RideID:    rideID,
		Kind:      kind,
		Party:     party,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	})
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of the ride lock.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string

	// Counters for verification
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
	AlwaysBusy   bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]string),
	}
}

func (m *MockLockStore) AcquireRideLock(ctx context.Context, rideID string, ttl time.Duration) (string, bool, error) {
	n := atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	if m.AlwaysBusy {
		return "", false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[rideID]; held {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%d", n)
	m.locks[rideID] = token
	return token, true, nil
}

func (m *MockLockStore) ReleaseRideLock(ctx context.Context, rideID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[rideID] == token {
		delete(m.locks, rideID)
	}
	return nil
}

// Hold marks a ride as locked by another writer.
func (m *MockLockStore) Hold(rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[rideID] = "held-elsewhere"
}

// IsLocked checks if a ride is locked.
func (m *MockLockStore) IsLocked(rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.locks[rideID]
	return held
}

// ──────────────────────────────────────────────
// MOCK RIDE CACHE
// ──────────────────────────────────────────────

// MockCache is a mock implementation of the ride cache.
type MockCache struct {
	mu    sync.Mutex
	rides map[string]*domain.Ride

	// Counters for verification
	HitCount        int32
	MissCount       int32
	InvalidateCount int32
	SkippedSetCount int32
}

// NewMockCache creates a new mock cache.
func NewMockCache() *MockCache {
	return &MockCache{rides: make(map[string]*domain.Ride)}
}

func (m *MockCache) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		atomic.AddInt32(&m.MissCount, 1)
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	return ride.Clone(), nil
}

// SetRide keeps a cached view whose version is at least that of ride, like
// the Redis cache does.
func (m *MockCache) SetRide(ctx context.Context, ride *domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.rides[ride.ID]; ok && cached.Version >= ride.Version {
		atomic.AddInt32(&m.SkippedSetCount, 1)
		return nil
	}
	m.rides[ride.ID] = ride.Clone()
	return nil
}

// Cached returns a copy of the cached view of a ride, or nil.
func (m *MockCache) Cached(rideID string) *domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rides[rideID].Clone()
}

func (m *MockCache) InvalidateRide(ctx context.Context, rideID string) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, rideID)
	return nil
}

// Has reports whether a ride is cached.
func (m *MockCache) Has(rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rides[rideID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published payloads.
type MockPublisher struct {
	mu       sync.Mutex
	payloads [][]byte

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, payload []byte) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, append([]byte(nil), payload...))
	return nil
}

// Payloads returns every published payload.
func (m *MockPublisher) Payloads() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.payloads...)
}

// ──────────────────────────────────────────────
// CONTRACT FIXTURE
// ──────────────────────────────────────────────

// ErrInjected is a generic failure for error injection.
var ErrInjected = errors.New("injected failure")

// ContractFixture bundles a ContractService with the mocks behind it.
type ContractFixture struct {
	Service   *service.ContractService
	Store     *MockStore
	Locks     *MockLockStore
	Cache     *MockCache
	Publisher *MockPublisher
}

// NewContractFixture creates a ContractService over fresh mocks.
func NewContractFixture(policy service.Policy) *ContractFixture {
	store := NewMockStore()
	locks := NewMockLockStore()
	cache := NewMockCache()
	publisher := NewMockPublisher()

	svc := service.NewContractService(service.ContractServiceDeps{
		Store:         store,
		Transactor:    store,
		Locker:        locks,
		Cache:         cache,
		Notifications: service.NewNotificationService(nil, publisher),
		Policy:        policy,
	})

	return &ContractFixture{
		Service:   svc,
		Store:     store,
		Locks:     locks,
		Cache:     cache,
		Publisher: publisher,
	}
}
