package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"ridecontract/internal/repository"
)

//go:embed schema.sql
var schema string

// EnsureSchema creates the ride contract tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Store is a PostgreSQL implementation of repository.Store and
// repository.Transactor.
type Store struct {
	db     *sql.DB
	rides  *RideRepository
	ledger *EscrowLedger
}

// Ensure interfaces are satisfied.
var (
	_ repository.Store      = (*Store)(nil)
	_ repository.Transactor = (*Store)(nil)
)

// NewStore creates a store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		rides:  NewRideRepository(db),
		ledger: NewEscrowLedger(db),
	}
}

// Rides returns the ride repository outside of any transaction.
func (s *Store) Rides() repository.RideRepository { return s.rides }

// Ledger returns the escrow ledger outside of any transaction.
func (s *Store) Ledger() repository.EscrowLedger { return s.ledger }

// txStore scopes both repositories to a single transaction.
type txStore struct {
	rides  *RideRepository
	ledger *EscrowLedger
}

func (s *txStore) Rides() repository.RideRepository { return s.rides }
func (s *txStore) Ledger() repository.EscrowLedger  { return s.ledger }

// WithinTx runs fn in a transaction and commits if it returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Create transaction-scoped repositories.
	err = fn(ctx, &txStore{
		rides:  NewRideRepositoryWithTx(tx),
		ledger: NewEscrowLedgerWithTx(tx),
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}
