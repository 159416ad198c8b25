package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ridecontract/internal/domain"
	"ridecontract/internal/repository"
)

// EscrowLedger is a PostgreSQL implementation of repository.EscrowLedger.
// Escrow balances live in the escrows table, paid out value in accounts, and
// every movement is appended to escrow_transfers.
type EscrowLedger struct {
	q Querier
}

// NewEscrowLedger creates a new PostgreSQL escrow ledger.
func NewEscrowLedger(db *sql.DB) *EscrowLedger {
	return &EscrowLedger{q: db}
}

// NewEscrowLedgerWithTx creates an escrow ledger using a transaction.
func NewEscrowLedgerWithTx(tx *sql.Tx) *EscrowLedger {
	return &EscrowLedger{q: tx}
}

// Deposit adds amount paid by from to the escrow of rideID.
func (l *EscrowLedger) Deposit(ctx context.Context, rideID string, from domain.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}

	query := `
		INSERT INTO escrows (ride_id, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (ride_id) DO UPDATE SET balance = escrows.balance + EXCLUDED.balance
	`
	if _, err := l.q.ExecContext(ctx, query, rideID, formatAmount(amount)); err != nil {
		return err
	}

	return l.record(ctx, rideID, domain.TransferDeposit, from, amount)
}

// WithdrawAll empties the escrow of rideID and returns the withdrawn funds.
func (l *EscrowLedger) WithdrawAll(ctx context.Context, rideID string) (*domain.Funds, error) {
	query := `SELECT balance::text FROM escrows WHERE ride_id = $1 FOR UPDATE`

	var balance string
	err := l.q.QueryRowContext(ctx, query, rideID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewFunds(rideID, 0), nil
		}
		return nil, err
	}

	amount, err := parseAmount(balance)
	if err != nil {
		return nil, err
	}

	if amount > 0 {
		if _, err := l.q.ExecContext(ctx, `UPDATE escrows SET balance = 0 WHERE ride_id = $1`, rideID); err != nil {
			return nil, err
		}
	}

	return domain.NewFunds(rideID, amount), nil
}

// ValueOf returns the current escrow balance of rideID.
func (l *EscrowLedger) ValueOf(ctx context.Context, rideID string) (uint64, error) {
	query := `SELECT balance::text FROM escrows WHERE ride_id = $1`

	var balance string
	err := l.q.QueryRowContext(ctx, query, rideID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}

	return parseAmount(balance)
}

// Transfer credits the withdrawn funds to one recipient.
func (l *EscrowLedger) Transfer(ctx context.Context, funds *domain.Funds, to domain.Identity, kind domain.TransferKind) error {
	amount, err := funds.Take()
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}

	// The conflict update is skipped when the credited balance would no
	// longer fit in uint64, leaving zero affected rows.
	query := `
		INSERT INTO accounts (identity, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (identity) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
		WHERE accounts.balance + EXCLUDED.balance <= ` + maxAmount + `
	`
	result, err := l.q.ExecContext(ctx, query, string(to), formatAmount(amount))
	if err != nil {
		return err
	}
	credited, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if credited == 0 {
		return fmt.Errorf("%w: balance of %s", repository.ErrAmountOverflow, to)
	}

	return l.record(ctx, funds.RideID(), kind, to, amount)
}

// BalanceOf returns the amount paid out to an identity so far.
func (l *EscrowLedger) BalanceOf(ctx context.Context, id domain.Identity) (uint64, error) {
	query := `SELECT balance::text FROM accounts WHERE identity = $1`

	var balance string
	err := l.q.QueryRowContext(ctx, query, string(id)).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}

	return parseAmount(balance)
}

// ListTransfers returns the escrow movements of a ride, oldest first.
func (l *EscrowLedger) ListTransfers(ctx context.Context, rideID string) ([]*domain.Transfer, error) {
	query := `
		SELECT id, ride_id, kind, party, amount::text, created_at
		FROM escrow_transfers WHERE ride_id = $1 ORDER BY seq
	`

	rows, err := l.q.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var party, amount string
		if err := rows.Scan(&t.ID, &t.RideID, &t.Kind, &party, &amount, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		t.Party = domain.Identity(party)
		transfers = append(transfers, &t)
	}
	return transfers, rows.Err()
}

func (l *EscrowLedger) record(ctx context.Context, rideID string, kind domain.TransferKind, party domain.Identity, amount uint64) error {
	query := `
		INSERT INTO escrow_transfers (id, ride_id, kind, party, amount, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
	`

	_, err := l.q.ExecContext(ctx, query,
		uuid.New().String(),
		rideID,
		kind,
		string(party),
		formatAmount(amount),
		time.Now().UTC(),
	)
	return err
}
