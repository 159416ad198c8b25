package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"ridecontract/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// maxAmount is math.MaxUint64 as a SQL numeric literal.
var maxAmount = strconv.FormatUint(math.MaxUint64, 10)

// Amounts are stored as NUMERIC(20,0) and exchanged as decimal text, since
// database/sql cannot bind uint64 values above math.MaxInt64.
func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", repository.ErrAmountOverflow, s)
	}
	return v, nil
}
