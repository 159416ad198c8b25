package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ridecontract/internal/domain"
	"ridecontract/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, rider_id, driver_id, destination, price, completed, disputed, dispute_attempts,
	rider_rating, driver_rating, driver_rating_subject, version, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.ExecContext(ctx, query, rideArgs(ride)...)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return scanRide(r.q.QueryRowContext(ctx, query, id))
}

// GetForUpdate retrieves a ride and holds a row lock until the transaction ends.
func (r *RideRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1 FOR UPDATE`
	return scanRide(r.q.QueryRowContext(ctx, query, id))
}

// Update updates an existing ride. Rider, ID and CreatedAt are immutable.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	query := `
		UPDATE rides
		SET driver_id = $3, destination = $4, price = $5::numeric, completed = $6, disputed = $7,
			dispute_attempts = $8, rider_rating = $9, driver_rating = $10, driver_rating_subject = $11,
			version = $12, updated_at = $13
		WHERE id = $1 AND rider_id = $2
	`

	result, err := r.q.ExecContext(ctx, query, updateArgs(ride)...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListRated retrieves rides that carry a rating for subject in the given role.
func (r *RideRepository) ListRated(ctx context.Context, subject domain.Identity, role domain.Role) ([]*domain.Ride, error) {
	var query string
	switch role {
	case domain.RoleDriver:
		query = `SELECT ` + rideColumns + ` FROM rides
			WHERE driver_rating_subject = $1 AND driver_rating IS NOT NULL ORDER BY created_at`
	case domain.RoleRider:
		query = `SELECT ` + rideColumns + ` FROM rides
			WHERE rider_id = $1 AND rider_rating IS NOT NULL ORDER BY created_at`
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	rows, err := r.q.QueryContext(ctx, query, string(subject))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// rideArgs returns the values of rideColumns, in order.
func rideArgs(ride *domain.Ride) []any {
	return append(mutableArgs(ride), ride.CreatedAt, ride.UpdatedAt)
}

// updateArgs returns the values bound by Update: every column except
// created_at.
func updateArgs(ride *domain.Ride) []any {
	return append(mutableArgs(ride), ride.UpdatedAt)
}

// mutableArgs returns the values of rideColumns from id through version.
func mutableArgs(ride *domain.Ride) []any {
	var driverID sql.NullString
	if driver, ok := ride.Driver.Get(); ok {
		driverID = sql.NullString{String: string(driver), Valid: true}
	}

	var ratingSubject sql.NullString
	if subject, ok := ride.DriverRatingSubject.Get(); ok {
		ratingSubject = sql.NullString{String: string(subject), Valid: true}
	}

	destination := ride.Destination
	if destination == nil {
		destination = []byte{}
	}

	return []any{
		ride.ID,
		string(ride.Rider),
		driverID,
		destination,
		formatAmount(ride.Price),
		ride.Completed,
		ride.Disputed,
		ride.DisputeAttempts,
		nullRating(ride.RiderRating),
		nullRating(ride.DriverRating),
		ratingSubject,
		ride.Version,
	}
}

func nullRating(o domain.Option[domain.Rating]) sql.NullInt16 {
	v, ok := o.Get()
	if !ok {
		return sql.NullInt16{}
	}
	return sql.NullInt16{Int16: int16(v), Valid: true}
}

func ratingFromNull(n sql.NullInt16) domain.Option[domain.Rating] {
	if !n.Valid {
		return domain.None[domain.Rating]()
	}
	return domain.Some(domain.Rating(n.Int16))
}

func identityFromNull(n sql.NullString) domain.Option[domain.Identity] {
	if !n.Valid {
		return domain.None[domain.Identity]()
	}
	return domain.Some(domain.Identity(n.String))
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var riderID string
	var driverID sql.NullString
	var price string
	var riderRating, driverRating sql.NullInt16
	var ratingSubject sql.NullString

	err := row.Scan(
		&ride.ID,
		&riderID,
		&driverID,
		&ride.Destination,
		&price,
		&ride.Completed,
		&ride.Disputed,
		&ride.DisputeAttempts,
		&riderRating,
		&driverRating,
		&ratingSubject,
		&ride.Version,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if ride.Price, err = parseAmount(price); err != nil {
		return nil, err
	}
	ride.Rider = domain.Identity(riderID)
	ride.Driver = identityFromNull(driverID)
	ride.RiderRating = ratingFromNull(riderRating)
	ride.DriverRating = ratingFromNull(driverRating)
	ride.DriverRatingSubject = identityFromNull(ratingSubject)

	return &ride, nil
}
