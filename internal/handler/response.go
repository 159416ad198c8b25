package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridecontract/internal/domain"
	"ridecontract/internal/middleware"
	"ridecontract/internal/repository"
	"ridecontract/internal/service"
)

// ErrorResponse represents an error response. Code is the contract error
// code when the request broke a contract rule.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RideResponse is the HTTP view of a ride.
type RideResponse struct {
	ID              string           `json:"id"`
	Rider           domain.Identity  `json:"rider"`
	Driver          *domain.Identity `json:"driver"`
	Destination     []byte           `json:"destination"`
	Price           uint64           `json:"price"`
	Escrow          uint64           `json:"escrow"`
	State           string           `json:"state"`
	Completed       bool             `json:"completed"`
	Disputed        bool             `json:"disputed"`
	RiderRating     *domain.Rating   `json:"rider_rating"`
	DriverRating    *domain.Rating   `json:"driver_rating"`
	DisputeAttempts int              `json:"dispute_attempts"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func toRideResponse(ride *domain.Ride) RideResponse {
	return RideResponse{
		ID:              ride.ID,
		Rider:           ride.Rider,
		Driver:          ride.Driver.Ptr(),
		Destination:     ride.Destination,
		Price:           ride.Price,
		Escrow:          ride.Escrow,
		State:           string(ride.State()),
		Completed:       ride.Completed,
		Disputed:        ride.Disputed,
		RiderRating:     ride.RiderRating.Ptr(),
		DriverRating:    ride.DriverRating.Ptr(),
		DisputeAttempts: ride.DisputeAttempts,
		Version:         ride.Version,
		CreatedAt:       ride.CreatedAt,
		UpdatedAt:       ride.UpdatedAt,
	}
}

// callerOf returns the authenticated caller, responding 401 when absent.
func callerOf(c *gin.Context) (domain.Identity, bool) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: middleware.ErrMissingCaller.Error(), Code: "Unauthenticated"})
		return "", false
	}
	return caller, true
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error(), Code: service.ErrorCode(err)})
}

// respondBadRequest sends a 400 response for malformed input.
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidCaller):
		return http.StatusBadRequest

	// Caller is not a party allowed to act
	case errors.Is(err, service.ErrNotDriver),
		errors.Is(err, service.ErrNotRider),
		errors.Is(err, service.ErrDispute):
		return http.StatusForbidden

	// Conflict errors
	case errors.Is(err, service.ErrInvalidBid),
		errors.Is(err, service.ErrAlreadyResolved),
		errors.Is(err, service.ErrAlreadyRated):
		return http.StatusConflict

	// Business rule errors
	case errors.Is(err, service.ErrInvalidRide),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrInvalidWithdrawal),
		errors.Is(err, service.ErrInvalidRating),
		errors.Is(err, repository.ErrAmountOverflow):
		return http.StatusUnprocessableEntity

	// Another request holds the ride
	case errors.Is(err, service.ErrRideBusy):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
