package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridecontract/internal/domain"
	"ridecontract/internal/service"
)

// RideHandler handles HTTP requests for ride contracts.
type RideHandler struct {
	contract *service.ContractService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(contract *service.ContractService) *RideHandler {
	return &RideHandler{contract: contract}
}

// CreateRideRequest is the HTTP request body for requesting a ride.
// Destination is an opaque payload, base64 encoded in JSON.
type CreateRideRequest struct {
	Destination []byte `json:"destination"`
	Price       uint64 `json:"price"`
}

// ResolveDisputeRequest is the HTTP request body for resolving a dispute.
type ResolveDisputeRequest struct {
	Resolved *bool `json:"resolved"`
}

// UpdateDestinationRequest is the HTTP request body for changing the destination.
type UpdateDestinationRequest struct {
	Destination []byte `json:"destination"`
}

// UpdatePriceRequest is the HTTP request body for changing the price.
type UpdatePriceRequest struct {
	Price uint64 `json:"price"`
}

// AddFundsRequest is the HTTP request body for adding funds to the escrow.
type AddFundsRequest struct {
	Amount uint64 `json:"amount"`
}

// RateRequest is the HTTP request body for rating a counterparty.
type RateRequest struct {
	Rating *int `json:"rating"`
}

// TransferResponse is the HTTP view of an escrow movement.
type TransferResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Party     string `json:"party"`
	Amount    uint64 `json:"amount"`
	CreatedAt string `json:"created_at"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.contract.RequestRide(c.Request.Context(), service.RequestRideRequest{
		Caller:      caller,
		Destination: req.Destination,
		Price:       req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.contract.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// GetDestination handles GET /v1/rides/:id/destination
func (h *RideHandler) GetDestination(c *gin.Context) {
	destination, err := h.contract.GetRideDestination(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"destination": destination})
}

// GetPrice handles GET /v1/rides/:id/price
func (h *RideHandler) GetPrice(c *gin.Context) {
	price, err := h.contract.GetRidePrice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"price": price})
}

// ListTransfers handles GET /v1/rides/:id/transfers
func (h *RideHandler) ListTransfers(c *gin.Context) {
	transfers, err := h.contract.ListTransfers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TransferResponse, 0, len(transfers))
	for _, t := range transfers {
		response = append(response, TransferResponse{
			ID:        t.ID,
			Kind:      string(t.Kind),
			Party:     string(t.Party),
			Amount:    t.Amount,
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
		})
	}

	respondJSON(c, http.StatusOK, gin.H{"transfers": response})
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	h.apply(c, h.contract.AcceptRide)
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	h.apply(c, h.contract.CompleteRide)
}

// MarkRideComplete handles POST /v1/rides/:id/mark-complete
func (h *RideHandler) MarkRideComplete(c *gin.Context) {
	h.apply(c, h.contract.MarkRideComplete)
}

// DisputeRide handles POST /v1/rides/:id/dispute
func (h *RideHandler) DisputeRide(c *gin.Context) {
	h.apply(c, h.contract.DisputeRide)
}

// ReleasePayment handles POST /v1/rides/:id/release
func (h *RideHandler) ReleasePayment(c *gin.Context) {
	h.apply(c, h.contract.ReleasePayment)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	h.apply(c, h.contract.CancelRide)
}

// RequestRefund handles POST /v1/rides/:id/refund
func (h *RideHandler) RequestRefund(c *gin.Context) {
	h.apply(c, h.contract.RequestRefund)
}

// ResolveDispute handles POST /v1/rides/:id/resolve
func (h *RideHandler) ResolveDispute(c *gin.Context) {
	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Resolved == nil {
		respondBadRequest(c, "resolved is required")
		return
	}

	h.apply(c, func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
		return h.contract.ResolveDispute(ctx, rideID, *req.Resolved, caller)
	})
}

// UpdateDestination handles PUT /v1/rides/:id/destination
func (h *RideHandler) UpdateDestination(c *gin.Context) {
	var req UpdateDestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	h.apply(c, func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
		return h.contract.UpdateRideDestination(ctx, rideID, req.Destination, caller)
	})
}

// UpdatePrice handles PUT /v1/rides/:id/price
func (h *RideHandler) UpdatePrice(c *gin.Context) {
	var req UpdatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	h.apply(c, func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
		return h.contract.UpdateRidePrice(ctx, rideID, req.Price, caller)
	})
}

// AddFunds handles POST /v1/rides/:id/funds
func (h *RideHandler) AddFunds(c *gin.Context) {
	var req AddFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	h.apply(c, func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
		return h.contract.AddFundsToRide(ctx, rideID, req.Amount, caller)
	})
}

// RateDriver handles POST /v1/rides/:id/rate-driver
func (h *RideHandler) RateDriver(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating == nil {
		respondBadRequest(c, "rating is required")
		return
	}

	h.apply(c, func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
		return h.contract.RateDriver(ctx, rideID, *req.Rating, caller)
	})
}

// RateRider handles POST /v1/rides/:id/rate-rider
func (h *RideHandler) RateRider(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating == nil {
		respondBadRequest(c, "rating is required")
		return
	}

	h.apply(c, func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error) {
		return h.contract.RateRider(ctx, rideID, *req.Rating, caller)
	})
}

type rideOperation func(ctx context.Context, rideID string, caller domain.Identity) (*domain.Ride, error)

// apply runs a contract operation for the caller on the ride in the path and
// responds with the updated ride.
func (h *RideHandler) apply(c *gin.Context, op rideOperation) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	ride, err := op(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}
