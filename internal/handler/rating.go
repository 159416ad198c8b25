package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecontract/internal/domain"
	"ridecontract/internal/service"
)

// RatingHandler handles HTTP requests for average ratings.
type RatingHandler struct {
	contract *service.ContractService
}

// NewRatingHandler creates a new RatingHandler.
func NewRatingHandler(contract *service.ContractService) *RatingHandler {
	return &RatingHandler{contract: contract}
}

// RatingResponse is the HTTP response for an average rating. Average is
// null when the subject has never been rated.
type RatingResponse struct {
	Subject string         `json:"subject"`
	Role    string         `json:"role"`
	Average *domain.Rating `json:"average"`
}

// GetDriverRating handles GET /v1/drivers/:id/rating
func (h *RatingHandler) GetDriverRating(c *gin.Context) {
	subject := domain.Identity(c.Param("id"))

	average, err := h.contract.GetDriverAvgRating(c.Request.Context(), subject)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RatingResponse{
		Subject: string(subject),
		Role:    string(domain.RoleDriver),
		Average: average.Ptr(),
	})
}

// GetRiderRating handles GET /v1/riders/:id/rating
func (h *RatingHandler) GetRiderRating(c *gin.Context) {
	subject := domain.Identity(c.Param("id"))

	average, err := h.contract.GetRiderAvgRating(c.Request.Context(), subject)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RatingResponse{
		Subject: string(subject),
		Role:    string(domain.RoleRider),
		Average: average.Ptr(),
	})
}
