package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecontract/internal/domain"
	"ridecontract/internal/service"
)

// AccountHandler handles HTTP requests for payout balances.
type AccountHandler struct {
	contract *service.ContractService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(contract *service.ContractService) *AccountHandler {
	return &AccountHandler{contract: contract}
}

// BalanceResponse is the HTTP response for an account balance.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// GetBalance handles GET /v1/accounts/:id/balance
func (h *AccountHandler) GetBalance(c *gin.Context) {
	account := domain.Identity(c.Param("id"))

	balance, err := h.contract.AccountBalance(c.Request.Context(), account)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, BalanceResponse{Account: string(account), Balance: balance})
}
