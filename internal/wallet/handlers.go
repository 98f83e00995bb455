package wallet

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/amoree/amoree/internal/validation"
)

// Handler provides HTTP endpoints for wallet operations.
type Handler struct {
	ledger   *Ledger
	minTopup int64
	maxTopup int64
}

// NewHandler creates a new wallet handler. minTopup/maxTopup bound the
// admin-recorded deposit amounts.
func NewHandler(ledger *Ledger, minTopup, maxTopup int64) *Handler {
	return &Handler{ledger: ledger, minTopup: minTopup, maxTopup: maxTopup}
}

// RegisterProtectedRoutes sets up auth-required wallet routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/me/wallet", h.GetMyWallet)
	r.GET("/me/transactions", h.ListMyTransactions)
	r.POST("/wallet/withdraw", h.Withdraw)
}

// RegisterAdminRoutes sets up admin-only wallet routes. Topups are recorded
// by operators after an out-of-band bank transfer is confirmed.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/wallet/topup", h.Topup)
	r.GET("/wallet/:userId", h.GetWallet)
}

// GetMyWallet handles GET /v1/me/wallet
func (h *Handler) GetMyWallet(c *gin.Context) {
	h.renderBalance(c, c.GetString("authUserID"))
}

// GetWallet handles GET /v1/wallet/:userId (admin)
func (h *Handler) GetWallet(c *gin.Context) {
	h.renderBalance(c, c.Param("userId"))
}

func (h *Handler) renderBalance(c *gin.Context, userID string) {
	if !validation.IsValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid user ID",
		})
		return
	}
	account, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get wallet",
		})
		return
	}
	c.JSON(http.StatusOK, account)
}

// ListMyTransactions handles GET /v1/me/transactions
func (h *Handler) ListMyTransactions(c *gin.Context) {
	userID := c.GetString("authUserID")
	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	txns, err := h.ledger.History(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

// TopupRequest contains parameters for recording a deposit.
type TopupRequest struct {
	UserID    string `json:"userId" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

// Topup handles POST /v1/wallet/topup (admin)
func (h *Handler) Topup(c *gin.Context) {
	var req TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidUserID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid user ID",
		})
		return
	}
	if req.Amount < h.minTopup || req.Amount > h.maxTopup {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": fmt.Sprintf("Topup amount must be between %d and %d", h.minTopup, h.maxTopup),
		})
		return
	}

	if err := h.ledger.Topup(c.Request.Context(), req.UserID, req.Amount, req.Reference); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "topup_failed",
			"message": "Failed to record topup",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WithdrawRequest contains parameters for a withdrawal.
type WithdrawRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

// Withdraw handles POST /v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	userID := c.GetString("authUserID")
	err := h.ledger.Withdraw(c.Request.Context(), userID, req.Amount, req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "Withdrawal amount must be positive",
			})
		case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrAccountNotFound):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   "insufficient_funds",
				"message": "Available balance is too low for this withdrawal",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "withdraw_failed",
				"message": "Failed to withdraw",
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
