package booking

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/amoree/amoree/internal/validation"
)

// Handler provides HTTP endpoints for booking operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new booking handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) booking routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/bookings/:id", h.GetBooking)
}

// RegisterProtectedRoutes sets up auth-required booking routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/bookings", h.CreateBooking)
	r.POST("/bookings/:id/accept", h.AcceptBooking)
	r.POST("/bookings/:id/complete", h.CompleteBooking)
	r.POST("/bookings/:id/cancel", h.CancelBooking)
	r.GET("/me/bookings", h.ListMyBookings)
}

// CreateBooking handles POST /v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.RequiredID("partnerId", req.PartnerID),
		validation.PositiveAmount("totalAmount", req.TotalAmount),
		validation.PositiveAmount("partnerEarning", req.PartnerEarning),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	bookerID := c.GetString("authUserID")
	b, err := h.service.Create(c.Request.Context(), bookerID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrAmountsDontAddUp):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": err.Error(),
			})
		case errors.Is(err, ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   "insufficient_funds",
				"message": "Available balance is too low for this booking",
			})
		case errors.Is(err, ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Cannot book yourself",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "booking_failed",
				"message": "Failed to create booking",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, b)
}

// GetBooking handles GET /v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id := c.Param("id")
	b, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Booking not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get booking",
		})
		return
	}
	c.JSON(http.StatusOK, b)
}

// AcceptBooking handles POST /v1/bookings/:id/accept
func (h *Handler) AcceptBooking(c *gin.Context) {
	h.transition(c, h.service.Accept)
}

// CompleteBooking handles POST /v1/bookings/:id/complete
func (h *Handler) CompleteBooking(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// ListMyBookings handles GET /v1/me/bookings
func (h *Handler) ListMyBookings(c *gin.Context) {
	userID := c.GetString("authUserID")
	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.service.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list bookings",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id, callerID string) (*Booking, error)) {
	id := c.Param("id")
	callerID := c.GetString("authUserID")

	b, err := fn(c.Request.Context(), id, callerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Booking not found",
			})
		case errors.Is(err, ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Not a party to this booking",
			})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_status",
				"message": "Booking is not in a state that allows this operation",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to update booking",
			})
		}
		return
	}

	c.JSON(http.StatusOK, b)
}
