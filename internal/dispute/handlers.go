package dispute

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/validation"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required dispute routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/disputes", h.FileDispute)
	r.GET("/disputes/:id", h.GetDispute)
}

// RegisterAdminRoutes sets up admin-only dispute routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/resolve-dispute", h.ResolveDispute)
	r.GET("/disputes", h.ListOpenDisputes)
}

// FileDispute handles POST /v1/disputes
func (h *Handler) FileDispute(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.Reason = validation.SanitizeString(req.Reason, 2000)

	callerID := c.GetString("authUserID")
	d, err := h.service.File(c.Request.Context(), callerID, req)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Booking not found",
			})
		case errors.Is(err, ErrNotParty):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the booker or partner may file a dispute",
			})
		case errors.Is(err, ErrBookingSettled):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_settled",
				"message": "Booking funds have already been settled",
			})
		case errors.Is(err, ErrDuplicateDispute):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_dispute",
				"message": "Booking already has an open dispute",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to file dispute",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, d)
}

// GetDispute handles GET /v1/disputes/:id
func (h *Handler) GetDispute(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Dispute not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get dispute",
		})
		return
	}
	c.JSON(http.StatusOK, d)
}

// ResolveDispute handles POST /v1/resolve-dispute
func (h *Handler) ResolveDispute(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.ResolutionNotes = validation.SanitizeString(req.ResolutionNotes, 2000)

	callerID := c.GetString("authUserID")
	d, err := h.service.Resolve(c.Request.Context(), callerID, req)
	if err != nil {
		h.resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"resolution": d.Resolution,
	})
}

func (h *Handler) resolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Admin access required",
		})
	case errors.Is(err, ErrInvalidResolution):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_resolution",
			"message": "Resolution must be one of refund_full, refund_partial, release_to_partner, no_action",
		})
	case errors.Is(err, ErrInvalidResolutionAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_resolution_amount",
			"message": "Resolution amount must be positive and at most the booking total",
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Dispute not found",
		})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Booking not found",
		})
	case errors.Is(err, ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_resolved",
			"message": "Dispute has already been resolved",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve dispute",
		})
	}
}

// ListOpenDisputes handles GET /v1/disputes (admin arbitration queue)
func (h *Handler) ListOpenDisputes(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	disputes, err := h.service.ListOpen(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list disputes",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disputes": disputes,
		"count":    len(disputes),
	})
}
