package notify

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for reading notifications.
type Handler struct {
	store Store
}

// NewHandler creates a new notification handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterProtectedRoutes sets up auth-required notification routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/me/notifications", h.ListMyNotifications)
	r.POST("/notifications/:id/read", h.MarkRead)
}

// ListMyNotifications handles GET /v1/me/notifications
func (h *Handler) ListMyNotifications(c *gin.Context) {
	userID := c.GetString("authUserID")
	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.store.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list notifications",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"count":         len(items),
	})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID := c.GetString("authUserID")
	err := h.store.MarkRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Notification not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update notification",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
