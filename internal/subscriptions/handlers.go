package subscriptions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for subscription projections.
type Handler struct {
	service *Service
}

// NewHandler creates a subscription handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up subscription read routes. Writes happen only
// through provider webhooks.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/subscriptions/:id", h.Get)
	r.GET("/brands/:id/subscriptions", h.ListByBrand)
}

// Get handles GET /v1/subscriptions/:id (the provider subscription ref)
func (h *Handler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Subscription not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load subscription",
		})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListByBrand handles GET /v1/brands/:id/subscriptions
func (h *Handler) ListByBrand(c *gin.Context) {
	subs, err := h.service.ListByBrand(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list subscriptions",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}
