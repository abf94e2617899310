package balance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collabhq/collabpay/internal/logging"
)

// Handler provides HTTP endpoints for creator balances.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a balance handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up the balance read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/creators/:id/balance", h.GetBalance)
	r.GET("/creators/:id/balance/history", h.GetHistory)
}

// RegisterAdminRoutes sets up operator-only routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/creators/:id/reconcile", h.Reconcile)
}

// GetBalance handles GET /v1/creators/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	bal, err := h.ledger.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load balance", "creator_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load balance",
		})
		return
	}
	c.JSON(http.StatusOK, bal)
}

// GetHistory handles GET /v1/creators/:id/balance/history
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.ledger.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load ledger history", "creator_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load history",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Reconcile handles GET /v1/admin/creators/:id/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.ledger.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Reconciliation failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}
