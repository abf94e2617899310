package withdrawals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collabhq/collabpay/internal/balance"
	"github.com/collabhq/collabpay/internal/money"
)

// Handler provides HTTP endpoints for withdrawal operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new withdrawal handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up withdrawal routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/withdrawals/methods", h.ListMethods)
	r.GET("/withdrawals/:id", h.GetWithdrawal)
	r.POST("/withdrawals/:id/process", h.ProcessWithdrawal)
	r.POST("/withdrawals/:id/cancel", h.CancelWithdrawal)
	r.POST("/creators/:id/withdrawals", h.RequestWithdrawal)
	r.GET("/creators/:id/withdrawals", h.ListWithdrawals)
}

// RequestRequest is the body for POST /v1/creators/:id/withdrawals.
type RequestRequest struct {
	Amount  string            `json:"amount" binding:"required"` // decimal string, e.g. "100.00"
	Method  string            `json:"method" binding:"required"`
	Details map[string]string `json:"details"`
}

// RequestWithdrawal handles POST /v1/creators/:id/withdrawals
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req RequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount and method are required",
		})
		return
	}

	amount, ok := money.Parse(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive decimal with at most two fractional digits",
		})
		return
	}

	w, err := h.service.Request(c.Request.Context(), RequestInput{
		CreatorID: c.Param("id"),
		Amount:    amount,
		Method:    Method(req.Method),
		Details:   req.Details,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrMethodUnavailable):
			status = http.StatusBadRequest
			code = "method_unavailable"
		case errors.Is(err, ErrAmountOutOfBounds):
			status = http.StatusBadRequest
			code = "amount_out_of_bounds"
		case errors.Is(err, balance.ErrInsufficientFunds):
			status = http.StatusConflict
			code = "insufficient_funds"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"withdrawal": w})
}

// GetWithdrawal handles GET /v1/withdrawals/:id
func (h *Handler) GetWithdrawal(c *gin.Context) {
	w, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Withdrawal not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}

// ProcessWithdrawal handles POST /v1/withdrawals/:id/process
func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	w, err := h.service.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrWithdrawalNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrInvalidStatus):
			status = http.StatusConflict
			code = "invalid_state"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	// A failed payout is a successful process call; the withdrawal record
	// carries the outcome.
	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}

// CancelWithdrawal handles POST /v1/withdrawals/:id/cancel
func (h *Handler) CancelWithdrawal(c *gin.Context) {
	w, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrWithdrawalNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrInvalidStatus):
			status = http.StatusConflict
			code = "invalid_state"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}

// ListWithdrawals handles GET /v1/creators/:id/withdrawals
func (h *Handler) ListWithdrawals(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	list, err := h.service.ListByCreator(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawals": list,
		"count":       len(list),
	})
}

// ListMethods handles GET /v1/withdrawals/methods
func (h *Handler) ListMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": h.service.Methods()})
}
