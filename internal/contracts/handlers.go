package contracts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collabhq/collabpay/internal/money"
)

// Handler provides HTTP endpoints for contract operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new contract handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up contract routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/contracts", h.CreateContract)
	r.GET("/contracts/:id", h.GetContract)
	r.POST("/contracts/:id/funding-completed", h.FundingCompleted)
	r.POST("/contracts/:id/complete", h.CompleteContract)
	r.POST("/contracts/:id/review-submitted", h.ReviewSubmitted)
	r.POST("/contracts/:id/cancel", h.CancelContract)
	r.POST("/contracts/:id/dispute", h.DisputeContract)
	r.GET("/brands/:id/contracts", h.ListBrandContracts)
	r.GET("/creators/:id/contracts", h.ListCreatorContracts)
}

type createContractRequest struct {
	BrandID   string `json:"brandId" binding:"required"`
	CreatorID string `json:"creatorId" binding:"required"`
	Amount    string `json:"amount" binding:"required"` // decimal string, e.g. "1000.00"
}

type fundingCompletedRequest struct {
	FundingRef string `json:"fundingRef"`
}

// CreateContract handles POST /v1/contracts
func (h *Handler) CreateContract(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "brandId, creatorId and amount are required",
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

	contract, err := h.service.Create(c.Request.Context(), CreateRequest{
		BrandID:   req.BrandID,
		CreatorID: req.CreatorID,
		Amount:    amount,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create contract",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contract": contract})
}

// GetContract handles GET /v1/contracts/:id
func (h *Handler) GetContract(c *gin.Context) {
	contract, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Contract not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// FundingCompleted handles POST /v1/contracts/:id/funding-completed
func (h *Handler) FundingCompleted(c *gin.Context) {
	var req fundingCompletedRequest
	_ = c.ShouldBindJSON(&req)

	contract, err := h.service.HandleFundingCompleted(c.Request.Context(), c.Param("id"), req.FundingRef)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// CompleteContract handles POST /v1/contracts/:id/complete
func (h *Handler) CompleteContract(c *gin.Context) {
	contract, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract":  contract,
		"paymentId": contract.PaymentID,
	})
}

// ReviewSubmitted handles POST /v1/contracts/:id/review-submitted
func (h *Handler) ReviewSubmitted(c *gin.Context) {
	contract, err := h.service.ReviewSubmitted(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// CancelContract handles POST /v1/contracts/:id/cancel
func (h *Handler) CancelContract(c *gin.Context) {
	var req SignalRequest
	_ = c.ShouldBindJSON(&req)

	contract, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// DisputeContract handles POST /v1/contracts/:id/dispute
func (h *Handler) DisputeContract(c *gin.Context) {
	var req SignalRequest
	_ = c.ShouldBindJSON(&req)

	contract, err := h.service.Dispute(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// ListBrandContracts handles GET /v1/brands/:id/contracts
func (h *Handler) ListBrandContracts(c *gin.Context) {
	list, err := h.service.ListByBrand(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": list, "count": len(list)})
}

// ListCreatorContracts handles GET /v1/creators/:id/contracts
func (h *Handler) ListCreatorContracts(c *gin.Context) {
	list, err := h.service.ListByCreator(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": list, "count": len(list)})
}

func (h *Handler) writeTransitionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrContractNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotFunded):
		status = http.StatusConflict
		code = "not_funded"
	case errors.Is(err, ErrInvalidStatus):
		status = http.StatusConflict
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func parseLimit(c *gin.Context) int {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}
	return limit
}
