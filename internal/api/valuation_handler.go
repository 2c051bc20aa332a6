package api

import (
	"net/http"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// ValuationHandler serves the stateless valuation endpoints
type ValuationHandler struct {
	valuations *services.ValuationService
}

// NewValuationHandler creates a new valuation handler
func NewValuationHandler(valuations *services.ValuationService) *ValuationHandler {
	return &ValuationHandler{valuations: valuations}
}

// Verify reconciles source observations for an address
func (h *ValuationHandler) Verify(c *gin.Context) {
	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.valuations.Verify(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verification": result,
		"timestamp":    time.Now(),
	})
}

// Offer calculates a single-family wholesale offer
func (h *ValuationHandler) Offer(c *gin.Context) {
	var req services.OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.valuations.Offer(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"offer":     result,
		"timestamp": time.Now(),
	})
}

// Income values a multi-family or apartment rent roll
func (h *ValuationHandler) Income(c *gin.Context) {
	var req services.IncomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.valuations.Income(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valuation": result,
		"timestamp": time.Now(),
	})
}
