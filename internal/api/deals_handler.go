package api

import (
	"net/http"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// DealsHandler handles deal creation, lookup, matching and admin holds
type DealsHandler struct {
	deals *services.DealService
}

// NewDealsHandler creates a new deals handler
func NewDealsHandler(deals *services.DealService) *DealsHandler {
	return &DealsHandler{deals: deals}
}

// CreateDeal values a property and publishes it to matching buyers
func (h *DealsHandler) CreateDeal(c *gin.Context) {
	var req services.CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	outcome, err := h.deals.CreateDeal(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, outcome)
}

// GetDeal returns a deal by ID
func (h *DealsHandler) GetDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deal, err := h.deals.GetDeal(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

// GetDealMatches scores a visible deal against every buyer and saved search
func (h *DealsHandler) GetDealMatches(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	matches, err := h.deals.Matches(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deal_id":   id,
		"matches":   matches,
		"count":     len(matches),
		"timestamp": time.Now(),
	})
}

type holdRequest struct {
	Reason string `json:"reason"`
}

// HoldDeal withholds a deal from buyers (Admin only)
func (h *DealsHandler) HoldDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req holdRequest
	// The reason is optional
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "Held by admin"
	}

	deal, err := h.deals.Hold(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

// ReleaseDeal publishes a held deal (Admin only)
func (h *DealsHandler) ReleaseDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deal, err := h.deals.Release(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

// SelfPurchaseDeal withdraws a deal for the operator (Admin only)
func (h *DealsHandler) SelfPurchaseDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deal, err := h.deals.SelfPurchase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": deal})
}

// RecheckDeal re-collects sources and re-values a deal (Admin only)
func (h *DealsHandler) RecheckDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	outcome, err := h.deals.Recheck(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
