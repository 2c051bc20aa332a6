package api

import (
	"net/http"

	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// BuyersHandler handles buyer profiles, saved searches and bids
type BuyersHandler struct {
	buyers *services.BuyerService
}

// NewBuyersHandler creates a new buyers handler
func NewBuyersHandler(buyers *services.BuyerService) *BuyersHandler {
	return &BuyersHandler{buyers: buyers}
}

// CreateBuyer registers an investor profile
func (h *BuyersHandler) CreateBuyer(c *gin.Context) {
	var req services.CreateBuyerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	buyer, err := h.buyers.CreateBuyer(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"buyer": buyer})
}

// GetBuyer returns a buyer with their bid history
func (h *BuyersHandler) GetBuyer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	buyer, err := h.buyers.GetBuyer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := h.buyers.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buyer": buyer, "history": history})
}

// ListSearches returns the saved searches of a buyer
func (h *BuyersHandler) ListSearches(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	searches, err := h.buyers.ListSearches(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"searches": searches, "count": len(searches)})
}

// CreateSearch stores a saved search
func (h *BuyersHandler) CreateSearch(c *gin.Context) {
	var req services.CreateSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	search, err := h.buyers.CreateSearch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"search": search})
}

// PlaceBid records a bid on a deal
func (h *BuyersHandler) PlaceBid(c *gin.Context) {
	var req services.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	bid, err := h.buyers.PlaceBid(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bid": bid})
}
