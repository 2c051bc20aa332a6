package api

import (
	"net/http"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// LeadsHandler handles seller lead scoring and intake
type LeadsHandler struct {
	leads *services.LeadService
}

// NewLeadsHandler creates a new leads handler
func NewLeadsHandler(leads *services.LeadService) *LeadsHandler {
	return &LeadsHandler{leads: leads}
}

// ScoreLead scores a lead without storing it
func (h *LeadsHandler) ScoreLead(c *gin.Context) {
	var lead models.Lead
	if err := c.ShouldBindJSON(&lead); err != nil {
		bindError(c, err)
		return
	}

	scored := h.leads.Score(lead)
	c.JSON(http.StatusOK, gin.H{
		"score":     scored.Score,
		"priority":  scored.Priority,
		"timestamp": time.Now(),
	})
}

// SubmitLead scores, routes and stores a lead
func (h *LeadsHandler) SubmitLead(c *gin.Context) {
	var lead models.Lead
	if err := c.ShouldBindJSON(&lead); err != nil {
		bindError(c, err)
		return
	}

	scored, err := h.leads.Submit(c.Request.Context(), lead)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, scored)
}

// GetLead returns a stored lead rescored against the current rules
func (h *LeadsHandler) GetLead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	scored, err := h.leads.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scored)
}
