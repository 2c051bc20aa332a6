package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// PipelineHandler manages the background scheduler (Admin only)
type PipelineHandler struct {
	scheduler *services.Scheduler
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(scheduler *services.Scheduler) *PipelineHandler {
	return &PipelineHandler{scheduler: scheduler}
}

// GetSchedulerStatus returns the scheduler state and its last cycle
func (h *PipelineHandler) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"scheduler_status": h.scheduler.GetStatus(),
		"timestamp":        time.Now(),
	})
}

// StartScheduler starts the background loops
func (h *PipelineHandler) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to start scheduler: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Scheduler started successfully",
		"timestamp": time.Now(),
	})
}

// StopScheduler stops the background loops
func (h *PipelineHandler) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to stop scheduler: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Scheduler stopped successfully",
		"timestamp": time.Now(),
	})
}

// RunSchedulerOnce executes a single sweep and digest cycle
func (h *PipelineHandler) RunSchedulerOnce(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	stats, err := h.scheduler.RunOnce(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Scheduler cycle failed: " + err.Error(),
			"stats": stats,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Scheduler cycle completed",
		"stats":     stats,
		"summary":   stats.Summary(),
		"timestamp": time.Now(),
	})
}
