package api

import (
	"net/http"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/database"
	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/gin-gonic/gin"
)

// HealthHandler reports process, database and delivery health
type HealthHandler struct {
	services  *services.Services
	scheduler *services.Scheduler
	db        *database.DB
}

// NewHealthHandler creates a new health handler; db may be nil when running in memory
func NewHealthHandler(svc *services.Services, scheduler *services.Scheduler, db *database.DB) *HealthHandler {
	return &HealthHandler{services: svc, scheduler: scheduler, db: db}
}

// GetSystemHealth returns overall system health status
func (h *HealthHandler) GetSystemHealth(c *gin.Context) {
	delivery := h.services.Dispatcher.Monitor().GetHealthStatus()
	response := gin.H{
		"healthy":             delivery.IsHealthy,
		"storage":             "memory",
		"notification_health": delivery,
		"timestamp":           time.Now(),
	}
	if h.scheduler != nil {
		response["scheduler_running"] = h.scheduler.IsRunning()
	}

	if h.db != nil {
		response["storage"] = "postgres"
		response["database_stats"] = h.db.GetStats()
		if err := h.db.HealthCheck(); err != nil {
			response["healthy"] = false
			response["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetNotificationHealth returns detailed delivery health
func (h *HealthHandler) GetNotificationHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"health_status":    h.services.Dispatcher.Monitor().GetHealthStatus(),
		"pending_deferred": h.services.Matches.PendingDeferred(),
		"timestamp":        time.Now(),
	})
}

// ResetNotificationHealth resets the delivery health monitor (Admin only)
func (h *HealthHandler) ResetNotificationHealth(c *gin.Context) {
	h.services.Dispatcher.Monitor().Reset()

	c.JSON(http.StatusOK, gin.H{
		"message":   "Notification health monitor reset successfully",
		"timestamp": time.Now(),
	})
}

// GetRules returns the rules snapshot in force
func (h *HealthHandler) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rules":     h.services.CurrentRules(),
		"source":    h.services.Rules.Path(),
		"timestamp": time.Now(),
	})
}

// ReloadRules re-reads the rules file (Admin only)
func (h *HealthHandler) ReloadRules(c *gin.Context) {
	if err := h.services.Rules.Reload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "Rules reload rejected: " + err.Error(),
			"timestamp": time.Now(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Rules reloaded successfully",
		"rules":     h.services.CurrentRules(),
		"timestamp": time.Now(),
	})
}
