package api

import (
	"fmt"

	"github.com/ajharbinger/dealflow-engine/internal/auth"
	"github.com/ajharbinger/dealflow-engine/internal/database"
	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes. db is optional; the engine runs
// against the in-memory store when it is nil.
func SetupRoutes(r *gin.Engine, svc *services.Services, scheduler *services.Scheduler, db *database.DB, cfg *config.Config) error {
	if svc == nil {
		return fmt.Errorf("services are required")
	}
	if scheduler == nil {
		return fmt.Errorf("scheduler is required")
	}
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.JWTSecret == "" && cfg.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	valuationHandler := NewValuationHandler(svc.Valuations)
	dealsHandler := NewDealsHandler(svc.Deals)
	buyersHandler := NewBuyersHandler(svc.Buyers)
	leadsHandler := NewLeadsHandler(svc.Leads)
	pipelineHandler := NewPipelineHandler(scheduler)
	healthHandler := NewHealthHandler(svc, scheduler, db)

	// Public routes
	public := r.Group("/api/v1")
	{
		public.GET("/health", healthHandler.GetSystemHealth)
		public.GET("/rules", healthHandler.GetRules)

		// Stateless valuation
		public.POST("/valuations/verify", valuationHandler.Verify)
		public.POST("/valuations/offer", valuationHandler.Offer)
		public.POST("/valuations/income", valuationHandler.Income)

		// Seller leads
		public.POST("/leads/score", leadsHandler.ScoreLead)
		public.POST("/leads", leadsHandler.SubmitLead)
		public.GET("/leads/:id", leadsHandler.GetLead)

		// Deals
		public.POST("/deals", dealsHandler.CreateDeal)
		public.GET("/deals/:id", dealsHandler.GetDeal)
		public.GET("/deals/:id/matches", dealsHandler.GetDealMatches)

		// Buyers, saved searches and bids
		public.POST("/buyers", buyersHandler.CreateBuyer)
		public.GET("/buyers/:id", buyersHandler.GetBuyer)
		public.GET("/buyers/:id/searches", buyersHandler.ListSearches)
		public.POST("/searches", buyersHandler.CreateSearch)
		public.POST("/bids", buyersHandler.PlaceBid)
	}

	// Admin routes
	admin := r.Group("/api/v1/admin")
	admin.Use(auth.JWTMiddleware(cfg.JWTSecret))
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	{
		// Deal hold workflow
		admin.POST("/deals/:id/hold", dealsHandler.HoldDeal)
		admin.POST("/deals/:id/release", dealsHandler.ReleaseDeal)
		admin.POST("/deals/:id/self-purchase", dealsHandler.SelfPurchaseDeal)
		admin.POST("/deals/:id/recheck", dealsHandler.RecheckDeal)

		// Background scheduler
		admin.GET("/scheduler/status", pipelineHandler.GetSchedulerStatus)
		admin.POST("/scheduler/start", pipelineHandler.StartScheduler)
		admin.POST("/scheduler/stop", pipelineHandler.StopScheduler)
		admin.POST("/scheduler/run-once", pipelineHandler.RunSchedulerOnce)

		// Delivery health and rules
		admin.GET("/health/notifications", healthHandler.GetNotificationHealth)
		admin.POST("/health/notifications/reset", healthHandler.ResetNotificationHealth)
		admin.POST("/rules/reload", healthHandler.ReloadRules)
	}

	return nil
}
