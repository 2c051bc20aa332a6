package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/api"
	"github.com/ajharbinger/dealflow-engine/internal/app"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/middleware"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize configuration
	cfg := config.New()
	appLogger := logger.NewSimpleLogger("server")

	engine, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize engine", err)
	}
	defer engine.Close()

	// Hot-reload the rules file
	engine.Services.Rules.Watch()

	// Start notification workers and the background scheduler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Services.Dispatcher.Start(ctx)
	if err := engine.Scheduler.Start(); err != nil {
		appLogger.Fatal("Failed to start scheduler", err)
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.GetTrustedProxies()); err != nil {
		appLogger.Fatal("Invalid TRUSTED_PROXIES", err)
	}

	// Add security middleware
	r.Use(middleware.LoggingMiddleware(logger.NewSimpleLogger("http")))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg))
	r.Use(middleware.InputValidationMiddleware(cfg.MaxRequestSize))

	// Add rate limiting in production
	if cfg.EnableRateLimit {
		r.Use(middleware.RateLimitingMiddleware(120, 20))
	}

	// Add recovery middleware
	r.Use(gin.Recovery())

	// Setup API routes
	if err := api.SetupRoutes(r, engine.Services, engine.Scheduler, engine.DB, cfg); err != nil {
		appLogger.Fatal("Failed to setup API routes", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("🚀 Server starting", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", err)
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("🛑 Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", err)
	}
	if engine.Scheduler.IsRunning() {
		if err := engine.Scheduler.Stop(); err != nil {
			appLogger.Error("Failed to stop scheduler", err)
		}
	}
	engine.Services.Dispatcher.Stop()
	appLogger.Info("✅ Server stopped")
}
