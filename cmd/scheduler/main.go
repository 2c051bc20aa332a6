package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/app"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("🏘️  Dealflow Hold & Digest Scheduler")
	fmt.Println("====================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()
	engine, err := app.New(cfg, logger.NewSimpleLogger("scheduler-cmd"))
	if err != nil {
		log.Fatalf("❌ Failed to initialize engine: %v", err)
	}
	defer engine.Close()

	fmt.Printf("📋 Scheduler Configuration:\n")
	fmt.Printf("   • Sweep Interval: %v\n", cfg.SweepInterval)
	fmt.Printf("   • Digest Interval: %v\n", cfg.DigestInterval)
	fmt.Printf("   • Digest Fetch Timeout: %v\n", cfg.DigestFetchTimeout)
	fmt.Printf("   • Dispatch Workers: %d\n", cfg.DispatchWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Services.Dispatcher.Start(ctx)

	// Check if this is a one-time run
	if len(os.Args) > 1 && os.Args[1] == "--once" {
		fmt.Println("\n🔄 Running one-time cycle...")
		runCtx, runCancel := context.WithTimeout(ctx, 5*time.Minute)
		stats, err := engine.Scheduler.RunOnce(runCtx)
		runCancel()
		// Drain queued alerts before exiting
		engine.Services.Dispatcher.Stop()
		if err != nil {
			log.Fatalf("❌ One-time cycle failed: %v", err)
		}

		fmt.Printf("\n✅ One-time cycle completed!\n")
		fmt.Printf("   • Duration: %v\n", stats.Duration.Round(time.Millisecond))
		fmt.Printf("   • Holds Released: %d\n", stats.Released)
		fmt.Printf("   • Deferred Alerts Sent: %d\n", stats.DeferredSent)
		fmt.Printf("   • Deferred Alerts Pending: %d\n", stats.PendingDeferred)
		fmt.Printf("   • Digests Sent: %d\n", stats.Digests.Sent)
		return
	}

	engine.Services.Rules.Watch()
	if err := engine.Scheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start scheduler: %v", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("\n🚀 Scheduler is running...")
	fmt.Println("Press Ctrl+C to stop gracefully")

	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received, stopping scheduler...")

	if err := engine.Scheduler.Stop(); err != nil {
		log.Printf("❌ Error stopping scheduler: %v", err)
	} else {
		fmt.Println("✅ Scheduler stopped successfully")
	}
	engine.Services.Dispatcher.Stop()
}
