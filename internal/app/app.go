// Package app assembles the engine from process configuration. The server and
// the standalone scheduler share it.
package app

import (
	"context"
	"fmt"

	"github.com/ajharbinger/dealflow-engine/internal/database"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/ajharbinger/dealflow-engine/internal/sources"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// App holds the wired engine and the resources it owns
type App struct {
	Config    *config.Config
	DB        *database.DB
	Services  *services.Services
	Scheduler *services.Scheduler
	Logger    logger.Logger
}

// New connects storage, loads the rules, wires every service and restores
// alert state left by a previous process. Without a DATABASE_URL the engine
// runs on the in-memory store.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewSimpleLogger("app")
	}
	a := &App{Config: cfg, Logger: log}

	var store repository.Store
	if cfg.HasDatabase() {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.DB = db
		store = repository.NewPostgresStore(db)
		log.Info("🗄️  Using Postgres storage")
	} else {
		store = repository.NewMemoryStore()
		log.Warn("⚠️  DATABASE_URL not set, using in-memory storage")
	}

	rules, err := config.NewRulesProvider(cfg.RulesFile, logger.NewSimpleLogger("rules"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	a.Services = services.NewServices(services.Options{
		Repositories:    repository.NewRepositories(store),
		Rules:           rules,
		Collector:       NewCollector(cfg, logger.NewSimpleLogger("sources")),
		Logger:          logger.NewSimpleLogger("services"),
		DispatchWorkers: cfg.DispatchWorkers,
		DispatchRate:    cfg.DispatchRate,
	})
	if _, err := a.Services.Matches.Restore(context.Background()); err != nil {
		log.Warn("⚠️  Failed to restore deferred alerts", "error", err.Error())
	}
	a.Scheduler = services.NewScheduler(a.Services, services.SchedulerConfig{
		SweepInterval:      cfg.SweepInterval,
		DigestInterval:     cfg.DigestInterval,
		DigestFetchTimeout: cfg.DigestFetchTimeout,
	}, nil, logger.NewSimpleLogger("scheduler"))

	return a, nil
}

// NewCollector builds the HTML source adapters named in SOURCE_URLS, each
// rate limited and cached. It returns nil when no source is configured.
func NewCollector(cfg *config.Config, log logger.Logger) *sources.Collector {
	endpoints := cfg.GetSources()
	if len(endpoints) == 0 {
		return nil
	}
	adapters := make([]sources.Adapter, 0, len(endpoints))
	for _, ep := range endpoints {
		var adapter sources.Adapter = sources.NewHTMLListingAdapter(ep.Name, ep.URL, ep.Accuracy, nil)
		if cfg.SourceRate > 0 {
			adapter = sources.NewRateLimitedAdapter(adapter, cfg.SourceRate, 1)
		}
		if cfg.SourceCacheTTL > 0 {
			adapter = sources.NewCachedAdapter(adapter, cfg.SourceCacheTTL)
		}
		adapters = append(adapters, adapter)
		log.Info("🔌 Source configured", "source", ep.Name, "accuracy", ep.Accuracy)
	}
	return sources.NewCollector(adapters, cfg.SourceTimeout, log)
}

// Close releases the database connection
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
