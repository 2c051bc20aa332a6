package services

import (
	"context"
	"sync/atomic"

	"github.com/ajharbinger/dealflow-engine/internal/alerts"
	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/hold"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/notify"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/ajharbinger/dealflow-engine/internal/scoring"
	"github.com/ajharbinger/dealflow-engine/internal/sources"
	"github.com/ajharbinger/dealflow-engine/internal/valuation"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// engine is every rule-driven component built from one rules snapshot
type engine struct {
	rules    config.Rules
	verifier *valuation.DataVerifier
	offers   *valuation.OfferCalculator
	income   *valuation.IncomeValuator
	markets  *valuation.MarketResolver
	leads    *scoring.LeadScorer
	matcher  *scoring.MatchScorer
	alerts   *alerts.Scheduler
}

func newEngine(r config.Rules, estimator valuation.RentEstimator) *engine {
	return &engine{
		rules:    r,
		verifier: valuation.NewDataVerifier(r.Verifier),
		offers:   valuation.NewOfferCalculator(r.Offer),
		income:   valuation.NewIncomeValuator(r.Income, r.Markets, estimator),
		markets:  valuation.NewMarketResolver(r.Markets),
		leads:    scoring.NewLeadScorer(r.Lead),
		matcher:  scoring.NewMatchScorer(r.Match),
		alerts:   alerts.NewScheduler(r.Alerts),
	}
}

// engineRef publishes the current engine to every service
type engineRef struct {
	current atomic.Pointer[engine]
}

func (e *engineRef) get() *engine { return e.current.Load() }

// Options are the collaborators of the service layer
type Options struct {
	Repositories *repository.Repositories
	Rules        *config.RulesProvider
	Collector    *sources.Collector
	Sender       notify.Sender
	Estimator    valuation.RentEstimator
	Clock        clock.Clock
	Logger       logger.Logger

	DispatchWorkers int
	DispatchRate    float64
}

// Services contains all application services
type Services struct {
	Valuations *ValuationService
	Deals      *DealService
	Matches    *MatchService
	Leads      *LeadService
	Buyers     *BuyerService
	Holds      *hold.Manager
	Dispatcher *notify.Dispatcher
	Rules      *config.RulesProvider
	Repos      *repository.Repositories

	engine *engineRef
}

// NewServices wires the engine, hold manager, alerting and dispatch together
func NewServices(opts Options) *Services {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewSimpleLogger("services")
	}
	if opts.Rules == nil {
		opts.Rules = config.StaticRules(config.DefaultRules())
	}
	if opts.Repositories == nil {
		opts.Repositories = repository.NewRepositories(repository.NewMemoryStore())
	}
	if opts.Sender == nil {
		opts.Sender = notify.NewLogSender(opts.Logger)
	}

	ref := &engineRef{}
	rules := opts.Rules.Current()
	ref.current.Store(newEngine(rules, opts.Estimator))

	holds := hold.NewManager(opts.Repositories.Deals, hold.NewAutoHoldEvaluator(rules.AutoHold), opts.Clock, opts.Logger)

	matches := newMatchService(opts.Repositories, ref, opts.Clock, opts.Logger)
	dispatcher := notify.NewDispatcher(opts.Sender, matches, nil, notify.DispatcherConfig{
		Workers:       opts.DispatchWorkers,
		RatePerSecond: opts.DispatchRate,
		Clock:         opts.Clock,
	}, opts.Logger)
	matches.dispatcher = dispatcher
	dispatcher.OnDelivered(matches.markDelivered)

	holds.OnRelease(func(ctx context.Context, d *models.Deal) {
		if _, err := matches.NotifyDeal(ctx, d); err != nil {
			opts.Logger.Error("Failed to notify buyers of released deal", err, "deal_id", d.ID)
		}
	})

	opts.Rules.OnChange(func(r config.Rules) {
		ref.current.Store(newEngine(r, opts.Estimator))
		holds.SetEvaluator(hold.NewAutoHoldEvaluator(r.AutoHold))
		opts.Logger.Info("🔁 Engine rules reloaded")
	})

	return &Services{
		Valuations: newValuationService(ref, opts.Collector, opts.Clock),
		Deals:      newDealService(opts.Repositories, ref, holds, matches, opts.Collector, opts.Clock, opts.Logger),
		Matches:    matches,
		Leads:      newLeadService(opts.Repositories, ref, opts.Clock),
		Buyers:     newBuyerService(opts.Repositories, opts.Clock),
		Holds:      holds,
		Dispatcher: dispatcher,
		Rules:      opts.Rules,
		Repos:      opts.Repositories,
		engine:     ref,
	}
}

// CurrentRules returns the rules snapshot in force
func (s *Services) CurrentRules() config.Rules {
	return s.engine.get().rules
}
