package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/hold"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
)

// SchedulerConfig contains configuration for the background scheduler
type SchedulerConfig struct {
	SweepInterval      time.Duration `json:"sweep_interval"`       // Hold expiry and deferred alert cadence
	DigestInterval     time.Duration `json:"digest_interval"`      // How often digest due-ness is checked
	DigestFetchTimeout time.Duration `json:"digest_fetch_timeout"` // Bound on the "new deals" fetch
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepInterval:      time.Minute,
		DigestInterval:     15 * time.Minute,
		DigestFetchTimeout: 30 * time.Second,
	}
}

// Scheduler runs the periodic hold sweep, deferred alert delivery and digests
type Scheduler struct {
	holds   *hold.Manager
	matches *MatchService
	clock   clock.Clock
	logger  logger.Logger
	config  SchedulerConfig

	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex

	// serializes cycles between the loop and manual runs
	cycleMu   sync.Mutex
	lastCycle *CycleStats
}

// NewScheduler creates a scheduler over the application services
func NewScheduler(svc *Services, cfg SchedulerConfig, clk clock.Clock, log logger.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.DigestInterval <= 0 {
		cfg.DigestInterval = defaults.DigestInterval
	}
	if cfg.DigestFetchTimeout <= 0 {
		cfg.DigestFetchTimeout = defaults.DigestFetchTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewSimpleLogger("scheduler")
	}
	return &Scheduler{
		holds:   svc.Holds,
		matches: svc.Matches,
		clock:   clk,
		logger:  log,
		config:  cfg,
	}
}

// Start begins the background loops
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopChan)

	s.logger.Info("🎯 Scheduler started",
		"sweep_interval", s.config.SweepInterval,
		"digest_interval", s.config.DigestInterval)
	return nil
}

// Stop gracefully stops the scheduler and waits for the running cycle
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return fmt.Errorf("scheduler is not running")
	}

	close(s.stopChan)
	s.wg.Wait()
	s.isRunning = false

	s.logger.Info("🛑 Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunOnce executes a full cycle: sweep, deferred delivery and digests
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleStats, error) {
	return s.cycle(ctx, true)
}

func (s *Scheduler) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	sweep := time.NewTicker(s.config.SweepInterval)
	defer sweep.Stop()
	digest := time.NewTicker(s.config.DigestInterval)
	defer digest.Stop()

	// Run immediately on start
	s.logCycle(s.cycle(ctx, true))

	for {
		select {
		case <-stop:
			s.logger.Info("📋 Scheduler stop signal received")
			return
		case <-sweep.C:
			s.logCycle(s.cycle(ctx, false))
		case <-digest.C:
			s.logCycle(s.cycle(ctx, true))
		}
	}
}

func (s *Scheduler) logCycle(stats *CycleStats, err error) {
	if err != nil {
		s.logger.Error("❌ Scheduler cycle failed", err)
		return
	}
	if stats.Released > 0 || stats.DeferredSent > 0 || stats.Digests.Sent > 0 {
		s.logger.Info("✅ Scheduler cycle completed", "summary", stats.Summary())
		return
	}
	s.logger.Debug("Scheduler cycle completed", "summary", stats.Summary())
}

// cycle performs one pass. Every step runs even when an earlier one fails;
// the first error is returned.
func (s *Scheduler) cycle(ctx context.Context, digests bool) (*CycleStats, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	stats := &CycleStats{StartTime: s.clock.Now()}
	var firstErr error

	released, err := s.holds.SweepExpired(ctx)
	if err != nil {
		firstErr = fmt.Errorf("hold sweep failed: %w", err)
	}
	stats.Released = len(released)

	stats.DeferredSent = s.matches.DeliverDeferred(ctx)

	if digests {
		stats.Digests, err = s.matches.RunDigests(ctx, s.config.DigestFetchTimeout)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("digest run failed: %w", err)
		}
		if stats.Digests.FetchTimedOut {
			s.logger.Warn("⏱️  Digest fetch timed out, cycle sent nothing", "timeout", s.config.DigestFetchTimeout)
		}
	}

	stats.PendingDeferred = s.matches.PendingDeferred()
	stats.EndTime = s.clock.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	s.lastCycle = stats
	return stats, firstErr
}

// GetStatus returns the scheduler state and the last cycle
func (s *Scheduler) GetStatus() SchedulerStatus {
	status := SchedulerStatus{
		IsRunning: s.IsRunning(),
		Config:    s.config,
		Timestamp: s.clock.Now(),
	}
	s.cycleMu.Lock()
	if s.lastCycle != nil {
		last := *s.lastCycle
		status.LastCycle = &last
	}
	s.cycleMu.Unlock()
	status.PendingDeferred = s.matches.PendingDeferred()
	return status
}

// Data structures

type CycleStats struct {
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	Released        int           `json:"released"`
	DeferredSent    int           `json:"deferred_sent"`
	PendingDeferred int           `json:"pending_deferred"`
	Digests         DigestStats   `json:"digests"`
}

func (s *CycleStats) Summary() string {
	return fmt.Sprintf("released=%d, deferred_sent=%d, digests_due=%d, digests_sent=%d, deals_fetched=%d, duration=%v",
		s.Released, s.DeferredSent, s.Digests.Due, s.Digests.Sent, s.Digests.DealsFetched, s.Duration.Round(time.Millisecond))
}

type SchedulerStatus struct {
	IsRunning       bool            `json:"is_running"`
	Config          SchedulerConfig `json:"config"`
	LastCycle       *CycleStats     `json:"last_cycle,omitempty"`
	PendingDeferred int             `json:"pending_deferred"`
	Timestamp       time.Time       `json:"timestamp"`
}
