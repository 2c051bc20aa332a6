package hold

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/google/uuid"
)

// ReleaseHook runs after a deal becomes visible to buyers
type ReleaseHook func(ctx context.Context, deal *models.Deal)

// keyedMutex hands out one mutex per deal
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// Manager is the single writer of a deal's hold status. Valuation, admin
// actions and the expiry sweep all go through it, serialized per deal.
type Manager struct {
	deals     repository.DealRepository
	evaluator *AutoHoldEvaluator
	clock     clock.Clock
	logger    logger.Logger
	locks     *keyedMutex

	hookMu    sync.RWMutex
	onRelease ReleaseHook
}

// NewManager creates a hold manager
func NewManager(deals repository.DealRepository, evaluator *AutoHoldEvaluator, clk clock.Clock, log logger.Logger) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Manager{
		deals:     deals,
		evaluator: evaluator,
		clock:     clk,
		logger:    log,
		locks:     newKeyedMutex(),
	}
}

// OnRelease sets the hook invoked whenever a deal is released
func (m *Manager) OnRelease(hook ReleaseHook) {
	m.hookMu.Lock()
	m.onRelease = hook
	m.hookMu.Unlock()
}

// SetEvaluator swaps the rules used for future evaluations
func (m *Manager) SetEvaluator(e *AutoHoldEvaluator) {
	m.hookMu.Lock()
	m.evaluator = e
	m.hookMu.Unlock()
}

func (m *Manager) currentEvaluator() *AutoHoldEvaluator {
	m.hookMu.RLock()
	defer m.hookMu.RUnlock()
	return m.evaluator
}

// ApplyValuation stores a freshly valued deal. A valuation older than the
// stored one is ignored. The manual review flag and any non-automatic hold
// status of the stored deal survive; auto-hold applies only to deals with
// no hold status yet.
func (m *Manager) ApplyValuation(ctx context.Context, deal *models.Deal) (*models.Deal, Decision, error) {
	unlock := m.locks.lock(deal.ID)
	defer unlock()

	now := m.clock.Now()
	evaluator := m.currentEvaluator()

	existing, err := m.deals.Get(ctx, deal.ID)
	if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, Decision{}, err
	}

	next := *deal
	if next.HoldStatus == "" {
		next.HoldStatus = models.HoldNone
	}
	next.UpdatedAt = now

	if existing != nil {
		// Last write wins by valuation time
		if deal.ValuedAt.Before(existing.ValuedAt) {
			m.logger.Debug("Ignoring stale valuation", "deal_id", deal.ID, "valued_at", deal.ValuedAt)
			return existing, Decision{Reasons: []string{}}, nil
		}
		next.CreatedAt = existing.CreatedAt
		next.NeedsManualReview = existing.NeedsManualReview || deal.NeedsManualReview
		next.ReviewClearedAt = existing.ReviewClearedAt
		if existing.HoldStatus.Terminal() || next.HoldStatus == models.HoldNone {
			next.HoldStatus = existing.HoldStatus
			next.HoldUntil = existing.HoldUntil
			next.HoldReasons = existing.HoldReasons
		}
	} else if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	decision := Decision{Reasons: []string{}}
	if evaluator != nil && next.HoldStatus == models.HoldNone {
		decision = evaluator.Evaluate(&next, now)
		if decision.ShouldHold {
			next.HoldStatus = models.HoldActive
			next.HoldUntil = decision.HoldUntil
			next.HoldReasons = decision.Reasons
			m.logger.Info("⏸️  Deal auto-held", "deal_id", next.ID, "reason", decision.PrimaryReason, "reasons", len(decision.Reasons))
		}
	}

	if existing == nil {
		err = m.deals.Create(ctx, &next)
	} else {
		err = m.deals.Update(ctx, &next)
	}
	if err != nil {
		return nil, decision, err
	}
	return &next, decision, nil
}

// Hold withholds a deal for the configured duration. A self-purchased deal
// cannot be held.
func (m *Manager) Hold(ctx context.Context, id uuid.UUID, reason string) (*models.Deal, error) {
	return m.transition(ctx, id, "hold", func(d *models.Deal, now time.Time) (bool, error) {
		if d.HoldStatus.Terminal() {
			return false, errors.RuleConflict("deal is reserved for self-purchase", nil).WithOperation("hold")
		}
		until := now.Add(m.currentEvaluator().Duration())
		d.HoldStatus = models.HoldActive
		d.HoldUntil = &until
		if reason == "" {
			reason = "Held by admin"
		}
		d.HoldReasons = append(d.HoldReasons, reason)
		return false, nil
	})
}

// Release makes a held deal visible to buyers. It is the only way to clear
// a pending manual review.
func (m *Manager) Release(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return m.transition(ctx, id, "release", func(d *models.Deal, now time.Time) (bool, error) {
		if d.HoldStatus.Terminal() {
			return false, errors.RuleConflict("self-purchased deals are never released", nil).WithOperation("release")
		}
		wasVisible := d.Visible()
		if d.ReviewPending() {
			cleared := now
			d.ReviewClearedAt = &cleared
		}
		d.HoldStatus = models.HoldReleased
		d.HoldUntil = nil
		return !wasVisible, nil
	})
}

// SelfPurchase reserves a deal for the operator. It is terminal and wins over
// any hold.
func (m *Manager) SelfPurchase(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return m.transition(ctx, id, "self_purchase", func(d *models.Deal, now time.Time) (bool, error) {
		d.HoldStatus = models.HoldSelfPurchase
		d.HoldUntil = nil
		return false, nil
	})
}

// SweepExpired releases every HOLD whose expiry has passed. A deal still
// awaiting manual review stays held with no expiry until an admin releases it.
func (m *Manager) SweepExpired(ctx context.Context) ([]*models.Deal, error) {
	held, err := m.deals.ListByStatus(ctx, models.HoldActive)
	if err != nil {
		return nil, err
	}

	var released []*models.Deal
	for _, candidate := range held {
		if candidate.HoldUntil == nil || m.clock.Now().Before(*candidate.HoldUntil) {
			continue
		}
		deal, err := m.transition(ctx, candidate.ID, "sweep", func(d *models.Deal, now time.Time) (bool, error) {
			// Re-check under the lock; an admin may have acted since the listing
			if d.HoldStatus != models.HoldActive || d.HoldUntil == nil || now.Before(*d.HoldUntil) {
				return false, errSkip
			}
			d.HoldUntil = nil
			if d.ReviewPending() {
				d.HoldReasons = append(d.HoldReasons, reasonAwaitingReview)
				return false, nil
			}
			d.HoldStatus = models.HoldReleased
			return true, nil
		})
		if err == errSkip {
			continue
		}
		if err == nil && deal.HoldStatus == models.HoldActive {
			m.logger.Warn("Hold expired on a deal awaiting review, keeping it withheld", "deal_id", deal.ID)
			continue
		}
		if err != nil {
			m.logger.Error("Failed to release expired hold", err, "deal_id", candidate.ID)
			continue
		}
		released = append(released, deal)
	}

	if len(released) > 0 {
		m.logger.Info("✅ Released expired holds", "count", len(released))
	}
	return released, nil
}

var errSkip = fmt.Errorf("skip")

const reasonAwaitingReview = "Awaiting manual review"

// transition reads, mutates and writes one deal under its lock. The mutator
// reports whether the deal became visible.
func (m *Manager) transition(ctx context.Context, id uuid.UUID, op string, mutate func(*models.Deal, time.Time) (bool, error)) (*models.Deal, error) {
	unlock := m.locks.lock(id)
	deal, err := m.deals.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}

	now := m.clock.Now()
	released, err := mutate(deal, now)
	if err != nil {
		unlock()
		return nil, err
	}
	deal.UpdatedAt = now
	if err := m.deals.Update(ctx, deal); err != nil {
		unlock()
		return nil, errors.ExternalFailure("failed to persist hold status", err).WithOperation(op)
	}
	unlock()

	m.logger.Info("Deal hold status changed", "deal_id", id, "op", op, "status", deal.HoldStatus)

	if released {
		m.hookMu.RLock()
		hook := m.onRelease
		m.hookMu.RUnlock()
		if hook != nil {
			hook(ctx, deal)
		}
	}
	return deal, nil
}
