package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/alerts"
	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/notify"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	kindInstant = "instant"
	kindDaily   = "daily_digest"
	kindWeekly  = "weekly_digest"

	deliveryRetention = 8 * 24 * time.Hour
	digestLookback    = 7 * 24 * time.Hour
)

// Match is one subscription scored against one deal
type Match struct {
	Subscription alerts.Subscription `json:"subscription"`
	Result       models.MatchResult  `json:"result"`
}

// NotifySummary counts what happened to a deal's matches
type NotifySummary struct {
	Matched  int `json:"matched"`
	Sent     int `json:"sent"`
	Deferred int `json:"deferred"`
	Batched  int `json:"batched"`
	Skipped  int `json:"skipped"`
}

// DigestStats summarizes one digest run
type DigestStats struct {
	DealsFetched  int  `json:"deals_fetched"`
	FetchTimedOut bool `json:"fetch_timed_out"`
	Due           int  `json:"due"`
	Sent          int  `json:"sent"`
}

// MatchService scores deals against buyers and saved searches and routes the
// resulting alerts
type MatchService struct {
	repos      *repository.Repositories
	engine     *engineRef
	dispatcher *notify.Dispatcher
	clock      clock.Clock
	logger     logger.Logger

	deferred *alerts.DeferredQueue
	digests  *alerts.DigestQueue
	counters *alerts.Counters

	mu         sync.Mutex
	inflight   map[uuid.UUID]*models.Notification
	parked     map[uuid.UUID]*models.Notification
	digestSent map[uuid.UUID]time.Time

	digestMu   sync.Mutex
	lastDigest time.Time
}

func newMatchService(repos *repository.Repositories, ref *engineRef, clk clock.Clock, log logger.Logger) *MatchService {
	return &MatchService{
		repos:      repos,
		engine:     ref,
		clock:      clk,
		logger:     log,
		deferred:   alerts.NewDeferredQueue(deliveryRetention),
		digests:    alerts.NewDigestQueue(),
		counters:   alerts.NewCounters(deliveryRetention),
		inflight:   make(map[uuid.UUID]*models.Notification),
		parked:     make(map[uuid.UUID]*models.Notification),
		digestSent: make(map[uuid.UUID]time.Time),
		lastDigest: clk.Now(),
	}
}

// Subscriptions returns every active buyer profile and saved search
func (s *MatchService) Subscriptions(ctx context.Context) ([]alerts.Subscription, error) {
	buyers, err := s.repos.Buyers.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	searches, err := s.repos.Searches.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	subs := make([]alerts.Subscription, 0, len(buyers)+len(searches))
	for _, b := range buyers {
		sub := alerts.FromBuyer(b)
		if last := s.counters.Get(b.ID).LastEmailSent; last != nil && (sub.LastEmailSent == nil || last.After(*sub.LastEmailSent)) {
			sub.LastEmailSent = last
		}
		subs = append(subs, sub)
	}
	for _, ss := range searches {
		subs = append(subs, alerts.FromSearch(ss))
	}
	return subs, nil
}

// MatchDeal scores a deal against every subscription in parallel and returns
// the publishable matches, best first. Results are never cached.
func (s *MatchService) MatchDeal(ctx context.Context, deal *models.Deal) ([]Match, error) {
	subs, err := s.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	return s.matchSubscriptions(ctx, subs, deal.Snapshot())
}

func (s *MatchService) matchSubscriptions(ctx context.Context, subs []alerts.Subscription, snap models.DealSnapshot) ([]Match, error) {
	eng := s.engine.get()

	var (
		mu  sync.Mutex
		out []Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			history, err := s.repos.Bids.History(gctx, sub.BuyerID)
			if err != nil {
				return fmt.Errorf("bid history for %s: %w", sub.BuyerID, err)
			}
			result := eng.matcher.Score(sub.Criteria, history, snap)
			if !eng.matcher.Publishable(result) {
				return nil
			}
			mu.Lock()
			out = append(out, Match{Subscription: sub, Result: result})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Result.Score != out[j].Result.Score {
			return out[i].Result.Score > out[j].Result.Score
		}
		return out[i].Subscription.ID.String() < out[j].Subscription.ID.String()
	})
	return out, nil
}

// NotifyDeal matches a visible deal and sends, defers or batches each alert
func (s *MatchService) NotifyDeal(ctx context.Context, deal *models.Deal) (NotifySummary, error) {
	var summary NotifySummary
	if !deal.Visible() {
		return summary, nil
	}
	matches, err := s.MatchDeal(ctx, deal)
	if err != nil {
		return summary, err
	}
	summary.Matched = len(matches)

	eng := s.engine.get()
	now := s.clock.Now()
	snap := deal.Snapshot()

	for _, m := range matches {
		decision := eng.alerts.Decide(m.Subscription, m.Result, now)
		alert := alerts.Alert{
			Subscription: m.Subscription,
			Deal:         snap,
			Match:        m.Result,
			Channels:     decision.Channels,
			DeliverAt:    decision.DeliverAt,
		}

		switch decision.Action {
		case alerts.ActionSend:
			// An alert parked during quiet hours goes out through its own records
			if parked, ok := s.deferred.Take(alert.Key(), now); ok {
				parked.Deal, parked.Match = alert.Deal, alert.Match
				s.deliverParked(ctx, parked)
				summary.Sent++
				continue
			}
			if !s.deferred.MarkSent(alert.Key(), now) {
				summary.Skipped++
				continue
			}
			s.send(ctx, kindInstant, m.Subscription, []alerts.Alert{alert}, decision.Channels)
			summary.Sent++
		case alerts.ActionDefer:
			s.park(ctx, alert)
			summary.Deferred++
		case alerts.ActionBatch:
			s.digests.Accrue(alert)
			summary.Batched++
		default:
			summary.Skipped++
		}
	}

	s.logger.Info("📣 Deal matched", "deal_id", deal.ID,
		"matched", summary.Matched, "sent", summary.Sent,
		"deferred", summary.Deferred, "batched", summary.Batched)
	return summary, nil
}

// DeliverDeferred sends every deferred alert whose quiet hours have ended
func (s *MatchService) DeliverDeferred(ctx context.Context) int {
	due := s.deferred.ClaimDue(s.clock.Now())
	for _, a := range due {
		s.deliverParked(ctx, a)
	}
	if len(due) > 0 {
		s.logger.Info("🌅 Delivered deferred alerts", "count", len(due))
	}
	return len(due)
}

// deliverParked enqueues a claimed deferred alert on each of its channels. A
// channel whose deferred record was never written gets a fresh one.
func (s *MatchService) deliverParked(ctx context.Context, a alerts.Alert) {
	batch := []alerts.Alert{a}
	for i, id := range a.NotificationIDs {
		s.mu.Lock()
		n, ok := s.parked[id]
		delete(s.parked, id)
		s.mu.Unlock()

		if ok {
			n.Status = models.NotificationQueued
			if err := s.repos.Notifications.Update(ctx, n); err != nil {
				s.logger.Error("Failed to update notification", err, "notification_id", n.ID)
			}
		} else {
			ch := models.ChannelEmail
			if i < len(a.Channels) {
				ch = a.Channels[i]
			}
			n, _ = s.record(ctx, id, kindInstant, a.Subscription, batch, ch, models.NotificationQueued)
		}
		s.enqueue(n, kindInstant, batch)
	}
}

// Restore reloads the alert state of a previous process. Deferred alerts are
// queued again under their original records, and the next digest run looks
// back far enough to rebuild matches accrued before the restart. It returns
// the number of deferred alerts restored.
func (s *MatchService) Restore(ctx context.Context) (int, error) {
	pending, err := s.repos.Notifications.ListByStatus(ctx, models.NotificationDeferred)
	if err != nil {
		return 0, err
	}

	type parkedAlert struct {
		alert alerts.Alert
		notes []*models.Notification
	}
	groups := make(map[string]*parkedAlert)
	var order []string
	for _, n := range pending {
		if len(n.DealIDs) == 0 {
			continue
		}
		key := n.SubscriptionID.String() + ":" + n.DealIDs[0].String()
		g, ok := groups[key]
		if !ok {
			alert, err := s.restoreAlert(ctx, n)
			if err != nil {
				s.logger.Warn("⚠️  Dropping deferred alert that can no longer be built", "notification_id", n.ID, "error", err.Error())
				n.Status = models.NotificationFailed
				n.Error = err.Error()
				if uerr := s.repos.Notifications.Update(ctx, n); uerr != nil {
					s.logger.Error("Failed to update notification", uerr, "notification_id", n.ID)
				}
				continue
			}
			g = &parkedAlert{alert: alert}
			groups[key] = g
			order = append(order, key)
		}
		g.alert.Channels = append(g.alert.Channels, n.Channel)
		g.alert.NotificationIDs = append(g.alert.NotificationIDs, n.ID)
		g.notes = append(g.notes, n)
	}

	restored := 0
	for _, key := range order {
		g := groups[key]
		if !s.deferred.Add(g.alert) {
			continue
		}
		s.mu.Lock()
		for _, n := range g.notes {
			s.parked[n.ID] = n
		}
		s.mu.Unlock()
		restored++
	}

	s.digestMu.Lock()
	if back := s.clock.Now().Add(-digestLookback); back.Before(s.lastDigest) {
		s.lastDigest = back
	}
	s.digestMu.Unlock()

	if restored > 0 {
		s.logger.Info("♻️  Restored deferred alerts", "count", restored)
	}
	return restored, nil
}

func (s *MatchService) restoreAlert(ctx context.Context, n *models.Notification) (alerts.Alert, error) {
	sub, err := s.subscription(ctx, n.SubscriptionID)
	if err != nil {
		return alerts.Alert{}, err
	}
	deal, err := s.repos.Deals.Get(ctx, n.DealIDs[0])
	if err != nil {
		return alerts.Alert{}, err
	}
	deliverAt := n.CreatedAt
	if n.DeliverAt != nil {
		deliverAt = *n.DeliverAt
	}
	return alerts.Alert{
		Subscription: sub,
		Deal:         deal.Snapshot(),
		Match:        models.MatchResult{Score: n.MatchScore},
		DeliverAt:    deliverAt,
	}, nil
}

// subscription loads a buyer profile or saved search by id
func (s *MatchService) subscription(ctx context.Context, id uuid.UUID) (alerts.Subscription, error) {
	buyer, err := s.repos.Buyers.Get(ctx, id)
	if err == nil {
		return alerts.FromBuyer(buyer), nil
	}
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return alerts.Subscription{}, err
	}
	search, err := s.repos.Searches.Get(ctx, id)
	if err != nil {
		return alerts.Subscription{}, err
	}
	return alerts.FromSearch(search), nil
}

// RunDigests sends daily and weekly digests that are due. Deals updated since
// the previous run are re-matched against due subscriptions; a fetch that
// exceeds fetchTimeout counts as no new deals this cycle.
func (s *MatchService) RunDigests(ctx context.Context, fetchTimeout time.Duration) (DigestStats, error) {
	s.digestMu.Lock()
	defer s.digestMu.Unlock()

	var stats DigestStats
	eng := s.engine.get()
	now := s.clock.Now()

	subs, err := s.Subscriptions(ctx)
	if err != nil {
		return stats, err
	}
	var due []alerts.Subscription
	for _, sub := range subs {
		if sub.Frequency == models.FrequencyInstant {
			continue
		}
		s.mu.Lock()
		if claimed, ok := s.digestSent[sub.ID]; ok && (sub.LastEmailSent == nil || claimed.After(*sub.LastEmailSent)) {
			sub.LastEmailSent = &claimed
		}
		s.mu.Unlock()
		if eng.alerts.DigestDue(sub, now) {
			due = append(due, sub)
		}
	}
	stats.Due = len(due)

	deals := s.fetchNewDeals(ctx, fetchTimeout, &stats)
	for _, deal := range deals {
		if !deal.Visible() {
			continue
		}
		matches, err := s.matchSubscriptions(ctx, due, deal.Snapshot())
		if err != nil {
			s.logger.Warn("⚠️  Digest matching failed", "deal_id", deal.ID, "error", err.Error())
			continue
		}
		for _, m := range matches {
			// Already covered by an earlier digest
			if last := m.Subscription.LastEmailSent; last != nil && !deal.UpdatedAt.After(*last) {
				continue
			}
			s.digests.Accrue(alerts.Alert{Subscription: m.Subscription, Deal: deal.Snapshot(), Match: m.Result})
		}
	}

	for _, sub := range due {
		batch := s.digests.Drain(sub.ID)
		if len(batch) == 0 {
			continue
		}
		kind := kindDaily
		if sub.Frequency == models.FrequencyWeekly {
			kind = kindWeekly
		}
		if !s.send(ctx, kind, sub, batch, []models.Channel{models.ChannelEmail}) {
			s.digests.Requeue(batch)
			continue
		}
		s.mu.Lock()
		s.digestSent[sub.ID] = now
		s.mu.Unlock()
		stats.Sent++
	}

	if stats.Sent > 0 {
		s.logger.Info("📬 Digests sent", "due", stats.Due, "sent", stats.Sent)
	}
	return stats, nil
}

func (s *MatchService) fetchNewDeals(ctx context.Context, timeout time.Duration, stats *DigestStats) []*models.Deal {
	since := s.lastDigest
	started := s.clock.Now()

	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		deals []*models.Deal
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		deals, err := s.repos.Deals.ListUpdatedSince(fctx, since)
		ch <- result{deals, err}
	}()

	select {
	case <-fctx.Done():
		stats.FetchTimedOut = true
		s.logger.Warn("⏱️  New-deal fetch timed out, treating as no new deals", "timeout", timeout.String())
		return nil
	case r := <-ch:
		if r.err != nil && fctx.Err() != nil {
			stats.FetchTimedOut = true
			s.logger.Warn("⏱️  New-deal fetch timed out, treating as no new deals", "timeout", timeout.String())
			return nil
		}
		if r.err != nil {
			s.logger.Warn("⚠️  New-deal fetch failed, treating as no new deals", "error", r.err.Error())
			return nil
		}
		s.lastDigest = started
		stats.DealsFetched = len(r.deals)
		return r.deals
	}
}

// send records and enqueues one notification per channel. It reports whether
// at least one was queued.
func (s *MatchService) send(ctx context.Context, kind string, sub alerts.Subscription, batch []alerts.Alert, channels []models.Channel) bool {
	queued := false
	for _, ch := range channels {
		n, _ := s.record(ctx, uuid.New(), kind, sub, batch, ch, models.NotificationQueued)
		if s.enqueue(n, kind, batch) {
			queued = true
		}
	}
	return queued
}

// park queues an alert until quiet hours end and records it as deferred
func (s *MatchService) park(ctx context.Context, alert alerts.Alert) {
	for range alert.Channels {
		alert.NotificationIDs = append(alert.NotificationIDs, uuid.New())
	}
	if !s.deferred.Add(alert) {
		return
	}
	for i, ch := range alert.Channels {
		n, ok := s.record(ctx, alert.NotificationIDs[i], kindInstant, alert.Subscription, []alerts.Alert{alert}, ch, models.NotificationDeferred)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.parked[n.ID] = n
		s.mu.Unlock()
	}
}

func (s *MatchService) enqueue(n *models.Notification, kind string, batch []alerts.Alert) bool {
	s.mu.Lock()
	s.inflight[n.ID] = n
	s.mu.Unlock()

	err := s.dispatcher.Enqueue(notify.Message{
		NotificationID: n.ID,
		Recipient:      n.Recipient,
		Channel:        n.Channel,
		Payload:        render(kind, batch),
	})
	// On error the dispatcher has already reported the failure
	return err == nil
}

// record builds and stores a notification. The notification is returned even
// when storing it fails so that delivery can go ahead.
func (s *MatchService) record(ctx context.Context, id uuid.UUID, kind string, sub alerts.Subscription, batch []alerts.Alert, ch models.Channel, status models.NotificationStatus) (*models.Notification, bool) {
	recipient := sub.Prefs.Email
	if ch == models.ChannelSMS {
		recipient = sub.Prefs.Phone
	}
	n := &models.Notification{
		ID:             id,
		SubscriptionID: sub.ID,
		BuyerID:        sub.BuyerID,
		Channel:        ch,
		Recipient:      recipient,
		Kind:           kind,
		Status:         status,
		CreatedAt:      s.clock.Now(),
	}
	for _, a := range batch {
		n.DealIDs = append(n.DealIDs, a.Deal.DealID)
		if a.Match.Score > n.MatchScore {
			n.MatchScore = a.Match.Score
		}
	}
	if status == models.NotificationDeferred && len(batch) > 0 {
		at := batch[0].DeliverAt
		n.DeliverAt = &at
	}
	if err := s.repos.Notifications.Create(ctx, n); err != nil {
		s.logger.Error("Failed to record notification", err, "subscription_id", sub.ID)
		return n, false
	}
	return n, true
}

func render(kind string, batch []alerts.Alert) notify.Payload {
	deals := make([]models.DealSnapshot, len(batch))
	scores := make([]int, len(batch))
	for i, a := range batch {
		deals[i] = a.Deal
		scores[i] = a.Match.Score
	}
	return notify.RenderDeals(kind, deals, scores)
}

// markDelivered updates the notification and the subscription counters
func (s *MatchService) markDelivered(msg notify.Message, at time.Time) {
	s.mu.Lock()
	n, ok := s.inflight[msg.NotificationID]
	delete(s.inflight, msg.NotificationID)
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	sent := at
	n.Status = models.NotificationSent
	n.SentAt = &sent
	if err := s.repos.Notifications.Update(ctx, n); err != nil {
		s.logger.Error("Failed to update notification", err, "notification_id", n.ID)
	}

	if n.Channel != models.ChannelEmail {
		return
	}
	if !s.counters.Record(n.SubscriptionID, n.ID.String(), at) {
		return
	}
	if n.SubscriptionID == n.BuyerID {
		if err := s.repos.Buyers.RecordEmailSent(ctx, n.BuyerID, at); err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
			s.logger.Error("Failed to update buyer counters", err, "buyer_id", n.BuyerID)
		}
		return
	}
	if err := s.repos.Searches.RecordEmailSent(ctx, n.SubscriptionID, at); err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
		s.logger.Error("Failed to update search counters", err, "search_id", n.SubscriptionID)
	}
}

// ReportFailure marks a failed delivery so it can be retried
func (s *MatchService) ReportFailure(ctx context.Context, msg notify.Message, err error) {
	s.mu.Lock()
	n, ok := s.inflight[msg.NotificationID]
	delete(s.inflight, msg.NotificationID)
	s.mu.Unlock()
	if !ok {
		return
	}
	n.Status = models.NotificationFailed
	n.Error = err.Error()
	if uerr := s.repos.Notifications.Update(ctx, n); uerr != nil {
		s.logger.Error("Failed to update notification", uerr, "notification_id", n.ID)
	}
}

// Counters returns the delivery counters of a subscription
func (s *MatchService) Counters(subscriptionID uuid.UUID) alerts.CounterSnapshot {
	return s.counters.Get(subscriptionID)
}

// PendingDeferred is the number of alerts waiting for quiet hours to end
func (s *MatchService) PendingDeferred() int {
	return s.deferred.Len()
}
