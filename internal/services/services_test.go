package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/notify"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	recipient string
	channel   models.Channel
	payload   notify.Payload
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingSender) Send(_ context.Context, recipient string, channel models.Channel, payload notify.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{recipient, channel, payload})
	return nil
}

func (r *recordingSender) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

// blockingDeals stalls ListUpdatedSince until the caller gives up
type blockingDeals struct {
	repository.DealRepository
	block atomic.Bool
}

func (b *blockingDeals) ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Deal, error) {
	if b.block.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.DealRepository.ListUpdatedSince(ctx, since)
}

// flakyNotifications refuses to store deferred notifications while set
type flakyNotifications struct {
	repository.NotificationRepository
	failDeferred atomic.Bool
}

func (f *flakyNotifications) Create(ctx context.Context, n *models.Notification) error {
	if f.failDeferred.Load() && n.Status == models.NotificationDeferred {
		return errors.ExternalFailure("notification store unavailable", nil)
	}
	return f.NotificationRepository.Create(ctx, n)
}

type harness struct {
	svc    *Services
	clock  *clock.Fake
	sender *recordingSender
	cancel context.CancelFunc
}

func newHarness(t *testing.T, start time.Time, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{clock: clock.NewFake(start), sender: &recordingSender{}}
	opts := Options{
		Repositories: repository.NewRepositories(repository.NewMemoryStore()),
		Rules:        config.StaticRules(config.DefaultRules()),
		Sender:       h.sender,
		Clock:        h.clock,
		Logger:       logger.NopLogger{},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.svc = NewServices(opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.svc.Dispatcher.Start(ctx)
	t.Cleanup(h.stop)
	return h
}

// stop drains the dispatcher so every queued message has been delivered
func (h *harness) stop() {
	h.svc.Dispatcher.Stop()
	h.cancel()
}

func (h *harness) observations(n int) []models.SourceObservation {
	names := []string{"county", "listing", "mls"}
	obs := make([]models.SourceObservation, n)
	for i := range obs {
		obs[i] = models.SourceObservation{
			Source:     names[i],
			Accuracy:   0.9,
			Fields:     models.ObservedFields{ARV: models.Dollars(300000), SquareFeet: 1850, YearBuilt: 1978},
			ObservedAt: h.clock.Now().AddDate(0, 0, -10),
		}
	}
	return obs
}

func (h *harness) dealRequest(sources int) CreateDealRequest {
	return CreateDealRequest{
		Location:     models.GeoLocation{Street: "123 Main St", City: "Dallas", State: "TX", PostalCode: "75201"},
		Neighborhood: "Oak Lawn",
		PropertyType: "single-family",
		Repairs:      models.Dollars(25000),
		Observations: h.observations(sources),
	}
}

func sfrCriteria() models.BuyerCriteria {
	return models.BuyerCriteria{
		MinBudget:              models.Dollars(100000),
		MaxBudget:              models.Dollars(200000),
		PropertyTypes:          []models.PropertyType{models.SingleFamily},
		PreferredNeighborhoods: []string{"Oak Lawn"},
		MinROI:                 0.20,
		MinDealQuality:         60,
	}
}

func (h *harness) buyer(t *testing.T, freq models.EmailFrequency, prefs models.NotificationPrefs) *models.Buyer {
	t.Helper()
	b, err := h.svc.Buyers.CreateBuyer(context.Background(), CreateBuyerRequest{
		Name:      "Acme Capital",
		Criteria:  sfrCriteria(),
		Prefs:     prefs,
		Frequency: freq,
	})
	require.NoError(t, err)
	return b
}

// Monday 2024-05-06 10:00 in Chicago
var mondayMorning = time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

func TestCreateDeal_ValuesAndAlertsMatchingBuyer(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	buyer := h.buyer(t, models.FrequencyInstant, models.NotificationPrefs{
		Email: "buyer@example.com", Phone: "+12145550100", SMSOptIn: true,
	})

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)

	deal := out.Deal
	assert.Equal(t, models.MarketKey("dallas-tx"), deal.Market)
	assert.Equal(t, models.HoldNone, deal.HoldStatus)
	assert.False(t, deal.NeedsManualReview)
	require.NotNil(t, deal.Offer)
	assert.Equal(t, models.Dollars(300000), deal.Offer.ARV)
	assert.Equal(t, models.Dollars(126000), deal.Offer.Offer)
	assert.Equal(t, models.BandGreen, deal.Offer.Band)
	assert.Equal(t, 100, deal.QualityScore)
	assert.Equal(t, 1850, deal.Record.SquareFeet)
	assert.Equal(t, 1, deal.Record.Units)

	assert.Equal(t, 1, out.Notified.Matched)
	assert.Equal(t, 1, out.Notified.Sent)

	matches, err := h.svc.Deals.Matches(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, buyer.ID, matches[0].Subscription.ID)
	assert.Equal(t, 100, matches[0].Result.Score)

	h.stop()

	sent := h.sender.messages()
	require.Len(t, sent, 2)
	channels := map[models.Channel]string{}
	for _, m := range sent {
		channels[m.channel] = m.recipient
		assert.Equal(t, []uuid.UUID{deal.ID}, m.payload.DealIDs)
	}
	assert.Equal(t, "buyer@example.com", channels[models.ChannelEmail])
	assert.Equal(t, "+12145550100", channels[models.ChannelSMS])

	counters := h.svc.Matches.Counters(buyer.ID)
	assert.Equal(t, 1, counters.TotalEmailsSent)
	require.NotNil(t, counters.LastEmailSent)

	records, err := h.svc.Repos.Notifications.ListByDeal(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, n := range records {
		assert.Equal(t, models.NotificationSent, n.Status)
		assert.NotNil(t, n.SentAt)
	}
}

func TestCreateDeal_ManualReviewWithheldUntilRelease(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()
	h.buyer(t, models.FrequencyInstant, models.NotificationPrefs{Email: "buyer@example.com"})

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(1))
	require.NoError(t, err)
	assert.True(t, out.Deal.NeedsManualReview)
	assert.False(t, out.Deal.Visible())
	assert.Zero(t, out.Notified.Matched)

	_, err = h.svc.Deals.Matches(ctx, out.Deal.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRuleConflict))

	released, err := h.svc.Deals.Release(ctx, out.Deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldReleased, released.HoldStatus)

	h.stop()
	require.Len(t, h.sender.messages(), 1)
}

func TestCreateDeal_RequiresAValue(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	req := h.dealRequest(0)
	req.Observations = nil

	_, err := h.svc.Deals.CreateDeal(context.Background(), req)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInsufficientData))
}

func TestCreateDeal_RejectsUnknownTypeAndMarket(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	req := h.dealRequest(3)
	req.PropertyType = "castle"
	_, err := h.svc.Deals.CreateDeal(ctx, req)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	req = h.dealRequest(3)
	req.Location = models.GeoLocation{Street: "1 Pike St", City: "Seattle", State: "WA", PostalCode: "98101"}
	_, err = h.svc.Deals.CreateDeal(ctx, req)
	assert.Error(t, err)
}

func TestCreateDeal_IncomeProperty(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)

	req := h.dealRequest(3)
	req.PropertyType = "multi-family-2-4"
	req.Units = 4
	req.Rents = []models.Money{models.Dollars(1200), models.Dollars(1200), models.Dollars(1250), models.Dollars(1300)}
	for i := range req.Observations {
		req.Observations[i].Fields.Units = 4
	}

	out, err := h.svc.Deals.CreateDeal(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, out.Deal.Income)
	assert.Nil(t, out.Deal.Offer)
	assert.Equal(t, models.Dollars(4950), out.Deal.Income.MonthlyGRI)
	assert.Equal(t, out.Deal.Income.QualityScore, out.Deal.QualityScore)

	req.Rents = req.Rents[:3]
	_, err = h.svc.Deals.CreateDeal(context.Background(), req)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestNotifyDeal_QuietHoursDeferUntilWindowEnds(t *testing.T) {
	// 23:00 in Chicago
	h := newHarness(t, time.Date(2024, 5, 7, 4, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()
	buyer := h.buyer(t, models.FrequencyInstant, models.NotificationPrefs{
		Email:             "night@example.com",
		QuietHoursEnabled: true,
		QuietStart:        "22:00",
		QuietEnd:          "07:00",
		TimeZone:          "America/Chicago",
	})

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Notified.Deferred)
	assert.Equal(t, 1, h.svc.Matches.PendingDeferred())

	records, err := h.svc.Repos.Notifications.ListByDeal(ctx, out.Deal.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationDeferred, records[0].Status)

	assert.Zero(t, h.svc.Matches.DeliverDeferred(ctx))

	// Re-notifying the same deal does not queue a second alert
	_, err = h.svc.Matches.NotifyDeal(ctx, out.Deal)
	require.NoError(t, err)
	assert.Equal(t, 1, h.svc.Matches.PendingDeferred())

	h.clock.Advance(8 * time.Hour) // 07:00 in Chicago
	assert.Equal(t, 1, h.svc.Matches.DeliverDeferred(ctx))
	assert.Zero(t, h.svc.Matches.DeliverDeferred(ctx))

	h.stop()
	sent := h.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "night@example.com", sent[0].recipient)
	assert.Equal(t, 1, h.svc.Matches.Counters(buyer.ID).TotalEmailsSent)
}

func nightOwl(t *testing.T, h *harness) *models.Buyer {
	t.Helper()
	return h.buyer(t, models.FrequencyInstant, models.NotificationPrefs{
		Email:             "night@example.com",
		QuietHoursEnabled: true,
		QuietStart:        "22:00",
		QuietEnd:          "07:00",
		TimeZone:          "America/Chicago",
	})
}

// 23:00 in Chicago
var chicagoNight = time.Date(2024, 5, 7, 4, 0, 0, 0, time.UTC)

func TestNotifyDeal_DeferredAlertNotResentAfterReRelease(t *testing.T) {
	h := newHarness(t, chicagoNight, nil)
	ctx := context.Background()
	buyer := nightOwl(t, h)

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	require.Equal(t, 1, out.Notified.Deferred)

	// Quiet hours are over but the sweep has not run yet
	h.clock.Advance(8*time.Hour + 30*time.Second)
	_, err = h.svc.Deals.Hold(ctx, out.Deal.ID, "second look")
	require.NoError(t, err)
	_, err = h.svc.Deals.Release(ctx, out.Deal.ID)
	require.NoError(t, err)
	assert.Zero(t, h.svc.Matches.PendingDeferred())

	assert.Zero(t, h.svc.Matches.DeliverDeferred(ctx))

	// A further re-release does not alert the same buyer again
	_, err = h.svc.Deals.Hold(ctx, out.Deal.ID, "third look")
	require.NoError(t, err)
	_, err = h.svc.Deals.Release(ctx, out.Deal.ID)
	require.NoError(t, err)

	h.stop()
	require.Len(t, h.sender.messages(), 1)
	assert.Equal(t, 1, h.svc.Matches.Counters(buyer.ID).TotalEmailsSent)

	records, err := h.svc.Repos.Notifications.ListByDeal(ctx, out.Deal.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationSent, records[0].Status)
}

func TestRestore_RedeliversDeferredAlertsAfterRestart(t *testing.T) {
	first := newHarness(t, chicagoNight, nil)
	ctx := context.Background()
	buyer := nightOwl(t, first)

	out, err := first.svc.Deals.CreateDeal(ctx, first.dealRequest(3))
	require.NoError(t, err)
	require.Equal(t, 1, out.Notified.Deferred)
	first.stop()

	restarted := newHarness(t, chicagoNight.Add(time.Minute), func(o *Options) {
		o.Repositories = first.svc.Repos
	})
	restored, err := restarted.svc.Matches.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 1, restarted.svc.Matches.PendingDeferred())
	assert.Zero(t, restarted.svc.Matches.DeliverDeferred(ctx))

	restarted.clock.Advance(8 * time.Hour)
	assert.Equal(t, 1, restarted.svc.Matches.DeliverDeferred(ctx))

	// Restoring twice does not queue it again
	restored, err = restarted.svc.Matches.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, restored)

	restarted.stop()
	assert.Empty(t, first.sender.messages())
	sent := restarted.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "night@example.com", sent[0].recipient)

	records, err := restarted.svc.Repos.Notifications.ListByDeal(ctx, out.Deal.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationSent, records[0].Status)

	stored, err := restarted.svc.Repos.Buyers.Get(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalEmailsSent)
	assert.NotNil(t, stored.LastEmailSent)
}

func TestDeliverDeferred_SendsWhenTheDeferredRecordWasLost(t *testing.T) {
	var notes *flakyNotifications
	h := newHarness(t, chicagoNight, func(o *Options) {
		notes = &flakyNotifications{NotificationRepository: o.Repositories.Notifications}
		notes.failDeferred.Store(true)
		o.Repositories.Notifications = notes
	})
	ctx := context.Background()
	nightOwl(t, h)

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	require.Equal(t, 1, out.Notified.Deferred)

	h.clock.Advance(8 * time.Hour)
	assert.Equal(t, 1, h.svc.Matches.DeliverDeferred(ctx))

	h.stop()
	require.Len(t, h.sender.messages(), 1)
	records, err := h.svc.Repos.Notifications.ListByDeal(ctx, out.Deal.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotificationSent, records[0].Status)
}

func TestRunDigests_NotRepeatedAfterRestart(t *testing.T) {
	// 07:00 in Chicago, before the digest hour
	first := newHarness(t, time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()
	buyer := first.buyer(t, models.FrequencyDaily, models.NotificationPrefs{Email: "digest@example.com"})

	_, err := first.svc.Deals.CreateDeal(ctx, first.dealRequest(3))
	require.NoError(t, err)
	first.clock.Advance(2 * time.Hour)
	stats, err := first.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sent)
	first.stop()

	stored, err := first.svc.Repos.Buyers.Get(ctx, buyer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastEmailSent)

	// Same day: the persisted counters say the digest already went out
	sameDay := newHarness(t, first.clock.Now().Add(time.Hour), func(o *Options) {
		o.Repositories = first.svc.Repos
	})
	_, err = sameDay.svc.Matches.Restore(ctx)
	require.NoError(t, err)
	stats, err = sameDay.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
	sameDay.stop()
	assert.Empty(t, sameDay.sender.messages())

	// Next day: the look-back refetches the deal but it was already in a digest
	nextDay := newHarness(t, first.clock.Now().Add(24*time.Hour), func(o *Options) {
		o.Repositories = first.svc.Repos
	})
	_, err = nextDay.svc.Matches.Restore(ctx)
	require.NoError(t, err)
	stats, err = nextDay.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.DealsFetched)
	assert.Zero(t, stats.Sent)
	nextDay.stop()
	assert.Empty(t, nextDay.sender.messages())
}

func TestRunDigests_SendsOncePerLocalDay(t *testing.T) {
	// 07:00 in Chicago, before the digest hour
	h := newHarness(t, time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()
	buyer := h.buyer(t, models.FrequencyDaily, models.NotificationPrefs{Email: "digest@example.com"})

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Notified.Batched)

	stats, err := h.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)

	h.clock.Advance(2 * time.Hour)
	stats, err = h.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Sent)

	h.clock.Advance(time.Hour)
	stats, err = h.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)

	h.stop()
	sent := h.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, kindDaily, sent[0].payload.Kind)
	assert.Equal(t, models.ChannelEmail, sent[0].channel)
	assert.Equal(t, 1, h.svc.Matches.Counters(buyer.ID).TotalEmailsSent)
}

func TestRunDigests_FetchTimeoutIsAnEmptyCycle(t *testing.T) {
	var deals *blockingDeals
	h := newHarness(t, time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC), func(o *Options) {
		deals = &blockingDeals{DealRepository: o.Repositories.Deals}
		o.Repositories.Deals = deals
	})
	ctx := context.Background()

	// Created before the buyer exists, so only the digest fetch can find it
	h.clock.Advance(time.Minute)
	_, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	h.buyer(t, models.FrequencyDaily, models.NotificationPrefs{Email: "digest@example.com"})

	deals.block.Store(true)
	stats, err := h.svc.Matches.RunDigests(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, stats.FetchTimedOut)
	assert.Equal(t, 1, stats.Due)
	assert.Zero(t, stats.Sent)

	deals.block.Store(false)
	stats, err = h.svc.Matches.RunDigests(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, stats.FetchTimedOut)
	assert.Equal(t, 1, stats.DealsFetched)
	assert.Equal(t, 1, stats.Sent)

	h.stop()
	assert.Len(t, h.sender.messages(), 1)
}

func TestSavedSearch_CountersPersisted(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	buyer := h.buyer(t, models.FrequencyWeekly, models.NotificationPrefs{Email: "owner@example.com"})
	search, err := h.svc.Buyers.CreateSearch(ctx, CreateSearchRequest{
		BuyerID:   buyer.ID,
		Criteria:  sfrCriteria(),
		Frequency: models.FrequencyInstant,
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Capital search", search.Name)
	assert.Equal(t, "owner@example.com", search.Prefs.Email)

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Notified.Matched)
	assert.Equal(t, 1, out.Notified.Sent)
	assert.Equal(t, 1, out.Notified.Batched)

	h.stop()
	stored, err := h.svc.Repos.Searches.Get(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalEmailsSent)
	assert.NotNil(t, stored.LastEmailSent)
}

func TestAutoHold_SweepReleasesAndAlerts(t *testing.T) {
	h := newHarness(t, mondayMorning, func(o *Options) {
		rules := config.DefaultRules()
		rules.AutoHold.MinARV = 250000
		o.Rules = config.StaticRules(rules)
	})
	ctx := context.Background()
	h.buyer(t, models.FrequencyInstant, models.NotificationPrefs{Email: "buyer@example.com"})

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	assert.Equal(t, models.HoldActive, out.Deal.HoldStatus)
	assert.True(t, out.Hold.ShouldHold)
	assert.Zero(t, out.Notified.Matched)

	scheduler := NewScheduler(h.svc, SchedulerConfig{}, h.clock, logger.NopLogger{})
	stats, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Released)

	h.clock.Advance(49 * time.Hour)
	stats, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Released)

	deal, err := h.svc.Deals.GetDeal(ctx, out.Deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldReleased, deal.HoldStatus)

	status := scheduler.GetStatus()
	assert.False(t, status.IsRunning)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, 1, status.LastCycle.Released)

	h.stop()
	assert.Len(t, h.sender.messages(), 1)
}

func TestSelfPurchase_IsTerminal(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)

	deal, err := h.svc.Deals.SelfPurchase(ctx, out.Deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldSelfPurchase, deal.HoldStatus)

	_, err = h.svc.Deals.Release(ctx, out.Deal.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRuleConflict))

	_, err = h.svc.Deals.Hold(ctx, out.Deal.ID, "second look")
	assert.Error(t, err)
}

func TestRecheck_KeepsAdminStatus(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	_, err = h.svc.Deals.Hold(ctx, out.Deal.ID, "inspection")
	require.NoError(t, err)

	// Without a collector the recheck has nothing to verify against
	_, err = h.svc.Deals.Recheck(ctx, out.Deal.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInsufficientData))

	deal, err := h.svc.Deals.GetDeal(ctx, out.Deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldActive, deal.HoldStatus)
}

func TestRulesReload_RebuildsEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alerts:\n  digest_hour: 8\n"), 0o644))

	provider, err := config.NewRulesProvider(path, logger.NopLogger{})
	require.NoError(t, err)

	h := newHarness(t, mondayMorning, func(o *Options) { o.Rules = provider })
	ctx := context.Background()

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	assert.Equal(t, models.HoldNone, out.Deal.HoldStatus)

	require.NoError(t, os.WriteFile(path, []byte("auto_hold:\n  min_arv: 250000\n"), 0o644))
	require.NoError(t, provider.Reload())
	assert.Equal(t, int64(250000), h.svc.CurrentRules().AutoHold.MinARV)

	out, err = h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)
	assert.Equal(t, models.HoldActive, out.Deal.HoldStatus)

	// An invalid file keeps the previous snapshot
	require.NoError(t, os.WriteFile(path, []byte("offer:\n  arv_multiplier: 2\n"), 0o644))
	assert.Error(t, provider.Reload())
	assert.Equal(t, int64(250000), h.svc.CurrentRules().AutoHold.MinARV)
}

func TestLeadService_ScoresAndRoutes(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	hot, err := h.svc.Leads.Submit(ctx, models.Lead{
		Name: "Pat Seller", Email: "pat@example.com", Phone: "+12145550111",
		Address: "9 Elm St, Dallas, TX", Timeline: "ASAP", Units: 12, Equity: "high", Condition: "poor",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, hot.Score.Score)
	assert.Equal(t, models.PriorityImmediate, hot.Priority)

	stored, err := h.svc.Leads.Get(ctx, hot.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, hot.Score, stored.Score)

	cold := h.svc.Leads.Score(models.Lead{Name: "Sam", Timeline: "exploring", Equity: "none"})
	assert.Equal(t, 5, cold.Score.Score)
	assert.Equal(t, models.PriorityNurture, cold.Priority)

	_, err = h.svc.Leads.Submit(ctx, models.Lead{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestRoute(t *testing.T) {
	rules := config.DefaultRules().Lead
	tests := []struct {
		score int
		want  models.LeadPriority
	}{
		{100, models.PriorityImmediate},
		{70, models.PriorityImmediate},
		{69, models.PriorityDelayed},
		{40, models.PriorityDelayed},
		{39, models.PriorityNurture},
		{0, models.PriorityNurture},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Route(tt.score, rules), "score %d", tt.score)
	}
}

func TestBuyerService_Validation(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()

	bad := sfrCriteria()
	bad.MinBudget = models.Dollars(500000)
	_, err := h.svc.Buyers.CreateBuyer(ctx, CreateBuyerRequest{Name: "x", Criteria: bad})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = h.svc.Buyers.CreateBuyer(ctx, CreateBuyerRequest{Name: "x", Frequency: "hourly"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = h.svc.Buyers.CreateBuyer(ctx, CreateBuyerRequest{Name: "x", Prefs: models.NotificationPrefs{
		QuietHoursEnabled: true, QuietStart: "25:00", QuietEnd: "07:00",
	}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = h.svc.Buyers.CreateSearch(ctx, CreateSearchRequest{BuyerID: uuid.New()})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestBuyerService_BidsFeedHistory(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	ctx := context.Background()
	buyer := h.buyer(t, models.FrequencyDaily, models.NotificationPrefs{Email: "buyer@example.com"})

	out, err := h.svc.Deals.CreateDeal(ctx, h.dealRequest(3))
	require.NoError(t, err)

	_, err = h.svc.Buyers.PlaceBid(ctx, PlaceBidRequest{BuyerID: buyer.ID, DealID: uuid.New(), Amount: models.Dollars(1)})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	bid, err := h.svc.Buyers.PlaceBid(ctx, PlaceBidRequest{BuyerID: buyer.ID, DealID: out.Deal.ID, Amount: models.Dollars(140000), Won: true})
	require.NoError(t, err)
	assert.Equal(t, models.SingleFamily, bid.PropertyType)

	history, err := h.svc.Buyers.History(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, history.Bids, 1)

	matches, err := h.svc.Deals.Matches(ctx, out.Deal.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 10, matches[0].Result.Breakdown["affinity"])
}

func TestScheduler_StartStop(t *testing.T) {
	h := newHarness(t, mondayMorning, nil)
	s := NewScheduler(h.svc, SchedulerConfig{SweepInterval: time.Hour, DigestInterval: time.Hour}, h.clock, logger.NopLogger{})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop())
}
