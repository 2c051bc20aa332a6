package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func instantSub() Subscription {
	return Subscription{
		ID:        uuid.New(),
		BuyerID:   uuid.New(),
		Kind:      KindBuyer,
		Frequency: models.FrequencyInstant,
		Active:    true,
		Prefs: models.NotificationPrefs{
			Email:             "buyer@example.com",
			Phone:             "+12145550100",
			SMSOptIn:          true,
			QuietHoursEnabled: true,
			QuietStart:        "21:00",
			QuietEnd:          "07:00",
			TimeZone:          "America/Chicago",
		},
	}
}

func TestParseQuietHours(t *testing.T) {
	q, err := ParseQuietHours(models.NotificationPrefs{QuietHoursEnabled: false}, "UTC")
	require.NoError(t, err)
	assert.Nil(t, q)

	q, err = ParseQuietHours(models.NotificationPrefs{QuietHoursEnabled: true, QuietStart: "09:00", QuietEnd: "09:00"}, "UTC")
	require.NoError(t, err)
	assert.Nil(t, q, "empty window disables quiet hours")

	for _, bad := range []string{"9", "24:00", "12:60", "ab:cd", ""} {
		_, err = ParseQuietHours(models.NotificationPrefs{QuietHoursEnabled: true, QuietStart: bad, QuietEnd: "07:00"}, "UTC")
		assert.Error(t, err, bad)
	}

	_, err = ParseQuietHours(models.NotificationPrefs{QuietHoursEnabled: true, QuietStart: "21:00", QuietEnd: "07:00", TimeZone: "Mars/Olympus"}, "UTC")
	assert.Error(t, err)
}

func TestQuietHours_SpansMidnight(t *testing.T) {
	loc := chicago(t)
	q, err := ParseQuietHours(instantSub().Prefs, "UTC")
	require.NoError(t, err)

	tests := []struct {
		name   string
		at     time.Time
		inside bool
		end    time.Time
	}{
		{"before window", time.Date(2024, 5, 1, 20, 59, 0, 0, loc), false, time.Time{}},
		{"window opens", time.Date(2024, 5, 1, 21, 0, 0, 0, loc), true, time.Date(2024, 5, 2, 7, 0, 0, 0, loc)},
		{"late evening", time.Date(2024, 5, 1, 23, 30, 0, 0, loc), true, time.Date(2024, 5, 2, 7, 0, 0, 0, loc)},
		{"after midnight", time.Date(2024, 5, 2, 3, 0, 0, 0, loc), true, time.Date(2024, 5, 2, 7, 0, 0, 0, loc)},
		{"window closes", time.Date(2024, 5, 2, 7, 0, 0, 0, loc), false, time.Time{}},
		{"midday", time.Date(2024, 5, 2, 12, 0, 0, 0, loc), false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inside, end := q.Contains(tt.at)
			assert.Equal(t, tt.inside, inside)
			if tt.inside {
				assert.True(t, tt.end.Equal(end), "end %s, want %s", end, tt.end)
			}
		})
	}
}

func TestQuietHours_SameDayWindow(t *testing.T) {
	q, err := ParseQuietHours(models.NotificationPrefs{QuietHoursEnabled: true, QuietStart: "12:00", QuietEnd: "13:30"}, "UTC")
	require.NoError(t, err)

	inside, end := q.Contains(time.Date(2024, 5, 1, 12, 45, 0, 0, time.UTC))
	assert.True(t, inside)
	assert.Equal(t, time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC), end)

	inside, _ = q.Contains(time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC))
	assert.False(t, inside)
}

func TestScheduler_Decide(t *testing.T) {
	loc := chicago(t)
	s := NewScheduler(config.DefaultRules().Alerts)
	noon := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)
	night := time.Date(2024, 5, 1, 22, 0, 0, 0, loc)

	sub := instantSub()

	d := s.Decide(sub, models.MatchResult{Score: 49}, noon)
	assert.Equal(t, ActionSkip, d.Action)

	d = s.Decide(sub, models.MatchResult{Score: 60}, noon)
	assert.Equal(t, ActionSend, d.Action)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, d.Channels)

	d = s.Decide(sub, models.MatchResult{Score: 85}, noon)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, d.Channels)

	d = s.Decide(sub, models.MatchResult{Score: 85}, night)
	assert.Equal(t, ActionDefer, d.Action)
	assert.True(t, d.DeliverAt.Equal(time.Date(2024, 5, 2, 7, 0, 0, 0, loc)))

	noSMS := sub
	noSMS.Prefs.SMSOptIn = false
	d = s.Decide(noSMS, models.MatchResult{Score: 95}, noon)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, d.Channels)

	daily := sub
	daily.Frequency = models.FrequencyDaily
	d = s.Decide(daily, models.MatchResult{Score: 70}, night)
	assert.Equal(t, ActionBatch, d.Action)

	inactive := sub
	inactive.Active = false
	assert.Equal(t, ActionSkip, s.Decide(inactive, models.MatchResult{Score: 99}, noon).Action)

	broken := sub
	broken.Prefs.QuietStart = "late"
	d = s.Decide(broken, models.MatchResult{Score: 60}, night)
	assert.Equal(t, ActionSend, d.Action, "malformed quiet hours never suppress an alert")
}

func TestScheduler_DigestDue(t *testing.T) {
	loc := chicago(t)
	s := NewScheduler(config.DefaultRules().Alerts)

	sub := instantSub()
	sub.Frequency = models.FrequencyDaily

	// Wednesday 2024-05-01
	early := time.Date(2024, 5, 1, 7, 59, 0, 0, loc)
	morning := time.Date(2024, 5, 1, 8, 0, 0, 0, loc)
	assert.False(t, s.DigestDue(sub, early))
	assert.True(t, s.DigestDue(sub, morning))

	sent := morning.Add(5 * time.Minute)
	sub.LastEmailSent = &sent
	assert.False(t, s.DigestDue(sub, morning.Add(10*time.Hour)), "one digest per day")
	assert.True(t, s.DigestDue(sub, morning.Add(24*time.Hour)))

	weekly := instantSub()
	weekly.Frequency = models.FrequencyWeekly
	monday := time.Date(2024, 5, 6, 9, 0, 0, 0, loc)
	assert.False(t, s.DigestDue(weekly, morning))
	assert.True(t, s.DigestDue(weekly, monday))

	lastMonday := monday.AddDate(0, 0, -7)
	weekly.LastEmailSent = &lastMonday
	assert.True(t, s.DigestDue(weekly, monday))
	sameDay := monday.Add(-time.Hour)
	weekly.LastEmailSent = &sameDay
	assert.False(t, s.DigestDue(weekly, monday))

	instant := instantSub()
	assert.False(t, s.DigestDue(instant, morning))
}

func TestValidatePrefs(t *testing.T) {
	assert.NoError(t, ValidatePrefs(instantSub().Prefs))
	assert.Error(t, ValidatePrefs(models.NotificationPrefs{TimeZone: "Nowhere/Land"}))
	assert.Error(t, ValidatePrefs(models.NotificationPrefs{QuietHoursEnabled: true, QuietStart: "25:00", QuietEnd: "07:00"}))
}

func TestDeferredQueue_DeliversExactlyOnce(t *testing.T) {
	loc := chicago(t)
	s := NewScheduler(config.DefaultRules().Alerts)
	q := NewDeferredQueue(72 * time.Hour)

	sub := instantSub()
	deal := models.DealSnapshot{DealID: uuid.New()}
	night := time.Date(2024, 5, 1, 22, 0, 0, 0, loc)

	d := s.Decide(sub, models.MatchResult{Score: 90}, night)
	require.Equal(t, ActionDefer, d.Action)

	alert := Alert{Subscription: sub, Deal: deal, Match: models.MatchResult{Score: 90}, Channels: d.Channels, DeliverAt: d.DeliverAt}
	assert.True(t, q.Add(alert))
	assert.False(t, q.Add(alert), "duplicate while pending")

	assert.Empty(t, q.ClaimDue(night.Add(time.Hour)))

	morning := d.DeliverAt
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := q.ClaimDue(morning)
			mu.Lock()
			total += len(got)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, q.Len())

	assert.False(t, q.Add(alert), "already delivered")
	assert.Empty(t, q.ClaimDue(morning.Add(time.Hour)))
}

func TestDeferredQueue_TakeAndMarkSent(t *testing.T) {
	q := NewDeferredQueue(72 * time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	alert := Alert{Subscription: instantSub(), Deal: models.DealSnapshot{DealID: uuid.New()}, DeliverAt: now.Add(time.Hour)}
	require.True(t, q.Add(alert))
	assert.False(t, q.MarkSent(alert.Key(), now), "pending alert is not sent twice")

	got, ok := q.Take(alert.Key(), now)
	require.True(t, ok)
	assert.Equal(t, alert.Key(), got.Key())
	assert.Equal(t, 0, q.Len())

	_, ok = q.Take(alert.Key(), now)
	assert.False(t, ok)
	assert.Empty(t, q.ClaimDue(now.Add(2*time.Hour)))
	assert.False(t, q.Add(alert))
	assert.False(t, q.MarkSent(alert.Key(), now))

	other := Alert{Subscription: instantSub(), Deal: alert.Deal}
	assert.True(t, q.MarkSent(other.Key(), now))
	assert.False(t, q.MarkSent(other.Key(), now))
	assert.False(t, q.Add(other), "sent alert is never deferred afterwards")
}

func TestDigestQueue_AccrueAndDrain(t *testing.T) {
	q := NewDigestQueue()
	sub := instantSub()
	a, b := uuid.New(), uuid.New()

	q.Accrue(Alert{Subscription: sub, Deal: models.DealSnapshot{DealID: a}, Match: models.MatchResult{Score: 55}})
	q.Accrue(Alert{Subscription: sub, Deal: models.DealSnapshot{DealID: b}, Match: models.MatchResult{Score: 70}})
	q.Accrue(Alert{Subscription: sub, Deal: models.DealSnapshot{DealID: a}, Match: models.MatchResult{Score: 80}})
	assert.Equal(t, 2, q.Pending(sub.ID))

	batch := q.Drain(sub.ID)
	require.Len(t, batch, 2)
	assert.Equal(t, a, batch[0].Deal.DealID)
	assert.Equal(t, 80, batch[0].Match.Score)
	assert.Empty(t, q.Drain(sub.ID))

	q.Requeue(batch)
	assert.Equal(t, 2, q.Pending(sub.ID))
}

func TestCounters_RecordOncePerDelivery(t *testing.T) {
	c := NewCounters(time.Hour)
	sub := uuid.New()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	assert.True(t, c.Record(sub, "digest:1", at))
	assert.False(t, c.Record(sub, "digest:1", at.Add(time.Minute)))
	assert.True(t, c.Record(sub, "digest:2", at.Add(time.Hour)))

	snap := c.Get(sub)
	assert.Equal(t, 2, snap.TotalEmailsSent)
	require.NotNil(t, snap.LastEmailSent)
	assert.Equal(t, at.Add(time.Hour), *snap.LastEmailSent)
}
