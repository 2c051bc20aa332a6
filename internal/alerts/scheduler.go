package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/google/uuid"
)

// SubscriptionKind tells whether a subscription is a buyer profile or a
// standalone saved search
type SubscriptionKind string

const (
	KindBuyer  SubscriptionKind = "buyer"
	KindSearch SubscriptionKind = "saved_search"
)

// Subscription is anything that receives deal alerts
type Subscription struct {
	ID            uuid.UUID                `json:"id"`
	BuyerID       uuid.UUID                `json:"buyer_id"`
	Kind          SubscriptionKind         `json:"kind"`
	Name          string                   `json:"name"`
	Criteria      models.BuyerCriteria     `json:"criteria"`
	Prefs         models.NotificationPrefs `json:"prefs"`
	Frequency     models.EmailFrequency    `json:"frequency"`
	Active        bool                     `json:"active"`
	LastEmailSent *time.Time               `json:"last_email_sent,omitempty"`
}

// FromBuyer adapts a buyer profile
func FromBuyer(b *models.Buyer) Subscription {
	return Subscription{
		ID:            b.ID,
		BuyerID:       b.ID,
		Kind:          KindBuyer,
		Name:          b.Name,
		Criteria:      b.Criteria,
		Prefs:         b.Prefs,
		Frequency:     b.Frequency,
		Active:        b.Active,
		LastEmailSent: b.LastEmailSent,
	}
}

// FromSearch adapts a saved search
func FromSearch(s *models.SavedSearch) Subscription {
	return Subscription{
		ID:            s.ID,
		BuyerID:       s.BuyerID,
		Kind:          KindSearch,
		Name:          s.Name,
		Criteria:      s.Criteria,
		Prefs:         s.Prefs,
		Frequency:     s.EmailFrequency,
		Active:        s.Active,
		LastEmailSent: s.LastEmailSent,
	}
}

// Action is what to do with one match
type Action string

const (
	ActionSkip  Action = "skip"
	ActionSend  Action = "send"
	ActionDefer Action = "defer"
	ActionBatch Action = "batch"
)

// Decision is the eligibility and timing of one alert
type Decision struct {
	Action    Action           `json:"action"`
	Channels  []models.Channel `json:"channels,omitempty"`
	DeliverAt time.Time        `json:"deliver_at"`
	Reason    string           `json:"reason"`
}

// Scheduler decides whether and when a matched subscription is notified
type Scheduler struct {
	rules config.AlertRules
}

// NewScheduler creates a scheduler for one rules snapshot
func NewScheduler(rules config.AlertRules) *Scheduler {
	return &Scheduler{rules: rules}
}

// Decide applies frequency tier, score threshold, channel choice and quiet hours
func (s *Scheduler) Decide(sub Subscription, match models.MatchResult, now time.Time) Decision {
	if !sub.Active {
		return Decision{Action: ActionSkip, Reason: "subscription inactive"}
	}
	if match.Score < s.rules.InstantMinScore {
		return Decision{Action: ActionSkip, Reason: fmt.Sprintf("match score %d below %d", match.Score, s.rules.InstantMinScore)}
	}

	switch sub.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly:
		return Decision{Action: ActionBatch, Channels: []models.Channel{models.ChannelEmail}, Reason: string(sub.Frequency) + " digest"}
	}

	channels := s.Channels(sub.Prefs, match.Score)
	if len(channels) == 0 {
		return Decision{Action: ActionSkip, Reason: "no contact channel"}
	}

	quiet, err := ParseQuietHours(sub.Prefs, s.rules.DefaultTimeZone)
	if err != nil {
		// Malformed windows are rejected at signup; never drop the alert here
		quiet = nil
	}
	if in, end := quiet.Contains(now); in {
		return Decision{Action: ActionDefer, Channels: channels, DeliverAt: end, Reason: "quiet hours"}
	}
	return Decision{Action: ActionSend, Channels: channels, DeliverAt: now, Reason: "instant"}
}

// Channels returns email plus SMS for high matches when the buyer opted in
func (s *Scheduler) Channels(p models.NotificationPrefs, score int) []models.Channel {
	var out []models.Channel
	if strings.TrimSpace(p.Email) != "" {
		out = append(out, models.ChannelEmail)
	}
	if score >= s.rules.SMSMinScore && p.SMSOptIn && strings.TrimSpace(p.Phone) != "" {
		out = append(out, models.ChannelSMS)
	}
	return out
}

// DigestDue reports whether a daily or weekly digest should go out now.
// At most one digest goes out per local day, never before DigestHour.
func (s *Scheduler) DigestDue(sub Subscription, now time.Time) bool {
	if !sub.Active {
		return false
	}
	loc := s.location(sub.Prefs)
	local := now.In(loc)
	if local.Hour() < s.rules.DigestHour {
		return false
	}

	var last time.Time
	if sub.LastEmailSent != nil {
		last = sub.LastEmailSent.In(loc)
	}
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch sub.Frequency {
	case models.FrequencyDaily:
		return last.IsZero() || last.Before(today)
	case models.FrequencyWeekly:
		if !strings.EqualFold(local.Weekday().String(), s.rules.WeeklyDigestDay) {
			return false
		}
		return last.IsZero() || last.Before(today.AddDate(0, 0, -6))
	}
	return false
}

func (s *Scheduler) location(p models.NotificationPrefs) *time.Location {
	for _, zone := range []string{p.TimeZone, s.rules.DefaultTimeZone} {
		if zone == "" {
			continue
		}
		if loc, err := time.LoadLocation(zone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// ValidatePrefs checks a quiet-hours window and time zone
func ValidatePrefs(p models.NotificationPrefs) error {
	if p.TimeZone != "" {
		if _, err := time.LoadLocation(p.TimeZone); err != nil {
			return fmt.Errorf("time zone %q: %w", p.TimeZone, err)
		}
	}
	_, err := ParseQuietHours(p, "UTC")
	return err
}
