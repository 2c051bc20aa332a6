package models

import (
	"time"

	"github.com/google/uuid"
)

// BuyerCriteria describes what an investor is looking for
type BuyerCriteria struct {
	MinBudget              Money          `json:"min_budget"`
	MaxBudget              Money          `json:"max_budget"`
	PropertyTypes          []PropertyType `json:"property_types"`
	PreferredNeighborhoods []string       `json:"preferred_neighborhoods,omitempty"`
	AvoidedNeighborhoods   []string       `json:"avoided_neighborhoods,omitempty"`
	MinROI                 float64        `json:"min_roi"`
	MinCapRate             float64        `json:"min_cap_rate"`
	MinDealQuality         int            `json:"min_deal_quality"`
	MaxRepairs             Money          `json:"max_repairs"`
}

// AcceptsType reports whether t is one of the accepted property types
func (c BuyerCriteria) AcceptsType(t PropertyType) bool {
	for _, pt := range c.PropertyTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// EmailFrequency controls how often a subscription is notified
type EmailFrequency string

const (
	FrequencyInstant EmailFrequency = "instant"
	FrequencyDaily   EmailFrequency = "daily"
	FrequencyWeekly  EmailFrequency = "weekly"
)

// Valid reports whether f is a known frequency
func (f EmailFrequency) Valid() bool {
	return f == FrequencyInstant || f == FrequencyDaily || f == FrequencyWeekly
}

// NotificationPrefs are a buyer's delivery preferences
type NotificationPrefs struct {
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	SMSOptIn          bool   `json:"sms_opt_in"`
	QuietHoursEnabled bool   `json:"quiet_hours_enabled"`
	QuietStart        string `json:"quiet_start,omitempty"` // "22:00"
	QuietEnd          string `json:"quiet_end,omitempty"`   // "07:00"
	TimeZone          string `json:"time_zone,omitempty"`
}

// Buyer is an investor profile
type Buyer struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Criteria        BuyerCriteria     `json:"criteria"`
	Prefs           NotificationPrefs `json:"notification_prefs"`
	Frequency       EmailFrequency    `json:"email_frequency"`
	Active          bool              `json:"active"`
	LastEmailSent   *time.Time        `json:"last_email_sent,omitempty"`
	TotalEmailsSent int               `json:"total_emails_sent"`
	CreatedAt       time.Time         `json:"created_at"`
}

// SavedSearch is a standalone criteria set with its own delivery cadence
type SavedSearch struct {
	ID              uuid.UUID         `json:"id"`
	BuyerID         uuid.UUID         `json:"buyer_id"`
	Name            string            `json:"name"`
	Criteria        BuyerCriteria     `json:"criteria"`
	Prefs           NotificationPrefs `json:"notification_prefs"`
	EmailFrequency  EmailFrequency    `json:"email_frequency"`
	Active          bool              `json:"active"`
	LastEmailSent   *time.Time        `json:"last_email_sent,omitempty"`
	TotalEmailsSent int               `json:"total_emails_sent"`
	CreatedAt       time.Time         `json:"created_at"`
}

// BidRecord is one historical bid by a buyer
type BidRecord struct {
	ID           uuid.UUID    `json:"id"`
	BuyerID      uuid.UUID    `json:"buyer_id"`
	DealID       uuid.UUID    `json:"deal_id"`
	PropertyType PropertyType `json:"property_type"`
	Amount       Money        `json:"amount"`
	Won          bool         `json:"won"`
	PlacedAt     time.Time    `json:"placed_at"`
}

// BuyerHistory is the bid history used for behavioral affinity
type BuyerHistory struct {
	Bids []BidRecord `json:"bids"`
}

// Empty reports whether the buyer has never bid
func (h BuyerHistory) Empty() bool {
	return len(h.Bids) == 0
}

// MatchResult is computed fresh for every evaluation and never cached
type MatchResult struct {
	Score     int            `json:"match_score"`
	Reasons   []string       `json:"reasons"`
	Warnings  []string       `json:"warnings,omitempty"`
	Breakdown map[string]int `json:"breakdown"`
}
