package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a notification transport
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// NotificationStatus tracks one delivery attempt
type NotificationStatus string

const (
	NotificationQueued   NotificationStatus = "queued"
	NotificationDeferred NotificationStatus = "deferred"
	NotificationSent     NotificationStatus = "sent"
	NotificationFailed   NotificationStatus = "failed"
)

// Notification is the persisted record of an alert sent to a buyer
type Notification struct {
	ID             uuid.UUID          `json:"id"`
	SubscriptionID uuid.UUID          `json:"subscription_id"`
	BuyerID        uuid.UUID          `json:"buyer_id"`
	DealIDs        []uuid.UUID        `json:"deal_ids"`
	Channel        Channel            `json:"channel"`
	Recipient      string             `json:"recipient"`
	Kind           string             `json:"kind"`
	MatchScore     int                `json:"match_score,omitempty"`
	Status         NotificationStatus `json:"status"`
	Error          string             `json:"error,omitempty"`
	DeliverAt      *time.Time         `json:"deliver_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
}
