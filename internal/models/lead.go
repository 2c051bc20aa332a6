package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is a seller inquiry to be prioritized
type Lead struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Address   string       `json:"address"`
	Timeline  string       `json:"timeline"`
	Units     int          `json:"units"`
	Equity    string       `json:"equity"`
	Condition string       `json:"condition"`
	Type      PropertyType `json:"property_type,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// LeadScore is the motivation score of a lead
type LeadScore struct {
	Score     int            `json:"score"`
	Breakdown map[string]int `json:"breakdown"`
}

// LeadPriority routes a scored lead to an offer path
type LeadPriority string

const (
	PriorityImmediate LeadPriority = "immediate"
	PriorityDelayed   LeadPriority = "delayed"
	PriorityNurture   LeadPriority = "nurture"
)
