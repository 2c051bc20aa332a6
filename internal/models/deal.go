package models

import (
	"time"

	"github.com/google/uuid"
)

// HoldStatus is the admin hold state of a deal
type HoldStatus string

const (
	HoldNone         HoldStatus = "none"
	HoldActive       HoldStatus = "HOLD"
	HoldSelfPurchase HoldStatus = "SELF-PURCHASE"
	HoldReleased     HoldStatus = "RELEASED"
)

// Terminal reports whether no further transition is allowed
func (s HoldStatus) Terminal() bool {
	return s == HoldSelfPurchase
}

// Deal is a valued property waiting to be published to buyers
type Deal struct {
	ID                uuid.UUID         `json:"id"`
	Record            PropertyRecord    `json:"property"`
	Market            MarketKey         `json:"market"`
	Verification      VerifiedValuation `json:"verification"`
	Offer             *OfferResult      `json:"offer,omitempty"`
	Income            *IncomeValuation  `json:"income_valuation,omitempty"`
	QualityScore      int               `json:"deal_quality_score"`
	HoldStatus        HoldStatus        `json:"admin_hold_status"`
	HoldUntil         *time.Time        `json:"hold_until,omitempty"`
	HoldReasons       []string          `json:"hold_reasons,omitempty"`
	NeedsManualReview bool              `json:"needs_manual_review"`
	ReviewClearedAt   *time.Time        `json:"review_cleared_at,omitempty"`
	ValuedAt          time.Time         `json:"valued_at"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ARV returns the after-repair value from whichever valuation produced the deal
func (d *Deal) ARV() Money {
	switch {
	case d.Offer != nil:
		return d.Offer.ARV
	case d.Income != nil:
		return d.Income.ARV
	}
	return d.Verification.ARV
}

// OfferAmount returns the wholesale offer
func (d *Deal) OfferAmount() Money {
	switch {
	case d.Offer != nil:
		return d.Offer.Offer
	case d.Income != nil:
		return d.Income.Offer
	}
	return 0
}

// AssignmentFee returns the fee earned on assignment
func (d *Deal) AssignmentFee() Money {
	switch {
	case d.Offer != nil:
		return d.Offer.AssignmentFee
	case d.Income != nil:
		return d.Income.AssignmentFee
	}
	return 0
}

// ProfitMargin is (ARV - offer) / ARV
func (d *Deal) ProfitMargin() float64 {
	arv := d.ARV()
	if arv <= 0 {
		return 0
	}
	return (arv - d.OfferAmount()).Ratio(arv)
}

// ReviewPending reports whether the deal still awaits an admin review
func (d *Deal) ReviewPending() bool {
	return d.NeedsManualReview && d.ReviewClearedAt == nil
}

// Visible reports whether buyers may see the deal. A deal flagged for manual
// review stays hidden until an admin clears it, whatever its hold status.
func (d *Deal) Visible() bool {
	if d.ReviewPending() {
		return false
	}
	switch d.HoldStatus {
	case HoldReleased, HoldNone, "":
		return true
	}
	return false
}

// Snapshot returns the buyer-facing view used for matching
func (d *Deal) Snapshot() DealSnapshot {
	s := DealSnapshot{
		DealID:       d.ID,
		Type:         d.Record.Type,
		Units:        d.Record.Units,
		ARV:          d.ARV(),
		QualityScore: d.QualityScore,
		Neighborhood: d.Record.Neighborhood,
		City:         d.Record.Location.City,
		PostalCode:   d.Record.Location.PostalCode,
		Market:       d.Market,
	}
	s.Price = d.OfferAmount() + d.AssignmentFee()

	switch {
	case d.Offer != nil:
		s.Repairs = d.Offer.Repairs
		s.Band = d.Offer.Band
		basis := s.Price + d.Offer.Repairs + d.Offer.Holding
		if basis > 0 {
			s.ROI = (d.Offer.ARV - basis).Ratio(basis)
		}
	case d.Income != nil:
		s.ROI = d.Income.CashOnCash
		if s.Price > 0 {
			s.CapRate = d.Income.NOI.Ratio(s.Price)
		}
	}
	return s
}

// DealSnapshot is an immutable view of a deal for scoring against buyers
type DealSnapshot struct {
	DealID       uuid.UUID    `json:"deal_id"`
	Type         PropertyType `json:"property_type"`
	Units        int          `json:"units"`
	Price        Money        `json:"price"`
	ARV          Money        `json:"arv"`
	Repairs      Money        `json:"repairs"`
	ROI          float64      `json:"roi"`
	CapRate      float64      `json:"cap_rate"`
	QualityScore int          `json:"deal_quality_score"`
	Band         Band         `json:"band,omitempty"`
	Neighborhood string       `json:"neighborhood,omitempty"`
	City         string       `json:"city,omitempty"`
	PostalCode   string       `json:"postal_code,omitempty"`
	Market       MarketKey    `json:"market,omitempty"`
}
