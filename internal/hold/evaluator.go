package hold

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// Decision is the outcome of evaluating a deal against the auto-hold rules
type Decision struct {
	ShouldHold bool     `json:"should_hold"`
	Reasons    []string `json:"reasons"`
	// PrimaryReason is the last matching reason
	PrimaryReason string     `json:"primary_reason,omitempty"`
	HoldUntil     *time.Time `json:"hold_until,omitempty"`
}

// AutoHoldEvaluator decides whether a newly valued deal is withheld from buyers
type AutoHoldEvaluator struct {
	rules config.AutoHoldRules
}

// NewAutoHoldEvaluator creates an evaluator for one rules snapshot
func NewAutoHoldEvaluator(rules config.AutoHoldRules) *AutoHoldEvaluator {
	return &AutoHoldEvaluator{rules: rules}
}

// Duration is how long an automatic or admin hold lasts
func (e *AutoHoldEvaluator) Duration() time.Duration {
	return time.Duration(e.rules.HoldDurationHours) * time.Hour
}

// Evaluate runs every rule independently and accumulates all matching reasons
func (e *AutoHoldEvaluator) Evaluate(deal *models.Deal, now time.Time) Decision {
	d := Decision{Reasons: []string{}}
	if !e.rules.Enabled || deal == nil {
		return d
	}

	r := e.rules
	arv := deal.ARV()

	// Profit margin
	if r.MinProfitMargin > 0 && arv > 0 && deal.ProfitMargin() >= r.MinProfitMargin {
		d.add(fmt.Sprintf("Profit margin %.1f%% meets hold threshold %.1f%%", deal.ProfitMargin()*100, r.MinProfitMargin*100))
	}

	// Property type allow-list
	if len(r.PropertyTypes) > 0 && containsFold(r.PropertyTypes, string(deal.Record.Type)) {
		d.add(fmt.Sprintf("Property type %s is on the hold list", deal.Record.Type))
	}

	// Minimum units
	if r.MinUnits > 0 && deal.Record.Units >= r.MinUnits {
		d.add(fmt.Sprintf("%d units meets hold threshold of %d", deal.Record.Units, r.MinUnits))
	}

	// Postal code allow-list
	if postal := strings.TrimSpace(deal.Record.Location.PostalCode); len(r.PostalCodes) > 0 && postal != "" && containsFold(r.PostalCodes, postal) {
		d.add(fmt.Sprintf("Postal code %s is on the hold list", postal))
	}

	// Minimum ARV
	if r.MinARV > 0 && arv >= models.Dollars(r.MinARV) {
		d.add(fmt.Sprintf("ARV $%s meets hold threshold $%s", arv, models.Dollars(r.MinARV)))
	}

	// Maximum offer-to-ARV ratio
	if offer := deal.OfferAmount(); r.MaxOfferToARV > 0 && arv > 0 && offer > 0 && offer.Ratio(arv) <= r.MaxOfferToARV {
		d.add(fmt.Sprintf("Offer is %.1f%% of ARV (hold at or below %.1f%%)", offer.Ratio(arv)*100, r.MaxOfferToARV*100))
	}

	// Minimum deal quality
	if r.MinDealQuality > 0 && deal.QualityScore >= r.MinDealQuality {
		d.add(fmt.Sprintf("Deal quality %d meets hold threshold %d", deal.QualityScore, r.MinDealQuality))
	}

	if d.ShouldHold {
		until := now.Add(e.Duration())
		d.HoldUntil = &until
	}
	return d
}

func (d *Decision) add(reason string) {
	d.ShouldHold = true
	d.Reasons = append(d.Reasons, reason)
	d.PrimaryReason = reason
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
