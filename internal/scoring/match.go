package scoring

import (
	"fmt"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// Match score breakdown keys
const (
	MatchFactorType     = "property_type"
	MatchFactorBudget   = "budget"
	MatchFactorLocation = "location"
	MatchFactorROI      = "roi"
	MatchFactorQuality  = "deal_quality"
	MatchFactorAffinity = "affinity"
)

// ExceptionalMatchReason is appended to every match at or above the
// exceptional threshold
const ExceptionalMatchReason = "Exceptional match for your criteria"

// MatchScorer scores a buyer's criteria against a deal. Every sub-score reads
// only its own criterion, so changing one criterion moves one sub-score.
type MatchScorer struct {
	rules config.MatchRules
}

// NewMatchScorer creates a scorer bound to the given weights
func NewMatchScorer(rules config.MatchRules) *MatchScorer {
	return &MatchScorer{rules: rules}
}

type subScore struct {
	points int
	reason string
}

// Score computes a fresh match result. Results are never cached.
func (s *MatchScorer) Score(c models.BuyerCriteria, h models.BuyerHistory, d models.DealSnapshot) models.MatchResult {
	parts := []struct {
		key string
		sub subScore
	}{
		{MatchFactorType, s.typeFit(c, d)},
		{MatchFactorBudget, s.budgetFit(c, d)},
		{MatchFactorLocation, s.locationFit(c, d)},
		{MatchFactorROI, s.roiFit(c, d)},
		{MatchFactorQuality, s.qualityFit(c, d)},
		{MatchFactorAffinity, s.affinity(h, d)},
	}

	result := models.MatchResult{
		Reasons:   []string{},
		Breakdown: make(map[string]int, len(parts)),
	}
	for _, p := range parts {
		result.Breakdown[p.key] = p.sub.points
		result.Score += p.sub.points
		if p.sub.reason != "" {
			result.Reasons = append(result.Reasons, p.sub.reason)
		}
	}
	if result.Score > 100 {
		result.Score = 100
	}
	if result.Score >= s.rules.ExceptionalThreshold {
		result.Reasons = append(result.Reasons, ExceptionalMatchReason)
	}

	// Repair tolerance is informational only
	if c.MaxRepairs > 0 && d.Repairs > c.MaxRepairs {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Repairs of $%s exceed your tolerance of $%s", d.Repairs, c.MaxRepairs))
	}

	return result
}

// Publishable reports whether a match may be surfaced to the buyer
func (s *MatchScorer) Publishable(r models.MatchResult) bool {
	return r.Score >= s.rules.PublishThreshold
}

func (s *MatchScorer) typeFit(c models.BuyerCriteria, d models.DealSnapshot) subScore {
	if len(c.PropertyTypes) == 0 || c.AcceptsType(d.Type) {
		return subScore{s.rules.TypePoints, fmt.Sprintf("Property type matches (%s)", d.Type)}
	}
	return subScore{}
}

func (s *MatchScorer) budgetFit(c models.BuyerCriteria, d models.DealSnapshot) subScore {
	if d.Price < c.MinBudget {
		return subScore{}
	}
	if c.MaxBudget <= 0 || d.Price <= c.MaxBudget {
		return subScore{s.rules.BudgetFull, fmt.Sprintf("Price $%s is within your budget", d.Price)}
	}
	if d.Price <= c.MaxBudget.MulFrac(1+s.rules.BudgetTolerance) {
		return subScore{s.rules.BudgetNear, fmt.Sprintf("Price $%s is slightly above your budget", d.Price)}
	}
	return subScore{}
}

func (s *MatchScorer) locationFit(c models.BuyerCriteria, d models.DealSnapshot) subScore {
	places := []string{d.Neighborhood, d.City, d.PostalCode}
	if containsAny(c.AvoidedNeighborhoods, places) {
		return subScore{}
	}
	if containsAny(c.PreferredNeighborhoods, places) {
		return subScore{s.rules.LocationPreferred, fmt.Sprintf("Located in a preferred area (%s)", firstNonEmpty(places))}
	}
	return subScore{s.rules.LocationAllowed, ""}
}

func (s *MatchScorer) roiFit(c models.BuyerCriteria, d models.DealSnapshot) subScore {
	target, value, label := c.MinROI, d.ROI, "ROI"
	if target <= 0 && c.MinCapRate > 0 && d.CapRate > 0 {
		target, value, label = c.MinCapRate, d.CapRate, "Cap rate"
	}
	if target <= 0 {
		return subScore{s.rules.ROIMeets, ""}
	}

	switch {
	case value >= target*s.rules.ROIBonusMultiple:
		return subScore{s.rules.ROIMeets + s.rules.ROIBonus, fmt.Sprintf("%s of %.1f%% far exceeds your %.1f%% target", label, value*100, target*100)}
	case value >= target:
		return subScore{s.rules.ROIMeets, fmt.Sprintf("%s of %.1f%% meets your %.1f%% target", label, value*100, target*100)}
	case value >= target*s.rules.ROINearFraction:
		return subScore{s.rules.ROINear, fmt.Sprintf("%s of %.1f%% is close to your %.1f%% target", label, value*100, target*100)}
	}
	return subScore{}
}

func (s *MatchScorer) qualityFit(c models.BuyerCriteria, d models.DealSnapshot) subScore {
	if c.MinDealQuality <= 0 {
		return subScore{s.rules.QualityMeets, ""}
	}
	if d.QualityScore >= c.MinDealQuality {
		return subScore{s.rules.QualityMeets, fmt.Sprintf("Deal quality %d meets your minimum", d.QualityScore)}
	}
	if float64(d.QualityScore) >= float64(c.MinDealQuality)*s.rules.QualityNearFraction {
		return subScore{s.rules.QualityNear, fmt.Sprintf("Deal quality %d is near your minimum", d.QualityScore)}
	}
	return subScore{}
}

// affinity rewards bidding history on similar deals; no history is neutral
func (s *MatchScorer) affinity(h models.BuyerHistory, d models.DealSnapshot) subScore {
	if h.Empty() {
		return subScore{s.rules.AffinityNeutral, ""}
	}

	lo := d.Price.MulFrac(1 - s.rules.PriceBandFraction)
	hi := d.Price.MulFrac(1 + s.rules.PriceBandFraction)

	var similar, won bool
	for _, b := range h.Bids {
		inBand := b.Amount >= lo && b.Amount <= hi
		if inBand && b.PropertyType == d.Type {
			similar = true
		}
		if inBand && b.Won {
			won = true
		}
	}

	points := 0
	var reasons []string
	if similar {
		points += s.rules.AffinitySimilar
		reasons = append(reasons, "you have bid on similar properties")
	}
	if won {
		points += s.rules.AffinityWon
		reasons = append(reasons, "you have won deals in this price range")
	}
	if len(reasons) == 0 {
		return subScore{}
	}
	return subScore{points, "Matches your history: " + strings.Join(reasons, " and ")}
}

func containsAny(list []string, values []string) bool {
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		for _, v := range values {
			if v != "" && strings.EqualFold(item, strings.TrimSpace(v)) {
				return true
			}
		}
	}
	return false
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
