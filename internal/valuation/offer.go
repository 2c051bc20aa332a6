package valuation

import (
	"fmt"
	"math"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// OfferInput is the input of a single-family offer. A nil AssignmentFee uses
// the configured default.
type OfferInput struct {
	ARV           models.Money  `json:"arv"`
	Repairs       models.Money  `json:"repairs"`
	AssignmentFee *models.Money `json:"assignment_fee,omitempty"`
}

// OfferCalculator computes wholesale offers for single-family properties
type OfferCalculator struct {
	rules config.OfferRules
}

// NewOfferCalculator creates a calculator bound to one rules snapshot
func NewOfferCalculator(rules config.OfferRules) *OfferCalculator {
	return &OfferCalculator{rules: rules}
}

// Calculate returns the offer for in. Negative offers are valid results and
// signal an unviable deal.
func (c *OfferCalculator) Calculate(in OfferInput) (*models.OfferResult, error) {
	if in.ARV <= 0 {
		return nil, errors.InvalidInput("arv must be greater than zero", nil).WithOperation("calculate_offer")
	}
	if in.Repairs < 0 {
		return nil, errors.InvalidInput("repairs cannot be negative", nil).WithOperation("calculate_offer")
	}

	fee := models.Dollars(c.rules.DefaultAssignmentFee)
	if in.AssignmentFee != nil {
		fee = *in.AssignmentFee
	}
	minFee, maxFee := models.Dollars(c.rules.MinAssignmentFee), models.Dollars(c.rules.MaxAssignmentFee)
	if fee < minFee || fee > maxFee {
		return nil, errors.InvalidInput(
			fmt.Sprintf("assignment fee %s outside [%s, %s]", fee, minFee, maxFee), nil,
		).WithOperation("calculate_offer")
	}

	buyerProfit := in.ARV.MulFrac(c.rules.BuyerProfitFraction)
	holding := models.Dollars(c.rules.HoldingCostPerMonth) * models.Money(c.rules.HoldingMonths)

	offer := in.ARV.MulFrac(c.rules.ARVMultiplier) - in.Repairs - holding - fee - buyerProfit
	offer = offer.RoundTo(models.Dollars(c.rules.RoundTo))

	spread := (in.ARV - offer).Ratio(in.ARV)

	return &models.OfferResult{
		Offer:             offer,
		ARV:               in.ARV,
		Repairs:           in.Repairs,
		Holding:           holding,
		AssignmentFee:     fee,
		BuyerProfitTarget: buyerProfit,
		SpreadFraction:    spread,
		Band:              c.BandFor(spread),
	}, nil
}

// BandFor grades a spread, high to low
func (c *OfferCalculator) BandFor(spread float64) models.Band {
	switch {
	case spread >= c.rules.GreenMinSpread:
		return models.BandGreen
	case spread >= c.rules.YellowMinSpread:
		return models.BandYellow
	}
	return models.BandRed
}

// QualityScore grades a single-family offer 0-100, linear in spread
func (c *OfferCalculator) QualityScore(r *models.OfferResult) int {
	if r == nil || c.rules.QualityFullSpread <= 0 {
		return 0
	}
	score := int(math.Round(r.SpreadFraction / c.rules.QualityFullSpread * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
