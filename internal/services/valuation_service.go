package services

import (
	"context"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/sources"
	"github.com/ajharbinger/dealflow-engine/internal/valuation"
)

// VerifyRequest asks for a reconciled valuation of one address. Without
// observations the configured sources are queried.
type VerifyRequest struct {
	Address      string                     `json:"address" binding:"required"`
	Observations []models.SourceObservation `json:"observations,omitempty"`
}

// VerifyResponse is a verified valuation plus any sources that failed
type VerifyResponse struct {
	*valuation.VerifiedResult
	Failures []sources.SourceError `json:"source_failures,omitempty"`
}

// OfferRequest is a single-family offer calculation
type OfferRequest struct {
	ARV           models.Money  `json:"arv" binding:"required"`
	Repairs       models.Money  `json:"repairs"`
	AssignmentFee *models.Money `json:"assignment_fee,omitempty"`
}

// OfferResponse is an offer with its deal-quality score
type OfferResponse struct {
	*models.OfferResult
	QualityScore int `json:"deal_quality_score"`
}

// IncomeRequest is an income valuation of a multi-family or apartment property
type IncomeRequest struct {
	Location     models.GeoLocation `json:"location"`
	Market       models.MarketKey   `json:"market,omitempty"`
	PropertyType string             `json:"property_type" binding:"required"`
	Units        int                `json:"units" binding:"required"`
	SquareFeet   int                `json:"square_feet"`
	Rents        []models.Money     `json:"rents" binding:"required"`
	MarketRents  []models.Money     `json:"market_rents,omitempty"`
}

// ValuationService exposes the stateless valuation engine
type ValuationService struct {
	engine    *engineRef
	collector *sources.Collector
	clock     clock.Clock
}

func newValuationService(ref *engineRef, collector *sources.Collector, clk clock.Clock) *ValuationService {
	return &ValuationService{engine: ref, collector: collector, clock: clk}
}

// Verify reconciles source observations into a confidence-scored valuation
func (s *ValuationService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	resp := &VerifyResponse{}
	obs := req.Observations
	if len(obs) == 0 && s.collector != nil {
		collected, err := s.collector.Collect(ctx, req.Address)
		if err != nil {
			return nil, err
		}
		obs = collected.Observations
		resp.Failures = collected.Failures
	}

	result, err := s.engine.get().verifier.Verify(req.Address, obs, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp.VerifiedResult = result
	return resp, nil
}

// Offer calculates a single-family wholesale offer
func (s *ValuationService) Offer(req OfferRequest) (*OfferResponse, error) {
	calc := s.engine.get().offers
	result, err := calc.Calculate(valuation.OfferInput{
		ARV:           req.ARV,
		Repairs:       req.Repairs,
		AssignmentFee: req.AssignmentFee,
	})
	if err != nil {
		return nil, err
	}
	return &OfferResponse{OfferResult: result, QualityScore: calc.QualityScore(result)}, nil
}

// Income values a rent roll. The market is resolved from the location unless
// given explicitly.
func (s *ValuationService) Income(req IncomeRequest) (*models.IncomeValuation, error) {
	eng := s.engine.get()

	propertyType, err := models.ParsePropertyType(req.PropertyType)
	if err != nil {
		return nil, errors.InvalidInput(err.Error(), err).WithOperation("value_income")
	}

	market := models.MarketKey(strings.ToLower(strings.TrimSpace(string(req.Market))))
	if market == "" {
		if market, err = eng.markets.Resolve(req.Location); err != nil {
			return nil, err
		}
	}

	return eng.income.Value(valuation.IncomeInput{
		Type:        propertyType,
		Units:       req.Units,
		SquareFeet:  req.SquareFeet,
		Rents:       req.Rents,
		MarketRents: req.MarketRents,
		Market:      market,
	})
}
