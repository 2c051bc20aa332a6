package services

import (
	"context"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/hold"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/ajharbinger/dealflow-engine/internal/sources"
	"github.com/ajharbinger/dealflow-engine/internal/valuation"
	"github.com/google/uuid"
)

// CreateDealRequest is a property to value and publish. Observations, when
// given, are used instead of querying the configured sources.
type CreateDealRequest struct {
	Location      models.GeoLocation         `json:"location" binding:"required"`
	Neighborhood  string                     `json:"neighborhood"`
	PropertyType  string                     `json:"property_type" binding:"required"`
	Units         int                        `json:"units"`
	SquareFeet    int                        `json:"square_feet"`
	YearBuilt     int                        `json:"year_built"`
	Condition     string                     `json:"condition"`
	Repairs       models.Money               `json:"repairs"`
	AssignmentFee *models.Money              `json:"assignment_fee,omitempty"`
	Rents         []models.Money             `json:"rents,omitempty"`
	MarketRents   []models.Money             `json:"market_rents,omitempty"`
	Observations  []models.SourceObservation `json:"observations,omitempty"`
}

// DealOutcome is the result of valuing a deal
type DealOutcome struct {
	Deal     *models.Deal         `json:"deal"`
	Hold     hold.Decision        `json:"hold"`
	Failures []sources.SourceError `json:"source_failures,omitempty"`
	Notified NotifySummary        `json:"notified"`
}

// DealService runs a property through verification, valuation, hold rules
// and buyer matching
type DealService struct {
	repos     *repository.Repositories
	engine    *engineRef
	holds     *hold.Manager
	matches   *MatchService
	collector *sources.Collector
	clock     clock.Clock
	logger    logger.Logger
}

func newDealService(repos *repository.Repositories, ref *engineRef, holds *hold.Manager, matches *MatchService, collector *sources.Collector, clk clock.Clock, log logger.Logger) *DealService {
	return &DealService{
		repos:     repos,
		engine:    ref,
		holds:     holds,
		matches:   matches,
		collector: collector,
		clock:     clk,
		logger:    log,
	}
}

// CreateDeal values a new property and, when it is visible, alerts buyers
func (s *DealService) CreateDeal(ctx context.Context, req CreateDealRequest) (*DealOutcome, error) {
	propertyType, err := models.ParsePropertyType(req.PropertyType)
	if err != nil {
		return nil, errors.InvalidInput(err.Error(), err).WithOperation("create_deal")
	}
	if propertyType == models.SingleFamily && req.Units == 0 {
		req.Units = 1
	}

	record := models.PropertyRecord{
		Address:      req.Location.Address(),
		Location:     req.Location,
		Neighborhood: strings.TrimSpace(req.Neighborhood),
		Type:         propertyType,
		Units:        req.Units,
		SquareFeet:   req.SquareFeet,
		YearBuilt:    req.YearBuilt,
		Condition:    req.Condition,
		CurrentRents: req.Rents,
		MarketRents:  req.MarketRents,
	}

	deal := &models.Deal{ID: uuid.New(), Record: record}
	outcome, err := s.value(ctx, deal, req.Observations, req.Repairs, req.AssignmentFee)
	if err != nil {
		return nil, err
	}

	if outcome.Deal.Visible() {
		outcome.Notified, err = s.matches.NotifyDeal(ctx, outcome.Deal)
		if err != nil {
			s.logger.Error("Failed to notify buyers", err, "deal_id", outcome.Deal.ID)
		}
	}
	s.logger.Info("🏠 Deal created", "deal_id", outcome.Deal.ID,
		"market", outcome.Deal.Market, "status", outcome.Deal.HoldStatus,
		"review", outcome.Deal.NeedsManualReview)
	return outcome, nil
}

// Recheck re-collects and re-values a stored deal. Buyers are alerted only
// when the deal becomes visible through the recheck.
func (s *DealService) Recheck(ctx context.Context, id uuid.UUID) (*DealOutcome, error) {
	existing, err := s.repos.Deals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	wasVisible := existing.Visible()

	var (
		repairs models.Money
		fee     *models.Money
	)
	if existing.Offer != nil {
		repairs = existing.Offer.Repairs
		f := existing.Offer.AssignmentFee
		fee = &f
	}

	deal := &models.Deal{ID: existing.ID, Record: existing.Record}
	outcome, err := s.value(ctx, deal, nil, repairs, fee)
	if err != nil {
		return nil, err
	}
	if !wasVisible && outcome.Deal.Visible() {
		outcome.Notified, err = s.matches.NotifyDeal(ctx, outcome.Deal)
		if err != nil {
			s.logger.Error("Failed to notify buyers", err, "deal_id", id)
		}
	}
	return outcome, nil
}

func (s *DealService) value(ctx context.Context, deal *models.Deal, observations []models.SourceObservation, repairs models.Money, fee *models.Money) (*DealOutcome, error) {
	eng := s.engine.get()
	now := s.clock.Now()
	outcome := &DealOutcome{}

	market, err := eng.markets.Resolve(deal.Record.Location)
	if err != nil {
		return nil, err
	}
	deal.Market = market

	if len(observations) == 0 && s.collector != nil {
		collected, err := s.collector.Collect(ctx, deal.Record.Address)
		if err != nil {
			return nil, err
		}
		observations = collected.Observations
		outcome.Failures = collected.Failures
	}

	verified, err := eng.verifier.Verify(deal.Record.Address, observations, now)
	if err != nil {
		return nil, err
	}
	deal.Verification = verified.Valuation
	deal.NeedsManualReview = verified.Valuation.NeedsManualReview
	fillRecord(&deal.Record, verified.Fields)
	deal.Record.VerifiedAt = verified.VerifiedAt

	if deal.Record.Type.IsIncome() {
		income, err := eng.income.Value(valuation.IncomeInput{
			Type:        deal.Record.Type,
			Units:       deal.Record.Units,
			SquareFeet:  deal.Record.SquareFeet,
			Rents:       deal.Record.CurrentRents,
			MarketRents: deal.Record.MarketRents,
			Market:      market,
		})
		if err != nil {
			return nil, err
		}
		deal.Income = income
		deal.QualityScore = income.QualityScore
	} else {
		if verified.Valuation.ARV <= 0 {
			return nil, errors.InsufficientData("no source reported an after-repair value", nil).WithOperation("create_deal")
		}
		offer, err := eng.offers.Calculate(valuation.OfferInput{
			ARV:           verified.Valuation.ARV,
			Repairs:       repairs,
			AssignmentFee: fee,
		})
		if err != nil {
			return nil, err
		}
		deal.Offer = offer
		deal.QualityScore = eng.offers.QualityScore(offer)
	}
	deal.ValuedAt = now

	stored, decision, err := s.holds.ApplyValuation(ctx, deal)
	if err != nil {
		return nil, err
	}
	outcome.Deal = stored
	outcome.Hold = decision
	return outcome, nil
}

// fillRecord completes missing record fields from reconciled source values
func fillRecord(r *models.PropertyRecord, f models.ObservedFields) {
	if r.SquareFeet == 0 {
		r.SquareFeet = f.SquareFeet
	}
	if r.YearBuilt == 0 {
		r.YearBuilt = f.YearBuilt
	}
	if r.Units == 0 {
		r.Units = f.Units
	}
}

// GetDeal returns a stored deal
func (s *DealService) GetDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return s.repos.Deals.Get(ctx, id)
}

// Matches scores a visible deal against every subscription
func (s *DealService) Matches(ctx context.Context, id uuid.UUID) ([]Match, error) {
	deal, err := s.repos.Deals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deal.Visible() {
		return nil, errors.RuleConflict("deal is not visible to buyers", nil).WithOperation("match_deal")
	}
	return s.matches.MatchDeal(ctx, deal)
}

// Hold withholds a deal from buyers
func (s *DealService) Hold(ctx context.Context, id uuid.UUID, reason string) (*models.Deal, error) {
	return s.holds.Hold(ctx, id, reason)
}

// Release publishes a held deal; buyers are alerted by the release hook
func (s *DealService) Release(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return s.holds.Release(ctx, id)
}

// SelfPurchase withdraws a deal permanently
func (s *DealService) SelfPurchase(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return s.holds.SelfPurchase(ctx, id)
}
