package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/alerts"
	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/google/uuid"
)

// CreateBuyerRequest is a new investor profile
type CreateBuyerRequest struct {
	Name      string                   `json:"name" binding:"required"`
	Criteria  models.BuyerCriteria     `json:"criteria"`
	Prefs     models.NotificationPrefs `json:"notification_prefs"`
	Frequency models.EmailFrequency    `json:"email_frequency"`
}

// CreateSearchRequest is a new saved search for an existing buyer
type CreateSearchRequest struct {
	BuyerID   uuid.UUID                 `json:"buyer_id" binding:"required"`
	Name      string                    `json:"name"`
	Criteria  models.BuyerCriteria      `json:"criteria"`
	Prefs     *models.NotificationPrefs `json:"notification_prefs,omitempty"`
	Frequency models.EmailFrequency     `json:"email_frequency"`
}

// PlaceBidRequest records a buyer's bid on a deal
type PlaceBidRequest struct {
	BuyerID uuid.UUID    `json:"buyer_id" binding:"required"`
	DealID  uuid.UUID    `json:"deal_id" binding:"required"`
	Amount  models.Money `json:"amount"`
	Won     bool         `json:"won"`
}

// BuyerService manages buyer profiles, saved searches and bid history
type BuyerService struct {
	repos *repository.Repositories
	clock clock.Clock
}

func newBuyerService(repos *repository.Repositories, clk clock.Clock) *BuyerService {
	return &BuyerService{repos: repos, clock: clk}
}

// CreateBuyer validates and stores a buyer. The frequency defaults to instant.
func (s *BuyerService) CreateBuyer(ctx context.Context, req CreateBuyerRequest) (*models.Buyer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.InvalidInput("buyer name is required", nil).WithOperation("create_buyer")
	}
	if req.Frequency == "" {
		req.Frequency = models.FrequencyInstant
	}
	if err := validateSubscription(req.Criteria, req.Prefs, req.Frequency); err != nil {
		return nil, err.WithOperation("create_buyer")
	}

	buyer := &models.Buyer{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(req.Name),
		Criteria:  req.Criteria,
		Prefs:     req.Prefs,
		Frequency: req.Frequency,
		Active:    true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repos.Buyers.Create(ctx, buyer); err != nil {
		return nil, err
	}
	return buyer, nil
}

// GetBuyer returns a buyer profile
func (s *BuyerService) GetBuyer(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	return s.repos.Buyers.Get(ctx, id)
}

// Deactivate stops all alerts for a buyer
func (s *BuyerService) Deactivate(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	buyer, err := s.repos.Buyers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	buyer.Active = false
	if err := s.repos.Buyers.Update(ctx, buyer); err != nil {
		return nil, err
	}
	return buyer, nil
}

// CreateSearch stores a saved search. Without its own preferences the
// search inherits the buyer's.
func (s *BuyerService) CreateSearch(ctx context.Context, req CreateSearchRequest) (*models.SavedSearch, error) {
	buyer, err := s.repos.Buyers.Get(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}

	prefs := buyer.Prefs
	if req.Prefs != nil {
		prefs = *req.Prefs
	}
	if req.Frequency == "" {
		req.Frequency = models.FrequencyDaily
	}
	if verr := validateSubscription(req.Criteria, prefs, req.Frequency); verr != nil {
		return nil, verr.WithOperation("create_search")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("%s search", buyer.Name)
	}
	search := &models.SavedSearch{
		ID:             uuid.New(),
		BuyerID:        buyer.ID,
		Name:           name,
		Criteria:       req.Criteria,
		Prefs:          prefs,
		EmailFrequency: req.Frequency,
		Active:         true,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repos.Searches.Create(ctx, search); err != nil {
		return nil, err
	}
	return search, nil
}

// ListSearches returns every saved search of a buyer
func (s *BuyerService) ListSearches(ctx context.Context, buyerID uuid.UUID) ([]*models.SavedSearch, error) {
	if _, err := s.repos.Buyers.Get(ctx, buyerID); err != nil {
		return nil, err
	}
	return s.repos.Searches.ListByBuyer(ctx, buyerID)
}

// PlaceBid records a bid. The property type is taken from the deal so that
// history-based affinity reflects what was actually bid on.
func (s *BuyerService) PlaceBid(ctx context.Context, req PlaceBidRequest) (*models.BidRecord, error) {
	if req.Amount <= 0 {
		return nil, errors.InvalidInput("bid amount must be positive", nil).WithOperation("place_bid")
	}
	if _, err := s.repos.Buyers.Get(ctx, req.BuyerID); err != nil {
		return nil, err
	}
	deal, err := s.repos.Deals.Get(ctx, req.DealID)
	if err != nil {
		return nil, err
	}
	if !deal.Visible() {
		return nil, errors.RuleConflict("deal is not open for bids", nil).WithOperation("place_bid")
	}

	bid := &models.BidRecord{
		ID:           uuid.New(),
		BuyerID:      req.BuyerID,
		DealID:       req.DealID,
		PropertyType: deal.Record.Type,
		Amount:       req.Amount,
		Won:          req.Won,
		PlacedAt:     s.clock.Now(),
	}
	if err := s.repos.Bids.Create(ctx, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

// History returns the bid history of a buyer
func (s *BuyerService) History(ctx context.Context, buyerID uuid.UUID) (models.BuyerHistory, error) {
	if _, err := s.repos.Buyers.Get(ctx, buyerID); err != nil {
		return models.BuyerHistory{}, err
	}
	return s.repos.Bids.History(ctx, buyerID)
}

func validateSubscription(c models.BuyerCriteria, p models.NotificationPrefs, f models.EmailFrequency) *errors.AppError {
	if !f.Valid() {
		return errors.InvalidInput(fmt.Sprintf("unknown email frequency %q", f), nil)
	}
	if c.MinBudget < 0 || c.MaxBudget < 0 {
		return errors.InvalidInput("budgets cannot be negative", nil)
	}
	if c.MaxBudget > 0 && c.MinBudget > c.MaxBudget {
		return errors.InvalidInput("minimum budget exceeds maximum budget", nil)
	}
	for _, t := range c.PropertyTypes {
		if _, err := models.ParsePropertyType(string(t)); err != nil {
			return errors.InvalidInput(err.Error(), err)
		}
	}
	if err := alerts.ValidatePrefs(p); err != nil {
		return errors.InvalidInput(err.Error(), err)
	}
	return nil
}
