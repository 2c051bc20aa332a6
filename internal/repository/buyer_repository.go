package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/google/uuid"
)

// buyerRepository implements BuyerRepository
type buyerRepository struct {
	store Store
	// serializes counter read-modify-write
	mu sync.Mutex
}

// NewBuyerRepository creates a new buyer repository
func NewBuyerRepository(store Store) BuyerRepository {
	return &buyerRepository{store: store}
}

func (r *buyerRepository) Get(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	var buyer models.Buyer
	if err := r.store.Get(ctx, TableBuyers, id.String(), &buyer); err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *buyerRepository) Create(ctx context.Context, buyer *models.Buyer) error {
	return r.store.Save(ctx, TableBuyers, buyer.ID.String(), buyer)
}

func (r *buyerRepository) Update(ctx context.Context, buyer *models.Buyer) error {
	return r.store.Update(ctx, TableBuyers, buyer.ID.String(), buyer)
}

// ListActive retrieves every active buyer
func (r *buyerRepository) ListActive(ctx context.Context) ([]*models.Buyer, error) {
	all, err := decodeAll[models.Buyer](ctx, r.store, TableBuyers)
	if err != nil {
		return nil, err
	}
	var out []*models.Buyer
	for _, b := range all {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

// RecordEmailSent bumps LastEmailSent and TotalEmailsSent
func (r *buyerRepository) RecordEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buyer, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	sent := at
	buyer.LastEmailSent = &sent
	buyer.TotalEmailsSent++
	return r.Update(ctx, buyer)
}

// searchRepository implements SearchRepository
type searchRepository struct {
	store Store
	// serializes counter read-modify-write
	mu sync.Mutex
}

// NewSearchRepository creates a new saved search repository
func NewSearchRepository(store Store) SearchRepository {
	return &searchRepository{store: store}
}

func (r *searchRepository) Get(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error) {
	var search models.SavedSearch
	if err := r.store.Get(ctx, TableSearches, id.String(), &search); err != nil {
		return nil, err
	}
	return &search, nil
}

func (r *searchRepository) Create(ctx context.Context, search *models.SavedSearch) error {
	return r.store.Save(ctx, TableSearches, search.ID.String(), search)
}

func (r *searchRepository) Update(ctx context.Context, search *models.SavedSearch) error {
	return r.store.Update(ctx, TableSearches, search.ID.String(), search)
}

// ListActive retrieves every active saved search
func (r *searchRepository) ListActive(ctx context.Context) ([]*models.SavedSearch, error) {
	return r.filter(ctx, func(s *models.SavedSearch) bool { return s.Active })
}

// ListByBuyer retrieves the saved searches owned by one buyer
func (r *searchRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.SavedSearch, error) {
	return r.filter(ctx, func(s *models.SavedSearch) bool { return s.BuyerID == buyerID })
}

// RecordEmailSent bumps LastEmailSent and TotalEmailsSent
func (r *searchRepository) RecordEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	search, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	sent := at
	search.LastEmailSent = &sent
	search.TotalEmailsSent++
	return r.Update(ctx, search)
}

func (r *searchRepository) filter(ctx context.Context, keep func(*models.SavedSearch) bool) ([]*models.SavedSearch, error) {
	all, err := decodeAll[models.SavedSearch](ctx, r.store, TableSearches)
	if err != nil {
		return nil, err
	}
	var out []*models.SavedSearch
	for _, s := range all {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// bidRepository implements BidRepository
type bidRepository struct {
	store Store
}

// NewBidRepository creates a new bid repository
func NewBidRepository(store Store) BidRepository {
	return &bidRepository{store: store}
}

// Create appends a bid
func (r *bidRepository) Create(ctx context.Context, bid *models.BidRecord) error {
	return r.store.Save(ctx, TableBids, bid.ID.String(), bid)
}

// History derives a buyer's bid history
func (r *bidRepository) History(ctx context.Context, buyerID uuid.UUID) (models.BuyerHistory, error) {
	all, err := decodeAll[models.BidRecord](ctx, r.store, TableBids)
	if err != nil {
		return models.BuyerHistory{}, err
	}
	var history models.BuyerHistory
	for _, b := range all {
		if b.BuyerID == buyerID {
			history.Bids = append(history.Bids, *b)
		}
	}
	return history, nil
}
