package repository

import (
	"context"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/google/uuid"
)

// Logical tables
const (
	TableDeals         = "Active Deals"
	TableBids          = "Bids"
	TableBuyers        = "Buyers"
	TableSearches      = "Saved Searches"
	TableLeads         = "Leads"
	TableNotifications = "Notifications"
)

// Store is eventually-consistent keyed record storage over named tables.
// It is not transactional.
type Store interface {
	// Save appends a new record; an existing key is a Conflict
	Save(ctx context.Context, table, key string, record interface{}) error
	// Update writes a record under key, creating it when absent
	Update(ctx context.Context, table, key string, record interface{}) error
	// Get decodes the record under key into dest; a missing key is NotFound
	Get(ctx context.Context, table, key string, dest interface{}) error
	// List returns every record of a table in insertion order
	List(ctx context.Context, table string) ([][]byte, error)
}

// DealRepository defines the interface for deal data access
type DealRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	Create(ctx context.Context, deal *models.Deal) error
	Update(ctx context.Context, deal *models.Deal) error
	List(ctx context.Context) ([]*models.Deal, error)
	ListByStatus(ctx context.Context, status models.HoldStatus) ([]*models.Deal, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Deal, error)
}

// BuyerRepository defines the interface for buyer profile access
type BuyerRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Buyer, error)
	Create(ctx context.Context, buyer *models.Buyer) error
	Update(ctx context.Context, buyer *models.Buyer) error
	ListActive(ctx context.Context) ([]*models.Buyer, error)
	// RecordEmailSent bumps the delivery counters of a buyer profile
	RecordEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SearchRepository defines the interface for saved search access
type SearchRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error)
	Create(ctx context.Context, search *models.SavedSearch) error
	Update(ctx context.Context, search *models.SavedSearch) error
	ListActive(ctx context.Context) ([]*models.SavedSearch, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.SavedSearch, error)
	// RecordEmailSent bumps the delivery counters of a search
	RecordEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// BidRepository defines the interface for bid history access
type BidRepository interface {
	Create(ctx context.Context, bid *models.BidRecord) error
	History(ctx context.Context, buyerID uuid.UUID) (models.BuyerHistory, error)
}

// LeadRepository defines the interface for seller lead access
type LeadRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	Create(ctx context.Context, lead *models.Lead) error
}

// NotificationRepository defines the interface for notification records
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	Update(ctx context.Context, n *models.Notification) error
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.Notification, error)
	ListByStatus(ctx context.Context, status models.NotificationStatus) ([]*models.Notification, error)
}

// Repositories groups all repository interfaces
type Repositories struct {
	Deals         DealRepository
	Buyers        BuyerRepository
	Searches      SearchRepository
	Bids          BidRepository
	Leads         LeadRepository
	Notifications NotificationRepository
}

// NewRepositories creates the repository collection over one store
func NewRepositories(store Store) *Repositories {
	return &Repositories{
		Deals:         NewDealRepository(store),
		Buyers:        NewBuyerRepository(store),
		Searches:      NewSearchRepository(store),
		Bids:          NewBidRepository(store),
		Leads:         NewLeadRepository(store),
		Notifications: NewNotificationRepository(store),
	}
}
