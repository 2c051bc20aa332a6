package repository

import (
	"context"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/google/uuid"
)

// leadRepository implements LeadRepository
type leadRepository struct {
	store Store
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(store Store) LeadRepository {
	return &leadRepository{store: store}
}

func (r *leadRepository) Get(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	if err := r.store.Get(ctx, TableLeads, id.String(), &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *leadRepository) Create(ctx context.Context, lead *models.Lead) error {
	return r.store.Save(ctx, TableLeads, lead.ID.String(), lead)
}

// notificationRepository implements NotificationRepository
type notificationRepository struct {
	store Store
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(store Store) NotificationRepository {
	return &notificationRepository{store: store}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.store.Save(ctx, TableNotifications, n.ID.String(), n)
}

func (r *notificationRepository) Update(ctx context.Context, n *models.Notification) error {
	return r.store.Update(ctx, TableNotifications, n.ID.String(), n)
}

// ListByDeal retrieves every notification that mentioned a deal
func (r *notificationRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.Notification, error) {
	all, err := decodeAll[models.Notification](ctx, r.store, TableNotifications)
	if err != nil {
		return nil, err
	}
	var out []*models.Notification
	for _, n := range all {
		for _, id := range n.DealIDs {
			if id == dealID {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}

// ListByStatus retrieves every notification in a delivery state
func (r *notificationRepository) ListByStatus(ctx context.Context, status models.NotificationStatus) ([]*models.Notification, error) {
	all, err := decodeAll[models.Notification](ctx, r.store, TableNotifications)
	if err != nil {
		return nil, err
	}
	var out []*models.Notification
	for _, n := range all {
		if n.Status == status {
			out = append(out, n)
		}
	}
	return out, nil
}
