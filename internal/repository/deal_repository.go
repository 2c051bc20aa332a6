package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/google/uuid"
)

// dealRepository implements DealRepository
type dealRepository struct {
	store Store
}

// NewDealRepository creates a new deal repository
func NewDealRepository(store Store) DealRepository {
	return &dealRepository{store: store}
}

// Get retrieves a deal by ID
func (r *dealRepository) Get(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	if err := r.store.Get(ctx, TableDeals, id.String(), &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

// Create stores a new deal
func (r *dealRepository) Create(ctx context.Context, deal *models.Deal) error {
	return r.store.Save(ctx, TableDeals, deal.ID.String(), deal)
}

// Update replaces a deal
func (r *dealRepository) Update(ctx context.Context, deal *models.Deal) error {
	return r.store.Update(ctx, TableDeals, deal.ID.String(), deal)
}

// List retrieves all deals
func (r *dealRepository) List(ctx context.Context) ([]*models.Deal, error) {
	return decodeAll[models.Deal](ctx, r.store, TableDeals)
}

// ListByStatus retrieves deals in one hold status
func (r *dealRepository) ListByStatus(ctx context.Context, status models.HoldStatus) ([]*models.Deal, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Deal
	for _, d := range all {
		if d.HoldStatus == status {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListUpdatedSince retrieves deals changed after since
func (r *dealRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Deal, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Deal
	for _, d := range all {
		if d.UpdatedAt.After(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

// decodeAll lists a table and decodes every row into T
func decodeAll[T any](ctx context.Context, store Store, table string) ([]*T, error) {
	rows, err := store.List(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal(row, &v); err != nil {
			return nil, errors.InternalError(fmt.Sprintf("failed to decode %s record", table), err)
		}
		out = append(out, &v)
	}
	return out, nil
}
