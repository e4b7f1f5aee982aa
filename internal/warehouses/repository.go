package warehouses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/repo"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// Lookup is the read-only warehouse view the ledger depends on.
type Lookup interface {
	FirstActiveForBranch(ctx context.Context, tx *gorm.DB, branchID uuid.UUID) (*models.Warehouse, error)
	FindActive(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Warehouse, error)
}

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FirstActiveForBranch returns the oldest active warehouse of the branch, or
// nil when the branch has none.
func (r *Repository) FirstActiveForBranch(ctx context.Context, tx *gorm.DB, branchID uuid.UUID) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := r.Conn(ctx, tx).
		Where("branch_id = ? AND is_active = ?", branchID, true).
		Order("created_at ASC").
		Order("id ASC").
		Take(&wh).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch warehouse")
	}
	return &wh, nil
}

// FindActive returns the active warehouses among ids.
func (r *Repository) FindActive(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Warehouse, error) {
	out := make(map[uuid.UUID]models.Warehouse, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Warehouse
	if err := r.Conn(ctx, tx).Where("id IN ? AND is_active = ?", ids, true).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load warehouses")
	}
	for _, wh := range rows {
		out[wh.ID] = wh
	}
	return out, nil
}
