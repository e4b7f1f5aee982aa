package sales

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/repo"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, sale *models.Sale) error {
	return r.Conn(ctx, tx).Create(sale).Error
}

// FindByID loads the full sale graph or returns nil.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Sale, error) {
	return r.findOne(ctx, tx, "id = ?", id)
}

// FindByIdempotencyKey returns the sale previously created with key on branchID.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, branchID uuid.UUID, key string) (*models.Sale, error) {
	return r.findOne(ctx, tx, "branch_id = ? AND idempotency_key = ?", branchID, key)
}

func (r *Repository) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*models.Sale, error) {
	var sale models.Sale
	err := r.Conn(ctx, tx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sale_items.line_no ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("sale_payments.line_no ASC") }).
		Where(query, args...).
		Take(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	return &sale, nil
}
