package products

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/repo"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// Lookup resolves product identity for the ledger. Catalog CRUD lives elsewhere.
type Lookup interface {
	FindByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByIDs loads the products with the given ids. Missing ids are simply
// absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	unique := dedupe(ids)
	if len(unique) == 0 {
		return out, nil
	}

	var rows []models.Product
	if err := r.Conn(ctx, tx).Where("id IN ?", unique).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
