package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// Reasons attached to VALIDATION_ERROR details when a product cannot carry stock.
const (
	ReasonProductNotFound   = "PRODUCT_NOT_FOUND"
	ReasonProductInactive   = "PRODUCT_INACTIVE"
	ReasonProductNotTracked = "PRODUCT_NOT_STOCK_TRACKED"
)

// RequireStockable loads ids and fails with a validation error for the first
// product that is missing, inactive or not stock-tracked. field is the detail
// prefix, so "items" yields "items[2].product_id".
func RequireStockable(ctx context.Context, lookup Lookup, tx *gorm.DB, field string, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	found, err := lookup.FindByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		name := fmt.Sprintf("%s[%d].product_id", field, i)
		p, ok := found[id]
		switch {
		case !ok:
			return nil, pkgerrors.Validation(name, ReasonProductNotFound, "product not found")
		case !p.IsActive:
			return nil, pkgerrors.Validation(name, ReasonProductInactive, "product is inactive")
		case !p.TrackStock:
			return nil, pkgerrors.Validation(name, ReasonProductNotTracked, "product does not track stock")
		}
	}
	return found, nil
}
