package sales

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/warehouses"
)

// WarehouseResolver picks the warehouse a sale line is issued from. ok=false
// passes the decision to the next resolver.
type WarehouseResolver func(ctx context.Context, tx *gorm.DB, branchID uuid.UUID, item ItemInput) (id uuid.UUID, ok bool, err error)

// ExplicitWarehouse uses the warehouse named on the line itself.
func ExplicitWarehouse() WarehouseResolver {
	return func(_ context.Context, _ *gorm.DB, _ uuid.UUID, item ItemInput) (uuid.UUID, bool, error) {
		if item.WarehouseID == nil || *item.WarehouseID == uuid.Nil {
			return uuid.Nil, false, nil
		}
		return *item.WarehouseID, true, nil
	}
}

// SessionWarehouse uses the active warehouse carried on the caller's session,
// as long as it is active and belongs to the sale's branch.
func SessionWarehouse(lookup warehouses.Lookup, fromContext func(context.Context) (uuid.UUID, bool)) WarehouseResolver {
	return func(ctx context.Context, tx *gorm.DB, branchID uuid.UUID, _ ItemInput) (uuid.UUID, bool, error) {
		if fromContext == nil {
			return uuid.Nil, false, nil
		}
		id, ok := fromContext(ctx)
		if !ok || id == uuid.Nil {
			return uuid.Nil, false, nil
		}
		found, err := lookup.FindActive(ctx, tx, []uuid.UUID{id})
		if err != nil {
			return uuid.Nil, false, err
		}
		if wh, ok := found[id]; !ok || wh.BranchID != branchID {
			return uuid.Nil, false, nil
		}
		return id, true, nil
	}
}

// BranchDefaultWarehouse falls back to the branch's oldest active warehouse.
func BranchDefaultWarehouse(lookup warehouses.Lookup) WarehouseResolver {
	return func(ctx context.Context, tx *gorm.DB, branchID uuid.UUID, _ ItemInput) (uuid.UUID, bool, error) {
		wh, err := lookup.FirstActiveForBranch(ctx, tx, branchID)
		if err != nil || wh == nil {
			return uuid.Nil, false, err
		}
		return wh.ID, true, nil
	}
}

// DefaultResolvers is the standard chain: line, then session, then branch default.
func DefaultResolvers(lookup warehouses.Lookup, fromContext func(context.Context) (uuid.UUID, bool)) []WarehouseResolver {
	return []WarehouseResolver{
		ExplicitWarehouse(),
		SessionWarehouse(lookup, fromContext),
		BranchDefaultWarehouse(lookup),
	}
}

func resolveWarehouse(ctx context.Context, tx *gorm.DB, chain []WarehouseResolver, branchID uuid.UUID, item ItemInput) (uuid.UUID, bool, error) {
	for _, resolve := range chain {
		id, ok, err := resolve(ctx, tx, branchID, item)
		if err != nil {
			return uuid.Nil, false, err
		}
		if ok {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}
