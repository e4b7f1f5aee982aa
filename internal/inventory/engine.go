package inventory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/products"
	"github.com/tillstock/tillstock-backend/internal/warehouses"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
)

// Engine applies movements inside a caller-owned transaction. It never opens
// or retries transactions itself.
type Engine struct {
	products   products.Lookup
	warehouses warehouses.Lookup
	metrics    *metrics.LedgerMetrics
}

func NewEngine(productLookup products.Lookup, warehouseLookup warehouses.Lookup, m *metrics.LedgerMetrics) (*Engine, error) {
	if productLookup == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if warehouseLookup == nil {
		return nil, fmt.Errorf("warehouse lookup required")
	}
	return &Engine{products: productLookup, warehouses: warehouseLookup, metrics: m}, nil
}

// Apply checks the referenced products and warehouses, locks the affected
// balances, validates sufficiency and persists the movement. Any error leaves
// tx to be rolled back by the caller.
func (e *Engine) Apply(ctx context.Context, tx *gorm.DB, m Movement) (*models.StockMovement, error) {
	if _, err := products.RequireStockable(ctx, e.products, tx, "items", m.ProductIDs()); err != nil {
		return nil, err
	}
	if err := e.requireWarehouses(ctx, tx, m); err != nil {
		return nil, err
	}

	locked, err := Lock(ctx, tx, m.Keys())
	if err != nil {
		return nil, err
	}
	if err := locked.Validate(m.Deltas()); err != nil {
		e.observeRejection(err)
		return nil, err
	}
	rec, err := locked.Apply(ctx, m)
	if err != nil {
		e.observeRejection(err)
		return nil, err
	}
	return rec, nil
}

// ObserveRejection counts insufficient-stock failures raised outside Apply.
func (e *Engine) ObserveRejection(err error) {
	e.observeRejection(err)
}

func (e *Engine) observeRejection(err error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		e.metrics.InsufficientStock()
	}
}

func (e *Engine) requireWarehouses(ctx context.Context, tx *gorm.DB, m Movement) error {
	ids := m.WarehouseIDs()
	found, err := e.warehouses.FindActive(ctx, tx, ids)
	if err != nil {
		return err
	}
	fields := []string{"warehouse_id"}
	if len(ids) == 2 {
		fields = []string{"from_warehouse_id", "to_warehouse_id"}
	}
	for i, id := range ids {
		if _, ok := found[id]; !ok {
			return pkgerrors.Validation(fields[i], ReasonWarehouseNotFound, "warehouse not found or inactive")
		}
	}
	return nil
}
