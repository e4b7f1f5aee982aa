package ledgeraudit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Key identifies one balance row.
type Key struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
}

// Source reads the two sides the audit compares.
type Source interface {
	Balances(ctx context.Context) (map[Key]decimal.Decimal, error)
	LedgerSums(ctx context.Context) (map[Key]decimal.Decimal, error)
}

// PGSource reads from postgres through a pgx pool.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

const balancesQuery = `
SELECT warehouse_id::text, product_id::text, qty
FROM stock_balances`

// Transfers store each item once as "out" relative to the source warehouse
// and credit the destination by the same quantity.
const ledgerSumsQuery = `
WITH deltas AS (
    SELECT m.warehouse_id AS warehouse_id, i.product_id,
           CASE WHEN i.direction = 'out' THEN -i.qty ELSE i.qty END AS qty
    FROM stock_movements m
    JOIN stock_movement_items i ON i.movement_id = m.id
    WHERE m.type <> 'transfer'
  UNION ALL
    SELECT m.from_warehouse_id, i.product_id, -i.qty
    FROM stock_movements m
    JOIN stock_movement_items i ON i.movement_id = m.id
    WHERE m.type = 'transfer'
  UNION ALL
    SELECT m.to_warehouse_id, i.product_id, i.qty
    FROM stock_movements m
    JOIN stock_movement_items i ON i.movement_id = m.id
    WHERE m.type = 'transfer'
)
SELECT warehouse_id::text, product_id::text, SUM(qty)
FROM deltas
GROUP BY warehouse_id, product_id`

func (s *PGSource) Balances(ctx context.Context) (map[Key]decimal.Decimal, error) {
	return s.load(ctx, balancesQuery)
}

func (s *PGSource) LedgerSums(ctx context.Context) (map[Key]decimal.Decimal, error) {
	return s.load(ctx, ledgerSumsQuery)
}

func (s *PGSource) load(ctx context.Context, query string) (map[Key]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := make(map[Key]decimal.Decimal)
	for rows.Next() {
		var (
			warehouse, product string
			qty                decimal.Decimal
		)
		if err := rows.Scan(&warehouse, &product, &qty); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		key, err := parseKey(warehouse, product)
		if err != nil {
			return nil, err
		}
		out[key] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

func parseKey(warehouse, product string) (Key, error) {
	wh, err := uuid.Parse(warehouse)
	if err != nil {
		return Key{}, fmt.Errorf("warehouse id %q: %w", warehouse, err)
	}
	pr, err := uuid.Parse(product)
	if err != nil {
		return Key{}, fmt.Errorf("product id %q: %w", product, err)
	}
	return Key{WarehouseID: wh, ProductID: pr}, nil
}
