package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// BalanceKey addresses one stock_balances row.
type BalanceKey struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
}

func (k BalanceKey) less(o BalanceKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return strings.Compare(k.WarehouseID.String(), o.WarehouseID.String()) < 0
	}
	return strings.Compare(k.ProductID.String(), o.ProductID.String()) < 0
}

// Delta is a signed change to one balance row.
type Delta struct {
	Key BalanceKey
	Qty decimal.Decimal
}

// LockedBalances is the set of balance rows held under row locks for the
// current transaction. It is only produced by Lock.
type LockedBalances struct {
	tx    *gorm.DB
	order []BalanceKey
	qty   map[BalanceKey]decimal.Decimal
}

// Lock makes sure a balance row exists for every key and locks them all with
// SELECT ... FOR UPDATE. Keys are de-duplicated and locked in (warehouse,
// product) order so concurrent callers never deadlock on each other.
func Lock(ctx context.Context, tx *gorm.DB, keys []BalanceKey) (*LockedBalances, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	ordered := sortKeys(keys)
	if len(ordered) == 0 {
		return nil, pkgerrors.Validation("items", ReasonItemsRequired, "at least one item is required")
	}
	conn := tx.WithContext(ctx)

	seed := make([]models.StockBalance, len(ordered))
	now := time.Now().UTC()
	for i, key := range ordered {
		seed[i] = models.StockBalance{WarehouseID: key.WarehouseID, ProductID: key.ProductID, Qty: decimal.Zero, UpdatedAt: now}
	}
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed stock balances")
	}

	locked := &LockedBalances{tx: tx, order: ordered, qty: make(map[BalanceKey]decimal.Decimal, len(ordered))}
	for _, key := range ordered {
		var row models.StockBalance
		err := conn.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("warehouse_id = ? AND product_id = ?", key.WarehouseID, key.ProductID).
			Take(&row).Error
		if err != nil {
			return nil, lockError(err)
		}
		locked.qty[key] = row.Qty
	}
	return locked, nil
}

func lockError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stock balance vanished while locking")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock balance")
}

// Qty returns the locked quantity for key.
func (l *LockedBalances) Qty(key BalanceKey) (decimal.Decimal, bool) {
	q, ok := l.qty[key]
	return q, ok
}

// Keys returns the locked keys in lock order.
func (l *LockedBalances) Keys() []BalanceKey {
	out := make([]BalanceKey, len(l.order))
	copy(out, l.order)
	return out
}

// Validate fails with INSUFFICIENT_STOCK when the outflow of any key exceeds
// its locked balance. Outflows are summed per key and never offset by inflows
// in the same call, so [-5, +5] against 0 is rejected. Keys are checked in
// lock order so the reported failure is deterministic.
func (l *LockedBalances) Validate(deltas []Delta) error {
	if _, err := l.net(deltas); err != nil {
		return err
	}
	outflow := make(map[BalanceKey]decimal.Decimal, len(deltas))
	for _, d := range deltas {
		if d.Qty.IsNegative() {
			outflow[d.Key] = outflow[d.Key].Add(d.Qty.Neg())
		}
	}
	for _, key := range l.order {
		needed, ok := outflow[key]
		if !ok {
			continue
		}
		current := l.qty[key]
		if current.LessThan(needed) {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{
				"warehouse_id": key.WarehouseID.String(),
				"product_id":   key.ProductID.String(),
				"current":      current.String(),
				"needed":       needed.String(),
			})
		}
	}
	return nil
}

func (l *LockedBalances) net(deltas []Delta) (map[BalanceKey]decimal.Decimal, error) {
	net := make(map[BalanceKey]decimal.Decimal, len(deltas))
	for _, d := range deltas {
		if _, ok := l.qty[d.Key]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock balance not locked").WithDetails(map[string]any{
				"warehouse_id": d.Key.WarehouseID.String(),
				"product_id":   d.Key.ProductID.String(),
			})
		}
		net[d.Key] = net[d.Key].Add(d.Qty)
	}
	return net, nil
}

// Apply persists m (movement row plus items) and writes the resulting balances
// of the locked rows. It re-runs Validate first, so callers that validated
// earlier get the same answer and callers that did not are still protected.
func (l *LockedBalances) Apply(ctx context.Context, m Movement) (*models.StockMovement, error) {
	if m.kind == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "movement not constructed")
	}
	if m.createdBy == uuid.Nil {
		return nil, pkgerrors.Validation("created_by", ReasonUserRequired, "acting user is required")
	}
	deltas := m.Deltas()
	if err := l.Validate(deltas); err != nil {
		return nil, err
	}
	net, err := l.net(deltas)
	if err != nil {
		return nil, err
	}

	conn := l.tx.WithContext(ctx)
	now := time.Now().UTC()
	rec := m.record()
	rec.CreatedAt = now
	if err := conn.Create(&rec).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock movement")
	}

	for _, key := range l.order {
		change, ok := net[key]
		if !ok || change.IsZero() {
			continue
		}
		next := l.qty[key].Add(change)
		err := conn.Model(&models.StockBalance{}).
			Where("warehouse_id = ? AND product_id = ?", key.WarehouseID, key.ProductID).
			Updates(map[string]any{"qty": next, "updated_at": now}).Error
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock balance")
		}
		l.qty[key] = next
	}
	return &rec, nil
}

func sortKeys(keys []BalanceKey) []BalanceKey {
	seen := make(map[BalanceKey]struct{}, len(keys))
	out := make([]BalanceKey, 0, len(keys))
	for _, k := range keys {
		if k.WarehouseID == uuid.Nil || k.ProductID == uuid.Nil {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
