package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// Validation reasons raised while building a movement.
const (
	ReasonItemsRequired         = "ITEMS_REQUIRED"
	ReasonProductRequired       = "ITEM_PRODUCT_REQUIRED"
	ReasonQtyZero               = "QTY_ZERO"
	ReasonQtyNotPositive        = "QTY_NOT_POSITIVE"
	ReasonWarehouseRequired     = "WAREHOUSE_REQUIRED"
	ReasonFromWarehouseRequired = "FROM_WAREHOUSE_REQUIRED"
	ReasonToWarehouseRequired   = "TO_WAREHOUSE_REQUIRED"
	ReasonSameWarehouse         = "TRANSFER_SAME_WAREHOUSE"
	ReasonMovementType          = "INVALID_MOVEMENT_TYPE"
	ReasonWarehouseNotFound     = "WAREHOUSE_NOT_FOUND"
	ReasonUserRequired          = "USER_REQUIRED"
	ReasonRefIncomplete         = "REF_INCOMPLETE"
)

// qtyPlaces matches the numeric(18,4) quantity columns.
const qtyPlaces = 4

// Item is one product line of a movement. Qty is signed for adjustments and
// strictly positive for every other movement type. It is kept to the ledger's
// four decimal places.
type Item struct {
	ProductID uuid.UUID
	Qty       decimal.Decimal
	UnitCost  decimal.NullDecimal
}

// Movement is a validated stock movement. Build it with NewReceipt, NewIssue,
// NewAdjustment or NewTransfer; the zero value is not applicable.
type Movement struct {
	kind        enums.MovementType
	warehouseID uuid.UUID
	fromID      uuid.UUID
	toID        uuid.UUID
	items       []Item
	refType     *string
	refID       *uuid.UUID
	note        *string
	createdBy   uuid.UUID
}

func NewReceipt(warehouseID uuid.UUID, items []Item) (Movement, error) {
	return newSingleWarehouse(enums.MovementTypeReceipt, warehouseID, items)
}

func NewIssue(warehouseID uuid.UUID, items []Item) (Movement, error) {
	return newSingleWarehouse(enums.MovementTypeIssue, warehouseID, items)
}

// NewAdjustment accepts signed quantities: positive adds stock, negative removes it.
func NewAdjustment(warehouseID uuid.UUID, items []Item) (Movement, error) {
	return newSingleWarehouse(enums.MovementTypeAdjustment, warehouseID, items)
}

func NewTransfer(fromID, toID uuid.UUID, items []Item) (Movement, error) {
	if fromID == uuid.Nil {
		return Movement{}, pkgerrors.Validation("from_warehouse_id", ReasonFromWarehouseRequired, "from_warehouse_id is required")
	}
	if toID == uuid.Nil {
		return Movement{}, pkgerrors.Validation("to_warehouse_id", ReasonToWarehouseRequired, "to_warehouse_id is required")
	}
	if fromID == toID {
		return Movement{}, pkgerrors.Validation("to_warehouse_id", ReasonSameWarehouse, "transfer requires two different warehouses")
	}
	if err := validateItems(enums.MovementTypeTransfer, items); err != nil {
		return Movement{}, err
	}
	return Movement{kind: enums.MovementTypeTransfer, fromID: fromID, toID: toID, items: cloneItems(items)}, nil
}

func newSingleWarehouse(kind enums.MovementType, warehouseID uuid.UUID, items []Item) (Movement, error) {
	if warehouseID == uuid.Nil {
		return Movement{}, pkgerrors.Validation("warehouse_id", ReasonWarehouseRequired, "warehouse_id is required")
	}
	if err := validateItems(kind, items); err != nil {
		return Movement{}, err
	}
	return Movement{kind: kind, warehouseID: warehouseID, items: cloneItems(items)}, nil
}

func validateItems(kind enums.MovementType, items []Item) error {
	if len(items) == 0 {
		return pkgerrors.Validation("items", ReasonItemsRequired, "at least one item is required")
	}
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.Validation(fmt.Sprintf("items[%d].product_id", i), ReasonProductRequired, "product_id is required")
		}
		field := fmt.Sprintf("items[%d].qty", i)
		q := item.Qty.Round(qtyPlaces)
		if q.IsZero() {
			return pkgerrors.Validation(field, ReasonQtyZero, "qty must be nonzero")
		}
		if kind != enums.MovementTypeAdjustment && !q.IsPositive() {
			return pkgerrors.Validation(field, ReasonQtyNotPositive, "qty must be positive")
		}
	}
	return nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Qty = out[i].Qty.Round(qtyPlaces)
	}
	return out
}

// WithRef links the movement to the document that caused it, e.g. ("sale", saleID).
func (m Movement) WithRef(refType string, refID uuid.UUID) Movement {
	m.refType = &refType
	m.refID = &refID
	return m
}

func (m Movement) WithNote(note string) Movement {
	if note != "" {
		m.note = &note
	}
	return m
}

// RecordedBy stamps the acting user on the movement.
func (m Movement) RecordedBy(userID uuid.UUID) Movement {
	m.createdBy = userID
	return m
}

func (m Movement) Type() enums.MovementType { return m.kind }

func (m Movement) Items() []Item { return cloneItems(m.items) }

// ProductIDs lists the product of every item in input order.
func (m Movement) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(m.items))
	for i, item := range m.items {
		ids[i] = item.ProductID
	}
	return ids
}

// WarehouseIDs lists the warehouses the movement touches.
func (m Movement) WarehouseIDs() []uuid.UUID {
	if m.kind == enums.MovementTypeTransfer {
		return []uuid.UUID{m.fromID, m.toID}
	}
	return []uuid.UUID{m.warehouseID}
}

// Keys returns every balance row the movement will mutate.
func (m Movement) Keys() []BalanceKey {
	deltas := m.Deltas()
	keys := make([]BalanceKey, len(deltas))
	for i, d := range deltas {
		keys[i] = d.Key
	}
	return keys
}

// Deltas returns the signed balance changes of the movement, one per affected
// (warehouse, product) pair and per item.
func (m Movement) Deltas() []Delta {
	return SignedDeltas(m.record())
}

func (m Movement) record() models.StockMovement {
	rec := models.StockMovement{
		Type:      m.kind,
		RefType:   m.refType,
		RefID:     m.refID,
		Note:      m.note,
		CreatedBy: m.createdBy,
	}
	if m.kind == enums.MovementTypeTransfer {
		from, to := m.fromID, m.toID
		rec.FromWarehouseID = &from
		rec.ToWarehouseID = &to
	} else {
		wh := m.warehouseID
		rec.WarehouseID = &wh
	}

	rec.Items = make([]models.StockMovementItem, len(m.items))
	for i, item := range m.items {
		direction := enums.MovementDirectionIn
		switch {
		case m.kind == enums.MovementTypeIssue, m.kind == enums.MovementTypeTransfer:
			direction = enums.MovementDirectionOut
		case m.kind == enums.MovementTypeAdjustment && item.Qty.IsNegative():
			direction = enums.MovementDirectionOut
		}
		rec.Items[i] = models.StockMovementItem{
			ProductID: item.ProductID,
			Qty:       item.Qty.Abs(),
			Direction: direction,
			UnitCost:  item.UnitCost,
		}
	}
	return rec
}

// SignedDeltas folds a persisted movement back into signed balance changes.
// Transfer items are stored once with direction "out" relative to the source
// and contribute to both warehouses.
func SignedDeltas(rec models.StockMovement) []Delta {
	var out []Delta
	for _, item := range rec.Items {
		switch rec.Type {
		case enums.MovementTypeTransfer:
			if rec.FromWarehouseID == nil || rec.ToWarehouseID == nil {
				continue
			}
			out = append(out,
				Delta{Key: BalanceKey{WarehouseID: *rec.FromWarehouseID, ProductID: item.ProductID}, Qty: item.Qty.Neg()},
				Delta{Key: BalanceKey{WarehouseID: *rec.ToWarehouseID, ProductID: item.ProductID}, Qty: item.Qty},
			)
		default:
			if rec.WarehouseID == nil {
				continue
			}
			qty := item.Qty
			if item.Direction == enums.MovementDirectionOut {
				qty = qty.Neg()
			}
			out = append(out, Delta{Key: BalanceKey{WarehouseID: *rec.WarehouseID, ProductID: item.ProductID}, Qty: qty})
		}
	}
	return out
}
