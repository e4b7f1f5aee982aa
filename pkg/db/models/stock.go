package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/enums"
)

// StockBalance is the current on-hand quantity of one product in one warehouse.
// Rows are only mutated by the movement engine while locked.
type StockBalance struct {
	WarehouseID uuid.UUID       `gorm:"column:warehouse_id;type:uuid;primaryKey"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	Qty         decimal.Decimal `gorm:"column:qty;type:numeric(18,4);not null;default:0"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// StockMovement is an immutable ledger entry. Transfers use the from/to
// columns; every other type uses WarehouseID.
type StockMovement struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Type            enums.MovementType  `gorm:"column:type;type:stock_movement_type;not null"`
	WarehouseID     *uuid.UUID          `gorm:"column:warehouse_id;type:uuid"`
	FromWarehouseID *uuid.UUID          `gorm:"column:from_warehouse_id;type:uuid"`
	ToWarehouseID   *uuid.UUID          `gorm:"column:to_warehouse_id;type:uuid"`
	RefType         *string             `gorm:"column:ref_type"`
	RefID           *uuid.UUID          `gorm:"column:ref_id;type:uuid"`
	Note            *string             `gorm:"column:note"`
	CreatedBy       uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	Items           []StockMovementItem `gorm:"foreignKey:MovementID;constraint:OnDelete:RESTRICT"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// StockMovementItem stores a quantity magnitude; Direction carries the sign.
type StockMovementItem struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	MovementID uuid.UUID               `gorm:"column:movement_id;type:uuid;not null;index"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Qty        decimal.Decimal         `gorm:"column:qty;type:numeric(18,4);not null"`
	Direction  enums.MovementDirection `gorm:"column:direction;type:stock_movement_direction;not null"`
	UnitCost   decimal.NullDecimal     `gorm:"column:unit_cost;type:numeric(14,2)"`
}

func (i *StockMovementItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
