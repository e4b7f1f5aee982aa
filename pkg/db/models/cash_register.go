package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/enums"
)

// CashRegister is one drawer session of a branch. At most one is OPEN per branch.
type CashRegister struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	BranchID       uuid.UUID                `gorm:"column:branch_id;type:uuid;not null;index"`
	Status         enums.CashRegisterStatus `gorm:"column:status;type:cash_register_status;not null"`
	OpeningCash    decimal.Decimal          `gorm:"column:opening_cash;type:numeric(14,2);not null"`
	ClosingCash    decimal.NullDecimal      `gorm:"column:closing_cash;type:numeric(14,2)"`
	ExpectedCash   decimal.NullDecimal      `gorm:"column:expected_cash;type:numeric(14,2)"`
	DifferenceCash decimal.NullDecimal      `gorm:"column:difference_cash;type:numeric(14,2)"`
	OpenedAt       time.Time                `gorm:"column:opened_at;not null"`
	OpenedBy       uuid.UUID                `gorm:"column:opened_by;type:uuid;not null"`
	ClosedAt       *time.Time               `gorm:"column:closed_at"`
	ClosedBy       *uuid.UUID               `gorm:"column:closed_by;type:uuid"`
	OpeningNote    *string                  `gorm:"column:opening_note"`
	ClosingNote    *string                  `gorm:"column:closing_note"`
}

func (r *CashRegister) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// CashMovement is a manual cash-in or cash-out on an open register.
type CashMovement struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CashRegisterID uuid.UUID              `gorm:"column:cash_register_id;type:uuid;not null;index"`
	Type           enums.CashMovementType `gorm:"column:type;type:cash_movement_type;not null"`
	Amount         decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	Reason         string                 `gorm:"column:reason;not null"`
	Note           *string                `gorm:"column:note"`
	CreatedBy      uuid.UUID              `gorm:"column:created_by;type:uuid;not null"`
	HappenedAt     time.Time              `gorm:"column:happened_at;not null"`
}

func (m *CashMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
