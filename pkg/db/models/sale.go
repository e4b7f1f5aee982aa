package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/enums"
)

// Sale is a completed point-of-sale transaction.
type Sale struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BranchID       uuid.UUID        `gorm:"column:branch_id;type:uuid;not null;uniqueIndex:ux_sales_branch_idempotency,priority:1"`
	CashRegisterID uuid.UUID        `gorm:"column:cash_register_id;type:uuid;not null;index"`
	UserID         uuid.UUID        `gorm:"column:user_id;type:uuid;not null"`
	Status         enums.SaleStatus `gorm:"column:status;type:sale_status;not null"`
	Subtotal       decimal.Decimal  `gorm:"column:subtotal;type:numeric(14,2);not null"`
	DiscountTotal  decimal.Decimal  `gorm:"column:discount_total;type:numeric(14,2);not null;default:0"`
	TaxTotal       decimal.Decimal  `gorm:"column:tax_total;type:numeric(14,2);not null;default:0"`
	Total          decimal.Decimal  `gorm:"column:total;type:numeric(14,2);not null"`
	PaidTotal      decimal.Decimal  `gorm:"column:paid_total;type:numeric(14,2);not null"`
	ChangeTotal    decimal.Decimal  `gorm:"column:change_total;type:numeric(14,2);not null;default:0"`
	IdempotencyKey *string          `gorm:"column:idempotency_key;uniqueIndex:ux_sales_branch_idempotency,priority:2"`
	SoldAt         time.Time        `gorm:"column:sold_at;not null"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	Items          []SaleItem       `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
	Payments       []SalePayment    `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
}

func (s *Sale) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// HasCashPayment reports whether any tender on the sale was cash.
func (s Sale) HasCashPayment() bool {
	for _, p := range s.Payments {
		if p.Method == enums.PaymentMethodCash {
			return true
		}
	}
	return false
}

// SaleItem snapshots product name and sku at time of sale.
type SaleItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SaleID      uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index"`
	LineNo      int             `gorm:"column:line_no;not null"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	WarehouseID uuid.UUID       `gorm:"column:warehouse_id;type:uuid;not null"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(14,2);not null;default:0"`
	Tax         decimal.Decimal `gorm:"column:tax;type:numeric(14,2);not null;default:0"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	ProductSKU  *string         `gorm:"column:product_sku"`
}

func (i *SaleItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// SalePayment is one tender applied to a sale.
type SalePayment struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SaleID    uuid.UUID           `gorm:"column:sale_id;type:uuid;not null;index"`
	LineNo    int                 `gorm:"column:line_no;not null"`
	Method    enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Amount    decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	Reference *string             `gorm:"column:reference"`
}

func (p *SalePayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
