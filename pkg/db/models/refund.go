package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/enums"
)

// Refund returns money against a sale. Created by the returns flow; the ledger only reads it.
type Refund struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SaleID    uuid.UUID          `gorm:"column:sale_id;type:uuid;not null;index"`
	Status    enums.RefundStatus `gorm:"column:status;type:refund_status;not null"`
	Total     decimal.Decimal    `gorm:"column:total;type:numeric(14,2);not null"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	Payments  []RefundPayment    `gorm:"foreignKey:RefundID;constraint:OnDelete:CASCADE"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

type RefundPayment struct {
	ID       uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	RefundID uuid.UUID           `gorm:"column:refund_id;type:uuid;not null;index"`
	Method   enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Amount   decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
}

func (p *RefundPayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
