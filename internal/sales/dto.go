package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
)

type SaleDTO struct {
	ID             uuid.UUID        `json:"id"`
	BranchID       uuid.UUID        `json:"branch_id"`
	CashRegisterID uuid.UUID        `json:"cash_register_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Status         string           `json:"status"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DiscountTotal  decimal.Decimal  `json:"discount_total"`
	TaxTotal       decimal.Decimal  `json:"tax_total"`
	Total          decimal.Decimal  `json:"total"`
	PaidTotal      decimal.Decimal  `json:"paid_total"`
	ChangeTotal    decimal.Decimal  `json:"change_total"`
	IdempotencyKey *string          `json:"idempotency_key,omitempty"`
	SoldAt         time.Time        `json:"sold_at"`
	Items          []SaleItemDTO    `json:"items"`
	Payments       []SalePaymentDTO `json:"payments"`
}

type SaleItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  *string         `json:"product_sku,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type SalePaymentDTO struct {
	ID        uuid.UUID       `json:"id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference *string         `json:"reference,omitempty"`
}

func saleDTO(s models.Sale) SaleDTO {
	dto := SaleDTO{
		ID:             s.ID,
		BranchID:       s.BranchID,
		CashRegisterID: s.CashRegisterID,
		UserID:         s.UserID,
		Status:         string(s.Status),
		Subtotal:       s.Subtotal,
		DiscountTotal:  s.DiscountTotal,
		TaxTotal:       s.TaxTotal,
		Total:          s.Total,
		PaidTotal:      s.PaidTotal,
		ChangeTotal:    s.ChangeTotal,
		IdempotencyKey: s.IdempotencyKey,
		SoldAt:         s.SoldAt,
		Items:          make([]SaleItemDTO, 0, len(s.Items)),
		Payments:       make([]SalePaymentDTO, 0, len(s.Payments)),
	}
	for _, item := range s.Items {
		dto.Items = append(dto.Items, SaleItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			WarehouseID: item.WarehouseID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Tax:         item.Tax,
			LineTotal:   item.LineTotal,
		})
	}
	for _, p := range s.Payments {
		dto.Payments = append(dto.Payments, SalePaymentDTO{
			ID:        p.ID,
			Method:    string(p.Method),
			Amount:    p.Amount,
			Reference: p.Reference,
		})
	}
	return dto
}
