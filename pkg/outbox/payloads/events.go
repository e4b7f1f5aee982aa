package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockMovementItem is one product line of a recorded movement. Qty is a
// magnitude; Direction is relative to the warehouse it was applied to.
type StockMovementItem struct {
	ProductID   uuid.UUID       `json:"productId"`
	WarehouseID uuid.UUID       `json:"warehouseId"`
	Qty         decimal.Decimal `json:"qty"`
	Direction   string          `json:"direction"`
}

type StockMovementRecordedEvent struct {
	MovementID      uuid.UUID           `json:"movementId"`
	Type            string              `json:"type"`
	WarehouseID     *uuid.UUID          `json:"warehouseId,omitempty"`
	FromWarehouseID *uuid.UUID          `json:"fromWarehouseId,omitempty"`
	ToWarehouseID   *uuid.UUID          `json:"toWarehouseId,omitempty"`
	RefType         *string             `json:"refType,omitempty"`
	RefID           *uuid.UUID          `json:"refId,omitempty"`
	CreatedBy       uuid.UUID           `json:"createdBy"`
	Items           []StockMovementItem `json:"items"`
}

type SaleItem struct {
	ProductID   uuid.UUID       `json:"productId"`
	WarehouseID uuid.UUID       `json:"warehouseId"`
	ProductName string          `json:"productName"`
	ProductSKU  *string         `json:"productSku,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type SalePayment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

type SaleCompletedEvent struct {
	SaleID         uuid.UUID       `json:"saleId"`
	BranchID       uuid.UUID       `json:"branchId"`
	CashRegisterID uuid.UUID       `json:"cashRegisterId"`
	UserID         uuid.UUID       `json:"userId"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountTotal  decimal.Decimal `json:"discountTotal"`
	TaxTotal       decimal.Decimal `json:"taxTotal"`
	Total          decimal.Decimal `json:"total"`
	PaidTotal      decimal.Decimal `json:"paidTotal"`
	ChangeTotal    decimal.Decimal `json:"changeTotal"`
	SoldAt         time.Time       `json:"soldAt"`
	Items          []SaleItem      `json:"items"`
	Payments       []SalePayment   `json:"payments"`
}

type CashRegisterOpenedEvent struct {
	CashRegisterID uuid.UUID       `json:"cashRegisterId"`
	BranchID       uuid.UUID       `json:"branchId"`
	OpenedBy       uuid.UUID       `json:"openedBy"`
	OpeningCash    decimal.Decimal `json:"openingCash"`
	OpenedAt       time.Time       `json:"openedAt"`
}

type CashRegisterClosedEvent struct {
	CashRegisterID uuid.UUID       `json:"cashRegisterId"`
	BranchID       uuid.UUID       `json:"branchId"`
	OpenedBy       uuid.UUID       `json:"openedBy"`
	ClosedBy       uuid.UUID       `json:"closedBy"`
	OpeningCash    decimal.Decimal `json:"openingCash"`
	ExpectedCash   decimal.Decimal `json:"expectedCash"`
	CountedCash    decimal.Decimal `json:"countedCash"`
	DifferenceCash decimal.Decimal `json:"differenceCash"`
	Variance       string          `json:"variance"`
	OpenedAt       time.Time       `json:"openedAt"`
	ClosedAt       time.Time       `json:"closedAt"`
}
