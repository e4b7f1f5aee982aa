package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SaleFactRow mirrors the sale_facts BigQuery schema. Money columns are NUMERIC.
type SaleFactRow struct {
	EventID        string             `bigquery:"event_id"`
	OccurredAt     time.Time          `bigquery:"occurred_at"`
	SaleID         string             `bigquery:"sale_id"`
	BranchID       string             `bigquery:"branch_id"`
	CashRegisterID string             `bigquery:"cash_register_id"`
	UserID         string             `bigquery:"user_id"`
	Status         string             `bigquery:"status"`
	SoldAt         time.Time          `bigquery:"sold_at"`
	Subtotal       *big.Rat           `bigquery:"subtotal"`
	DiscountTotal  *big.Rat           `bigquery:"discount_total"`
	TaxTotal       *big.Rat           `bigquery:"tax_total"`
	Total          *big.Rat           `bigquery:"total"`
	PaidTotal      *big.Rat           `bigquery:"paid_total"`
	ChangeTotal    *big.Rat           `bigquery:"change_total"`
	CashTotal      *big.Rat           `bigquery:"cash_total"`
	ItemCount      int64              `bigquery:"item_count"`
	Items          cbigquery.NullJSON `bigquery:"items"`
	Payments       cbigquery.NullJSON `bigquery:"payments"`
}

// DrawerClosureRow mirrors the drawer_closures BigQuery schema.
type DrawerClosureRow struct {
	EventID        string    `bigquery:"event_id"`
	OccurredAt     time.Time `bigquery:"occurred_at"`
	CashRegisterID string    `bigquery:"cash_register_id"`
	BranchID       string    `bigquery:"branch_id"`
	OpenedBy       string    `bigquery:"opened_by"`
	ClosedBy       string    `bigquery:"closed_by"`
	OpeningCash    *big.Rat  `bigquery:"opening_cash"`
	ExpectedCash   *big.Rat  `bigquery:"expected_cash"`
	CountedCash    *big.Rat  `bigquery:"counted_cash"`
	DifferenceCash *big.Rat  `bigquery:"difference_cash"`
	Variance       string    `bigquery:"variance"`
	OpenedAt       time.Time `bigquery:"opened_at"`
	ClosedAt       time.Time `bigquery:"closed_at"`
	OpenMinutes    int64     `bigquery:"open_minutes"`
}
