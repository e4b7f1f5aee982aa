package drawers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
)

type RegisterDTO struct {
	ID             uuid.UUID        `json:"id"`
	BranchID       uuid.UUID        `json:"branch_id"`
	Status         string           `json:"status"`
	OpeningCash    decimal.Decimal  `json:"opening_cash"`
	ClosingCash    *decimal.Decimal `json:"closing_cash,omitempty"`
	ExpectedCash   *decimal.Decimal `json:"expected_cash,omitempty"`
	DifferenceCash *decimal.Decimal `json:"difference_cash,omitempty"`
	Variance       string           `json:"variance,omitempty"`
	OpenedAt       time.Time        `json:"opened_at"`
	OpenedBy       uuid.UUID        `json:"opened_by"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	ClosedBy       *uuid.UUID       `json:"closed_by,omitempty"`
	OpeningNote    *string          `json:"opening_note,omitempty"`
	ClosingNote    *string          `json:"closing_note,omitempty"`
}

type CashMovementDTO struct {
	ID             uuid.UUID       `json:"id"`
	CashRegisterID uuid.UUID       `json:"cash_register_id"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	Note           *string         `json:"note,omitempty"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	HappenedAt     time.Time       `json:"happened_at"`
}

// SummaryDTO is every term of the expected-cash formula for one register.
type SummaryDTO struct {
	RegisterID     uuid.UUID         `json:"register_id"`
	Status         string            `json:"status"`
	OpeningCash    decimal.Decimal   `json:"opening_cash"`
	CashSales      decimal.Decimal   `json:"cash_sales"`
	ChangeGiven    decimal.Decimal   `json:"change_given"`
	CashRefunds    decimal.Decimal   `json:"cash_refunds"`
	CashIn         decimal.Decimal   `json:"cash_in"`
	CashOut        decimal.Decimal   `json:"cash_out"`
	ExpectedCash   decimal.Decimal   `json:"expected_cash"`
	CountedCash    *decimal.Decimal  `json:"counted_cash,omitempty"`
	DifferenceCash *decimal.Decimal  `json:"difference_cash,omitempty"`
	Movements      []CashMovementDTO `json:"movements"`
}

func nullable(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func registerDTO(r models.CashRegister, variance string) RegisterDTO {
	return RegisterDTO{
		ID:             r.ID,
		BranchID:       r.BranchID,
		Status:         string(r.Status),
		OpeningCash:    r.OpeningCash,
		ClosingCash:    nullable(r.ClosingCash),
		ExpectedCash:   nullable(r.ExpectedCash),
		DifferenceCash: nullable(r.DifferenceCash),
		Variance:       variance,
		OpenedAt:       r.OpenedAt,
		OpenedBy:       r.OpenedBy,
		ClosedAt:       r.ClosedAt,
		ClosedBy:       r.ClosedBy,
		OpeningNote:    r.OpeningNote,
		ClosingNote:    r.ClosingNote,
	}
}

func movementDTO(m models.CashMovement) CashMovementDTO {
	return CashMovementDTO{
		ID:             m.ID,
		CashRegisterID: m.CashRegisterID,
		Type:           string(m.Type),
		Amount:         m.Amount,
		Reason:         m.Reason,
		Note:           m.Note,
		CreatedBy:      m.CreatedBy,
		HappenedAt:     m.HappenedAt,
	}
}
