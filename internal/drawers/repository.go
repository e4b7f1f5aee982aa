package drawers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tillstock/tillstock-backend/internal/repo"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// LockMode selects the row lock taken when reading a register.
type LockMode int

const (
	LockNone LockMode = iota
	// LockShare blocks a concurrent close while a sale is being rung.
	LockShare
	// LockUpdate is taken by close and manual cash movements.
	LockUpdate
)

func (m LockMode) clauses() []clause.Expression {
	switch m {
	case LockShare:
		return []clause.Expression{clause.Locking{Strength: "SHARE"}}
	case LockUpdate:
		return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
	default:
		return nil
	}
}

// Registers is the register lookup the sale orchestrator depends on.
type Registers interface {
	FindOpenForBranch(ctx context.Context, tx *gorm.DB, branchID uuid.UUID, mode LockMode) (*models.CashRegister, error)
}

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindOpenForBranch returns the branch's OPEN register or nil.
func (r *Repository) FindOpenForBranch(ctx context.Context, tx *gorm.DB, branchID uuid.UUID, mode LockMode) (*models.CashRegister, error) {
	var reg models.CashRegister
	err := r.Conn(ctx, tx).
		Clauses(mode.clauses()...).
		Where("branch_id = ? AND status = ?", branchID, enums.CashRegisterStatusOpen).
		Take(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open cash register")
	}
	return &reg, nil
}

// ListOpenedBefore returns OPEN registers opened before cutoff, oldest first.
func (r *Repository) ListOpenedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]models.CashRegister, error) {
	var regs []models.CashRegister
	err := r.Conn(ctx, tx).
		Where("status = ? AND opened_at < ?", enums.CashRegisterStatusOpen, cutoff).
		Order("opened_at ASC").
		Find(&regs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale cash registers")
	}
	return regs, nil
}

// FindByID returns the register or nil.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, mode LockMode) (*models.CashRegister, error) {
	var reg models.CashRegister
	err := r.Conn(ctx, tx).Clauses(mode.clauses()...).Where("id = ?", id).Take(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash register")
	}
	return &reg, nil
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, reg *models.CashRegister) error {
	return r.Conn(ctx, tx).Create(reg).Error
}

// MarkClosed writes the closing columns of reg.
func (r *Repository) MarkClosed(ctx context.Context, tx *gorm.DB, reg *models.CashRegister) error {
	err := r.Conn(ctx, tx).Model(&models.CashRegister{}).
		Where("id = ? AND status = ?", reg.ID, enums.CashRegisterStatusOpen).
		Updates(map[string]any{
			"status":          reg.Status,
			"closing_cash":    reg.ClosingCash,
			"expected_cash":   reg.ExpectedCash,
			"difference_cash": reg.DifferenceCash,
			"closed_at":       reg.ClosedAt,
			"closed_by":       reg.ClosedBy,
			"closing_note":    reg.ClosingNote,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close cash register")
	}
	return nil
}

func (r *Repository) CreateMovement(ctx context.Context, tx *gorm.DB, m *models.CashMovement) error {
	if err := r.Conn(ctx, tx).Create(m).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cash movement")
	}
	return nil
}

// countedSaleStatuses are the sale states whose tenders stayed in the drawer.
func countedSaleStatuses() []enums.SaleStatus {
	out := []enums.SaleStatus{}
	for _, s := range []enums.SaleStatus{enums.SaleStatusPaid, enums.SaleStatusCancelled, enums.SaleStatusRefunded} {
		if s.CountsTowardDrawer() {
			out = append(out, s)
		}
	}
	return out
}

// CashSalesTotal sums CASH payments of counted sales on the register.
func (r *Repository) CashSalesTotal(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.Conn(ctx, tx).Model(&models.SalePayment{}).
		Joins("JOIN sales ON sales.id = sale_payments.sale_id").
		Where("sales.cash_register_id = ? AND sales.status IN ?", registerID, countedSaleStatuses()).
		Where("sale_payments.method = ?", enums.PaymentMethodCash).
		Pluck("sale_payments.amount", &amounts).Error
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum cash sales")
	}
	return sumRounded(amounts), nil
}

// CashChangeTotal sums change given on counted sales that took at least one
// cash payment. Change on card-only sales never came out of the drawer.
func (r *Repository) CashChangeTotal(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.Conn(ctx, tx).Model(&models.Sale{}).
		Where("cash_register_id = ? AND status IN ?", registerID, countedSaleStatuses()).
		Where("EXISTS (SELECT 1 FROM sale_payments sp WHERE sp.sale_id = sales.id AND sp.method = ?)", enums.PaymentMethodCash).
		Pluck("change_total", &amounts).Error
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum cash change")
	}
	return sumRounded(amounts), nil
}

// MovementTotals sums manual cash-in and cash-out on the register.
func (r *Repository) MovementTotals(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) (in, out decimal.Decimal, err error) {
	var rows []models.CashMovement
	if err := r.Conn(ctx, tx).Where("cash_register_id = ?", registerID).Find(&rows).Error; err != nil {
		return decimal.Zero, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash movements")
	}
	var ins, outs []decimal.Decimal
	for _, m := range rows {
		switch m.Type {
		case enums.CashMovementIn:
			ins = append(ins, m.Amount)
		case enums.CashMovementOut:
			outs = append(outs, m.Amount)
		}
	}
	return sumRounded(ins), sumRounded(outs), nil
}

// ListMovements returns the register's manual movements, oldest first.
func (r *Repository) ListMovements(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) ([]models.CashMovement, error) {
	var rows []models.CashMovement
	err := r.Conn(ctx, tx).Where("cash_register_id = ?", registerID).Order("happened_at ASC").Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cash movements")
	}
	return rows, nil
}

func sumRounded(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total.Round(2)
}
