package refunds

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/repo"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

// Reader exposes the refund totals the drawer reconciliation needs.
type Reader interface {
	CashRefundTotal(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) (decimal.Decimal, error)
}

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// CashRefundTotal sums cash refund payments of completed refunds whose sale
// was rung on registerID. The result is rounded to cents.
func (r *Repository) CashRefundTotal(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.Conn(ctx, tx).
		Model(&models.RefundPayment{}).
		Joins("JOIN refunds ON refunds.id = refund_payments.refund_id").
		Joins("JOIN sales ON sales.id = refunds.sale_id").
		Where("sales.cash_register_id = ?", registerID).
		Where("refunds.status = ?", enums.RefundStatusCompleted).
		Where("refund_payments.method = ?", enums.PaymentMethodCash).
		Pluck("refund_payments.amount", &amounts).Error
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum cash refunds")
	}

	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total.Round(2), nil
}
