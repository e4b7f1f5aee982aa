package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/db/dbtest"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
)

func seedSale(t *testing.T, conn *gorm.DB, branchID, registerID uuid.UUID) models.Sale {
	t.Helper()
	sale := models.Sale{
		BranchID:       branchID,
		CashRegisterID: registerID,
		UserID:         uuid.New(),
		Status:         enums.SaleStatusRefunded,
		Subtotal:       decimal.RequireFromString("50"),
		Total:          decimal.RequireFromString("50"),
		PaidTotal:      decimal.RequireFromString("50"),
		SoldAt:         time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&sale).Error)
	return sale
}

func seedRefund(t *testing.T, conn *gorm.DB, saleID uuid.UUID, status enums.RefundStatus, payments ...models.RefundPayment) {
	t.Helper()
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	refund := models.Refund{SaleID: saleID, Status: status, Total: total, Payments: payments}
	require.NoError(t, conn.Create(&refund).Error)
}

func TestCashRefundTotalCountsCompletedCashOnly(t *testing.T) {
	conn := dbtest.Open(t)
	branch, _ := dbtest.SeedBranch(t, conn, "center")
	registerID := uuid.New()
	otherRegister := uuid.New()

	sale := seedSale(t, conn, branch.ID, registerID)
	other := seedSale(t, conn, branch.ID, otherRegister)

	seedRefund(t, conn, sale.ID, enums.RefundStatusCompleted,
		models.RefundPayment{Method: enums.PaymentMethodCash, Amount: decimal.RequireFromString("12.50")},
		models.RefundPayment{Method: enums.PaymentMethodCard, Amount: decimal.RequireFromString("7.00")},
	)
	seedRefund(t, conn, sale.ID, enums.RefundStatusCompleted,
		models.RefundPayment{Method: enums.PaymentMethodCash, Amount: decimal.RequireFromString("2.25")},
	)
	seedRefund(t, conn, sale.ID, enums.RefundStatusPending,
		models.RefundPayment{Method: enums.PaymentMethodCash, Amount: decimal.RequireFromString("99")},
	)
	seedRefund(t, conn, other.ID, enums.RefundStatusCompleted,
		models.RefundPayment{Method: enums.PaymentMethodCash, Amount: decimal.RequireFromString("40")},
	)

	repo := NewRepository(conn)
	total, err := repo.CashRefundTotal(context.Background(), nil, registerID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("14.75")), "got %s", total)

	empty, err := repo.CashRefundTotal(context.Background(), nil, uuid.New())
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}
