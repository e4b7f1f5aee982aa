package drawers

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/refunds"
	"github.com/tillstock/tillstock-backend/pkg/db"
	"github.com/tillstock/tillstock-backend/pkg/db/dbtest"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
)

type harness struct {
	conn    *gorm.DB
	svc     Service
	reg     *prometheus.Registry
	branch  models.Branch
	cashier uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	registry := prometheus.NewRegistry()

	svc, err := NewService(Deps{
		Tx:                db.NewFromGorm(conn),
		Registers:         NewRepository(conn),
		Refunds:           refunds.NewRepository(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:           metrics.NewLedgerMetrics(registry),
		Logger:            logg,
		VarianceTolerance: decimal.RequireFromString("0.05"),
	})
	require.NoError(t, err)

	branch, _ := dbtest.SeedBranch(t, conn, "harbour")
	return &harness{conn: conn, svc: svc, reg: registry, branch: branch, cashier: uuid.New()}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func (h *harness) open(t *testing.T, opening string) *RegisterDTO {
	t.Helper()
	reg, err := h.svc.Open(context.Background(), OpenInput{BranchID: h.branch.ID, UserID: h.cashier, Role: "cashier", OpeningCash: dec(opening)})
	require.NoError(t, err)
	return reg
}

type tender struct {
	method enums.PaymentMethod
	amount string
}

// ringSale inserts a finished sale row directly; the drawer only reads them.
func (h *harness) ringSale(t *testing.T, registerID uuid.UUID, status enums.SaleStatus, total, change string, tenders ...tender) models.Sale {
	t.Helper()
	paid := decimal.Zero
	payments := make([]models.SalePayment, 0, len(tenders))
	for i, tn := range tenders {
		paid = paid.Add(dec(tn.amount))
		payments = append(payments, models.SalePayment{LineNo: i + 1, Method: tn.method, Amount: dec(tn.amount)})
	}
	sale := models.Sale{
		BranchID:       h.branch.ID,
		CashRegisterID: registerID,
		UserID:         h.cashier,
		Status:         status,
		Subtotal:       dec(total),
		DiscountTotal:  decimal.Zero,
		TaxTotal:       decimal.Zero,
		Total:          dec(total),
		PaidTotal:      paid,
		ChangeTotal:    dec(change),
		SoldAt:         time.Now().UTC(),
		Payments:       payments,
	}
	require.NoError(t, h.conn.Create(&sale).Error)
	return sale
}

func (h *harness) refund(t *testing.T, saleID uuid.UUID, status enums.RefundStatus, method enums.PaymentMethod, amount string) {
	t.Helper()
	r := models.Refund{
		SaleID:   saleID,
		Status:   status,
		Total:    dec(amount),
		Payments: []models.RefundPayment{{Method: method, Amount: dec(amount)}},
	}
	require.NoError(t, h.conn.Create(&r).Error)
}

func (h *harness) closeCount(t *testing.T, variance string) float64 {
	t.Helper()
	families, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "tillstock_drawer_closes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m, "variance", variance) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestOpenRejectsSecondOpenRegister(t *testing.T) {
	h := newHarness(t)
	first := h.open(t, "100")
	assert.Equal(t, string(enums.CashRegisterStatusOpen), first.Status)
	assert.True(t, first.OpeningCash.Equal(dec("100")))

	_, err := h.svc.Open(context.Background(), OpenInput{BranchID: h.branch.ID, UserID: h.cashier, OpeningCash: dec("50")})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCashRegisterAlreadyOpen, typed.Code())
	assert.Equal(t, first.ID.String(), typed.Details().(map[string]any)["cash_register_id"])

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventCashRegisterOpened, events[0].EventType)
	assert.Equal(t, first.ID, events[0].AggregateID)

	got, err := h.svc.GetOpen(context.Background(), h.branch.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestOpenRegisterIndexBacksTheCheck(t *testing.T) {
	h := newHarness(t)
	h.open(t, "0")

	dup := models.CashRegister{BranchID: h.branch.ID, Status: enums.CashRegisterStatusOpen, OpeningCash: decimal.Zero, OpenedAt: time.Now().UTC(), OpenedBy: h.cashier}
	err := NewRepository(h.conn).Create(context.Background(), nil, &dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, uniqueOpenRegisterIdx, "cash_registers.branch_id"))

	closed := dup
	closed.ID = uuid.Nil
	closed.Status = enums.CashRegisterStatusClosed
	require.NoError(t, NewRepository(h.conn).Create(context.Background(), nil, &closed))
}

func TestOpenValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Open(context.Background(), OpenInput{BranchID: h.branch.ID, UserID: h.cashier, OpeningCash: dec("-1")})
	require.Error(t, err)
	assert.Equal(t, ReasonOpeningCashNegative, pkgerrors.As(err).Details().(map[string]any)["reason"])

	_, err = h.svc.Open(context.Background(), OpenInput{UserID: h.cashier})
	assert.Equal(t, ReasonBranchRequired, pkgerrors.As(err).Details().(map[string]any)["reason"])
}

func TestCloseSaleWithChangeBalances(t *testing.T) {
	h := newHarness(t)
	reg := h.open(t, "100")
	h.ringSale(t, reg.ID, enums.SaleStatusPaid, "50", "50", tender{enums.PaymentMethodCash, "100"})

	closed, err := h.svc.Close(context.Background(), CloseInput{RegisterID: reg.ID, UserID: h.cashier, CountedCash: decPtr("150")})
	require.NoError(t, err)
	assert.Equal(t, string(enums.CashRegisterStatusClosed), closed.Status)
	require.NotNil(t, closed.ExpectedCash)
	assert.True(t, closed.ExpectedCash.Equal(dec("150")), "expected %s", closed.ExpectedCash)
	assert.True(t, closed.DifferenceCash.IsZero())
	assert.True(t, closed.ClosingCash.Equal(dec("150")))
	assert.Equal(t, string(enums.DrawerVarianceBalanced), closed.Variance)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, h.cashier, *closed.ClosedBy)
	assert.Equal(t, float64(1), h.closeCount(t, string(enums.DrawerVarianceBalanced)))

	var stored models.CashRegister
	require.NoError(t, h.conn.Where("id = ?", reg.ID).Take(&stored).Error)
	assert.Equal(t, enums.CashRegisterStatusClosed, stored.Status)
	assert.True(t, stored.ExpectedCash.Decimal.Equal(dec("150")))

	var event models.OutboxEvent
	require.NoError(t, h.conn.Where("event_type = ?", enums.EventCashRegisterClosed).Take(&event).Error)
	var envelope struct {
		Data struct {
			ExpectedCash string `json:"expectedCash"`
			Variance     string `json:"variance"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	assert.Equal(t, "150", envelope.Data.ExpectedCash)
	assert.Equal(t, string(enums.DrawerVarianceBalanced), envelope.Data.Variance)

	_, err = h.svc.GetOpen(context.Background(), h.branch.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	reopened := h.open(t, "80")
	assert.NotEqual(t, reg.ID, reopened.ID)
}

func TestExpectedCashFormula(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.open(t, "100")

	mixed := h.ringSale(t, reg.ID, enums.SaleStatusPaid, "45", "5",
		tender{enums.PaymentMethodCash, "30"}, tender{enums.PaymentMethodCard, "20"})
	h.ringSale(t, reg.ID, enums.SaleStatusPaid, "10", "2", tender{enums.PaymentMethodCard, "12"})
	h.ringSale(t, reg.ID, enums.SaleStatusCancelled, "40", "0", tender{enums.PaymentMethodCash, "40"})
	refunded := h.ringSale(t, reg.ID, enums.SaleStatusRefunded, "12.5", "0", tender{enums.PaymentMethodCash, "12.5"})

	h.refund(t, mixed.ID, enums.RefundStatusCompleted, enums.PaymentMethodCash, "7.25")
	h.refund(t, mixed.ID, enums.RefundStatusCompleted, enums.PaymentMethodCard, "3")
	h.refund(t, refunded.ID, enums.RefundStatusCompleted, enums.PaymentMethodCash, "12.5")

	_, err := h.svc.CreateMovement(ctx, MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementIn, Amount: dec("20"), Reason: "float top-up"})
	require.NoError(t, err)
	_, err = h.svc.CreateMovement(ctx, MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementOut, Amount: dec("15.5"), Reason: "bank drop"})
	require.NoError(t, err)

	// 100 + (30 + 12.5) - 5 - (7.25 + 12.5) + 20 - 15.5
	want := dec("122.25")

	summary, err := h.svc.Summary(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, summary.CashSales.Equal(dec("42.5")), "cash sales %s", summary.CashSales)
	assert.True(t, summary.ChangeGiven.Equal(dec("5")), "change %s", summary.ChangeGiven)
	assert.True(t, summary.CashRefunds.Equal(dec("19.75")), "refunds %s", summary.CashRefunds)
	assert.True(t, summary.CashIn.Equal(dec("20")))
	assert.True(t, summary.CashOut.Equal(dec("15.5")))
	assert.True(t, summary.ExpectedCash.Equal(want), "expected %s", summary.ExpectedCash)
	assert.Len(t, summary.Movements, 2)
	assert.Nil(t, summary.CountedCash)

	again, err := h.svc.Summary(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, again.ExpectedCash.Equal(summary.ExpectedCash))

	closed, err := h.svc.Close(ctx, CloseInput{RegisterID: reg.ID, UserID: h.cashier, CountedCash: decPtr("120")})
	require.NoError(t, err)
	assert.True(t, closed.ExpectedCash.Equal(want))
	assert.True(t, closed.DifferenceCash.Equal(dec("-2.25")), "difference %s", closed.DifferenceCash)
	assert.Equal(t, string(enums.DrawerVarianceShort), closed.Variance)
	assert.Equal(t, float64(1), h.closeCount(t, string(enums.DrawerVarianceShort)))

	frozen, err := h.svc.Summary(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.CashRegisterStatusClosed), frozen.Status)
	require.NotNil(t, frozen.CountedCash)
	assert.True(t, frozen.CountedCash.Equal(dec("120")))
	assert.True(t, frozen.DifferenceCash.Equal(dec("-2.25")))
}

func TestCloseWithinToleranceIsBalanced(t *testing.T) {
	h := newHarness(t)
	reg := h.open(t, "10")
	closed, err := h.svc.Close(context.Background(), CloseInput{RegisterID: reg.ID, UserID: h.cashier, CountedCash: decPtr("10.05")})
	require.NoError(t, err)
	assert.Equal(t, string(enums.DrawerVarianceBalanced), closed.Variance)

	reg = h.open(t, "10")
	closed, err = h.svc.Close(context.Background(), CloseInput{RegisterID: reg.ID, UserID: h.cashier, CountedCash: decPtr("10.06")})
	require.NoError(t, err)
	assert.Equal(t, string(enums.DrawerVarianceOver), closed.Variance)
}

func TestCloseFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.open(t, "25")

	_, err := h.svc.Close(ctx, CloseInput{RegisterID: reg.ID, UserID: h.cashier})
	require.Error(t, err)
	assert.Equal(t, ReasonCountedCashRequired, pkgerrors.As(err).Details().(map[string]any)["reason"])

	_, err = h.svc.Close(ctx, CloseInput{RegisterID: uuid.New(), UserID: h.cashier, CountedCash: decPtr("0")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Close(ctx, CloseInput{RegisterID: reg.ID, UserID: h.cashier, CountedCash: decPtr("25")})
	require.NoError(t, err)

	_, err = h.svc.Close(ctx, CloseInput{RegisterID: reg.ID, UserID: h.cashier, CountedCash: decPtr("25")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCashRegisterNotOpen))

	_, err = h.svc.CreateMovement(ctx, MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementIn, Amount: dec("1"), Reason: "late"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCashRegisterNotOpen))
}

func TestCreateMovementValidation(t *testing.T) {
	h := newHarness(t)
	reg := h.open(t, "0")

	cases := []struct {
		name   string
		input  MovementInput
		reason string
	}{
		{"type", MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: "SIDEWAYS", Amount: dec("1"), Reason: "x"}, ReasonMovementTypeInvalid},
		{"zero amount", MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementOut, Amount: dec("0"), Reason: "x"}, ReasonMovementAmountNotPos},
		{"negative amount", MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementIn, Amount: dec("-3"), Reason: "x"}, ReasonMovementAmountNotPos},
		{"sub-cent amount", MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementIn, Amount: dec("0.004"), Reason: "x"}, ReasonMovementAmountNotPos},
		{"reason", MovementInput{RegisterID: reg.ID, UserID: h.cashier, Type: enums.CashMovementIn, Amount: dec("1"), Reason: "  "}, ReasonMovementReasonEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateMovement(context.Background(), tc.input)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			assert.Equal(t, tc.reason, typed.Details().(map[string]any)["reason"])
		})
	}

	var n int64
	require.NoError(t, h.conn.Model(&models.CashMovement{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestExpectedCashRoundsEachStep(t *testing.T) {
	got := expectedCash(breakdown{
		opening:   dec("10.004"),
		cashSales: dec("0.005"),
		change:    dec("0.001"),
		refunds:   decimal.Zero,
		cashIn:    dec("0.004"),
		cashOut:   decimal.Zero,
	})
	// 10.004 + 0.005 = 10.009 -> 10.01; -0.001 -> 10.009 -> 10.01; +0.004 -> 10.014 -> 10.01
	assert.True(t, got.Equal(dec("10.01")), "got %s", got)
}

func TestClassify(t *testing.T) {
	tol := dec("0.10")
	assert.Equal(t, enums.DrawerVarianceBalanced, classify(dec("0"), tol))
	assert.Equal(t, enums.DrawerVarianceBalanced, classify(dec("-0.10"), tol))
	assert.Equal(t, enums.DrawerVarianceOver, classify(dec("0.11"), tol))
	assert.Equal(t, enums.DrawerVarianceShort, classify(dec("-0.11"), tol))
}

func TestListOpenedBeforeSkipsClosedAndFreshRegisters(t *testing.T) {
	h := newHarness(t)
	reg := h.open(t, "50.00")

	repo := NewRepository(h.conn)
	stale, err := repo.ListOpenedBefore(context.Background(), nil, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, reg.ID, stale[0].ID)

	fresh, err := repo.ListOpenedBefore(context.Background(), nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, fresh)

	_, err = h.svc.Close(context.Background(), CloseInput{RegisterID: reg.ID, UserID: h.cashier, Role: "cashier", CountedCash: decPtr("50.00")})
	require.NoError(t, err)
	stale, err = repo.ListOpenedBefore(context.Background(), nil, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, stale)
}
