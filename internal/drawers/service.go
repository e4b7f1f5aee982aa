package drawers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/internal/refunds"
	"github.com/tillstock/tillstock-backend/pkg/db"
	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
	"github.com/tillstock/tillstock-backend/pkg/outbox/payloads"
)

const (
	ReasonBranchRequired       = "BRANCH_REQUIRED"
	ReasonUserRequired         = "USER_REQUIRED"
	ReasonRegisterRequired     = "REGISTER_REQUIRED"
	ReasonOpeningCashNegative  = "OPENING_CASH_NEGATIVE"
	ReasonCountedCashRequired  = "COUNTED_CASH_REQUIRED"
	ReasonCountedCashNegative  = "COUNTED_CASH_NEGATIVE"
	ReasonMovementTypeInvalid  = "MOVEMENT_TYPE_INVALID"
	ReasonMovementAmountNotPos = "MOVEMENT_AMOUNT_NOT_POSITIVE"
	ReasonMovementReasonEmpty  = "MOVEMENT_REASON_REQUIRED"

	uniqueOpenRegisterIdx = "ux_cash_registers_branch_open"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs the drawer lifecycle of a branch.
type Service interface {
	Open(ctx context.Context, input OpenInput) (*RegisterDTO, error)
	Close(ctx context.Context, input CloseInput) (*RegisterDTO, error)
	CreateMovement(ctx context.Context, input MovementInput) (*CashMovementDTO, error)
	GetOpen(ctx context.Context, branchID uuid.UUID) (*RegisterDTO, error)
	Summary(ctx context.Context, registerID uuid.UUID) (*SummaryDTO, error)
}

type OpenInput struct {
	BranchID    uuid.UUID
	UserID      uuid.UUID
	Role        string
	OpeningCash decimal.Decimal
	Note        *string
}

type CloseInput struct {
	RegisterID  uuid.UUID
	UserID      uuid.UUID
	Role        string
	CountedCash *decimal.Decimal
	Note        *string
}

type MovementInput struct {
	RegisterID uuid.UUID
	UserID     uuid.UUID
	Type       enums.CashMovementType
	Amount     decimal.Decimal
	Reason     string
	Note       *string
}

type Deps struct {
	Tx        txRunner
	Registers *Repository
	Refunds   refunds.Reader
	Outbox    outbox.Emitter
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	// VarianceTolerance is the absolute difference still reported as balanced.
	VarianceTolerance decimal.Decimal
}

type service struct {
	deps Deps
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Registers == nil:
		return nil, fmt.Errorf("register repository required")
	case deps.Refunds == nil:
		return nil, fmt.Errorf("refund reader required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case deps.VarianceTolerance.IsNegative():
		return nil, fmt.Errorf("variance tolerance must not be negative")
	}
	return &service{deps: deps}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (result *RegisterDTO, err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveOperation("open_drawer", started, err) }()

	switch {
	case input.BranchID == uuid.Nil:
		return nil, pkgerrors.Validation("branch_id", ReasonBranchRequired, "branch_id is required")
	case input.UserID == uuid.Nil:
		return nil, pkgerrors.Validation("user_id", ReasonUserRequired, "user_id is required")
	case input.OpeningCash.IsNegative():
		return nil, pkgerrors.Validation("opening_cash", ReasonOpeningCashNegative, "opening_cash must not be negative")
	}

	reg := models.CashRegister{
		BranchID:    input.BranchID,
		Status:      enums.CashRegisterStatusOpen,
		OpeningCash: input.OpeningCash.Round(2),
		OpenedAt:    time.Now().UTC(),
		OpenedBy:    input.UserID,
		OpeningNote: trimmed(input.Note),
	}
	err = s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.deps.Registers.FindOpenForBranch(ctx, tx, input.BranchID, LockNone)
		if err != nil {
			return err
		}
		if existing != nil {
			return alreadyOpen(input.BranchID, existing.ID)
		}
		if err := s.deps.Registers.Create(ctx, tx, &reg); err != nil {
			if db.IsUniqueViolation(err, uniqueOpenRegisterIdx, "cash_registers.branch_id") {
				return alreadyOpen(input.BranchID, uuid.Nil)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cash register")
		}
		branchID := input.BranchID
		return s.deps.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashRegisterOpened,
			AggregateType: enums.AggregateCashRegister,
			AggregateID:   reg.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, BranchID: &branchID, Role: input.Role},
			Data: payloads.CashRegisterOpenedEvent{
				CashRegisterID: reg.ID,
				BranchID:       reg.BranchID,
				OpenedBy:       reg.OpenedBy,
				OpeningCash:    reg.OpeningCash,
				OpenedAt:       reg.OpenedAt,
			},
			OccurredAt: reg.OpenedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info(s.deps.Logger.WithFields(ctx, map[string]any{
		"cash_register_id": reg.ID.String(),
		"branch_id":        reg.BranchID.String(),
		"opening_cash":     reg.OpeningCash.StringFixed(2),
	}), "drawer.opened")

	dto := registerDTO(reg, "")
	return &dto, nil
}

func (s *service) Close(ctx context.Context, input CloseInput) (result *RegisterDTO, err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveOperation("close_drawer", started, err) }()

	switch {
	case input.RegisterID == uuid.Nil:
		return nil, pkgerrors.Validation("register_id", ReasonRegisterRequired, "register_id is required")
	case input.UserID == uuid.Nil:
		return nil, pkgerrors.Validation("user_id", ReasonUserRequired, "user_id is required")
	case input.CountedCash == nil:
		return nil, pkgerrors.Validation("counted_cash", ReasonCountedCashRequired, "counted_cash is required to close a drawer")
	case input.CountedCash.IsNegative():
		return nil, pkgerrors.Validation("counted_cash", ReasonCountedCashNegative, "counted_cash must not be negative")
	}
	counted := input.CountedCash.Round(2)

	var (
		reg      *models.CashRegister
		variance enums.DrawerVarianceStatus
	)
	err = s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		reg, err = s.requireOpen(ctx, tx, input.RegisterID)
		if err != nil {
			return err
		}

		b, err := s.breakdown(ctx, tx, reg)
		if err != nil {
			return err
		}
		difference := counted.Sub(b.expected).Round(2)
		variance = classify(difference, s.deps.VarianceTolerance)

		closedAt := time.Now().UTC()
		closedBy := input.UserID
		reg.Status = enums.CashRegisterStatusClosed
		reg.ClosingCash = decimal.NewNullDecimal(counted)
		reg.ExpectedCash = decimal.NewNullDecimal(b.expected)
		reg.DifferenceCash = decimal.NewNullDecimal(difference)
		reg.ClosedAt = &closedAt
		reg.ClosedBy = &closedBy
		reg.ClosingNote = trimmed(input.Note)
		if err := s.deps.Registers.MarkClosed(ctx, tx, reg); err != nil {
			return err
		}

		branchID := reg.BranchID
		return s.deps.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashRegisterClosed,
			AggregateType: enums.AggregateCashRegister,
			AggregateID:   reg.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, BranchID: &branchID, Role: input.Role},
			Data: payloads.CashRegisterClosedEvent{
				CashRegisterID: reg.ID,
				BranchID:       reg.BranchID,
				OpenedBy:       reg.OpenedBy,
				ClosedBy:       closedBy,
				OpeningCash:    reg.OpeningCash,
				ExpectedCash:   b.expected,
				CountedCash:    counted,
				DifferenceCash: difference,
				Variance:       string(variance),
				OpenedAt:       reg.OpenedAt,
				ClosedAt:       closedAt,
			},
			OccurredAt: closedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.deps.Metrics.DrawerClosed(string(variance))
	logCtx := s.deps.Logger.WithFields(ctx, map[string]any{
		"cash_register_id": reg.ID.String(),
		"branch_id":        reg.BranchID.String(),
		"expected_cash":    reg.ExpectedCash.Decimal.StringFixed(2),
		"counted_cash":     counted.StringFixed(2),
		"difference_cash":  reg.DifferenceCash.Decimal.StringFixed(2),
		"variance":         string(variance),
	})
	if variance == enums.DrawerVarianceBalanced {
		s.deps.Logger.Info(logCtx, "drawer.closed")
	} else {
		s.deps.Logger.Warn(logCtx, "drawer.closed_with_variance")
	}

	dto := registerDTO(*reg, string(variance))
	return &dto, nil
}

func (s *service) CreateMovement(ctx context.Context, input MovementInput) (*CashMovementDTO, error) {
	switch {
	case input.RegisterID == uuid.Nil:
		return nil, pkgerrors.Validation("register_id", ReasonRegisterRequired, "register_id is required")
	case input.UserID == uuid.Nil:
		return nil, pkgerrors.Validation("user_id", ReasonUserRequired, "user_id is required")
	case !input.Type.IsValid():
		return nil, pkgerrors.Validation("type", ReasonMovementTypeInvalid, "type must be IN or OUT")
	case !input.Amount.Round(2).IsPositive():
		return nil, pkgerrors.Validation("amount", ReasonMovementAmountNotPos, "amount must be greater than zero")
	case strings.TrimSpace(input.Reason) == "":
		return nil, pkgerrors.Validation("reason", ReasonMovementReasonEmpty, "reason is required")
	}

	movement := models.CashMovement{
		CashRegisterID: input.RegisterID,
		Type:           input.Type,
		Amount:         input.Amount.Round(2),
		Reason:         strings.TrimSpace(input.Reason),
		Note:           trimmed(input.Note),
		CreatedBy:      input.UserID,
		HappenedAt:     time.Now().UTC(),
	}
	err := s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.requireOpen(ctx, tx, input.RegisterID); err != nil {
			return err
		}
		return s.deps.Registers.CreateMovement(ctx, tx, &movement)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info(s.deps.Logger.WithFields(ctx, map[string]any{
		"cash_register_id": movement.CashRegisterID.String(),
		"type":             string(movement.Type),
		"amount":           movement.Amount.StringFixed(2),
	}), "drawer.cash_movement")

	dto := movementDTO(movement)
	return &dto, nil
}

func (s *service) GetOpen(ctx context.Context, branchID uuid.UUID) (*RegisterDTO, error) {
	if branchID == uuid.Nil {
		return nil, pkgerrors.Validation("branch_id", ReasonBranchRequired, "branch_id is required")
	}
	reg, err := s.deps.Registers.FindOpenForBranch(ctx, nil, branchID, LockNone)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no open cash register for branch")
	}
	dto := registerDTO(*reg, "")
	return &dto, nil
}

func (s *service) Summary(ctx context.Context, registerID uuid.UUID) (*SummaryDTO, error) {
	if registerID == uuid.Nil {
		return nil, pkgerrors.Validation("register_id", ReasonRegisterRequired, "register_id is required")
	}
	var out *SummaryDTO
	err := s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		reg, err := s.deps.Registers.FindByID(ctx, tx, registerID, LockNone)
		if err != nil {
			return err
		}
		if reg == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cash register not found")
		}
		b, err := s.breakdown(ctx, tx, reg)
		if err != nil {
			return err
		}
		movements, err := s.deps.Registers.ListMovements(ctx, tx, reg.ID)
		if err != nil {
			return err
		}

		out = &SummaryDTO{
			RegisterID:     reg.ID,
			Status:         string(reg.Status),
			OpeningCash:    b.opening,
			CashSales:      b.cashSales,
			ChangeGiven:    b.change,
			CashRefunds:    b.refunds,
			CashIn:         b.cashIn,
			CashOut:        b.cashOut,
			ExpectedCash:   b.expected,
			CountedCash:    nullable(reg.ClosingCash),
			DifferenceCash: nullable(reg.DifferenceCash),
			Movements:      make([]CashMovementDTO, 0, len(movements)),
		}
		// A closed register reports what was frozen at close.
		if reg.Status == enums.CashRegisterStatusClosed && reg.ExpectedCash.Valid {
			out.ExpectedCash = reg.ExpectedCash.Decimal
		}
		for _, m := range movements {
			out.Movements = append(out.Movements, movementDTO(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// requireOpen locks the register for update and checks it is OPEN.
func (s *service) requireOpen(ctx context.Context, tx *gorm.DB, registerID uuid.UUID) (*models.CashRegister, error) {
	reg, err := s.deps.Registers.FindByID(ctx, tx, registerID, LockUpdate)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cash register not found")
	}
	if reg.Status != enums.CashRegisterStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeCashRegisterNotOpen, "cash register is not open").
			WithDetails(map[string]any{"cash_register_id": reg.ID.String(), "status": string(reg.Status)})
	}
	return reg, nil
}

type breakdown struct {
	opening   decimal.Decimal
	cashSales decimal.Decimal
	change    decimal.Decimal
	refunds   decimal.Decimal
	cashIn    decimal.Decimal
	cashOut   decimal.Decimal
	expected  decimal.Decimal
}

// breakdown gathers the formula terms for reg. Each term arrives rounded
// from the repository and the running total is rounded after every step.
func (s *service) breakdown(ctx context.Context, tx *gorm.DB, reg *models.CashRegister) (breakdown, error) {
	var (
		b   = breakdown{opening: reg.OpeningCash.Round(2)}
		err error
	)
	if b.cashSales, err = s.deps.Registers.CashSalesTotal(ctx, tx, reg.ID); err != nil {
		return b, err
	}
	if b.change, err = s.deps.Registers.CashChangeTotal(ctx, tx, reg.ID); err != nil {
		return b, err
	}
	if b.refunds, err = s.deps.Refunds.CashRefundTotal(ctx, tx, reg.ID); err != nil {
		return b, err
	}
	if b.cashIn, b.cashOut, err = s.deps.Registers.MovementTotals(ctx, tx, reg.ID); err != nil {
		return b, err
	}
	b.expected = expectedCash(b)
	return b, nil
}

func expectedCash(b breakdown) decimal.Decimal {
	total := b.opening
	total = total.Add(b.cashSales).Round(2)
	total = total.Sub(b.change).Round(2)
	total = total.Sub(b.refunds).Round(2)
	total = total.Add(b.cashIn).Round(2)
	total = total.Sub(b.cashOut).Round(2)
	return total
}

func classify(difference, tolerance decimal.Decimal) enums.DrawerVarianceStatus {
	switch {
	case difference.Abs().LessThanOrEqual(tolerance):
		return enums.DrawerVarianceBalanced
	case difference.IsPositive():
		return enums.DrawerVarianceOver
	default:
		return enums.DrawerVarianceShort
	}
}

func alreadyOpen(branchID, registerID uuid.UUID) error {
	details := map[string]any{"branch_id": branchID.String()}
	if registerID != uuid.Nil {
		details["cash_register_id"] = registerID.String()
	}
	return pkgerrors.New(pkgerrors.CodeCashRegisterAlreadyOpen, "a cash register is already open for this branch").
		WithDetails(details)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
