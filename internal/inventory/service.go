package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
	"github.com/tillstock/tillstock-backend/pkg/outbox/payloads"
	"github.com/tillstock/tillstock-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the stock ledger operations.
type Service interface {
	RecordMovement(ctx context.Context, actor outbox.ActorRef, input RecordMovementInput) (*RecordMovementResult, error)
	GetBalances(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID) ([]BalanceDTO, error)
	ListMovements(ctx context.Context, filter MovementFilter, params pagination.Params) (*pagination.Page[MovementDTO], error)
}

// RecordMovementInput is the untyped request shape; Movement builds the variant.
type RecordMovementInput struct {
	Type            enums.MovementType
	WarehouseID     *uuid.UUID
	FromWarehouseID *uuid.UUID
	ToWarehouseID   *uuid.UUID
	Items           []Item
	RefType         *string
	RefID           *uuid.UUID
	Note            *string
}

// Movement converts the input into its variant, enforcing per-type fields.
func (in RecordMovementInput) Movement() (Movement, error) {
	var (
		m   Movement
		err error
	)
	switch in.Type {
	case enums.MovementTypeReceipt:
		m, err = NewReceipt(deref(in.WarehouseID), in.Items)
	case enums.MovementTypeIssue:
		m, err = NewIssue(deref(in.WarehouseID), in.Items)
	case enums.MovementTypeAdjustment:
		m, err = NewAdjustment(deref(in.WarehouseID), in.Items)
	case enums.MovementTypeTransfer:
		m, err = NewTransfer(deref(in.FromWarehouseID), deref(in.ToWarehouseID), in.Items)
	default:
		return Movement{}, pkgerrors.Validation("type", ReasonMovementType, "type must be one of receipt, issue, adjustment, transfer")
	}
	if err != nil {
		return Movement{}, err
	}
	refType := ""
	if in.RefType != nil {
		refType = strings.TrimSpace(*in.RefType)
	}
	hasRefID := in.RefID != nil && *in.RefID != uuid.Nil
	switch {
	case refType != "" && hasRefID:
		m = m.WithRef(refType, *in.RefID)
	case refType != "":
		return Movement{}, pkgerrors.Validation("ref_id", ReasonRefIncomplete, "ref_id is required when ref_type is set")
	case hasRefID:
		return Movement{}, pkgerrors.Validation("ref_type", ReasonRefIncomplete, "ref_type is required when ref_id is set")
	}
	if in.Note != nil {
		m = m.WithNote(*in.Note)
	}
	return m, nil
}

type RecordMovementResult struct {
	MovementID uuid.UUID `json:"movement_id"`
	Applied    bool      `json:"applied"`
}

// MovementFilter narrows ListMovements. WarehouseID matches either side of a transfer.
type MovementFilter struct {
	WarehouseID *uuid.UUID
	ProductID   *uuid.UUID
	RefType     *string
	RefID       *uuid.UUID
}

type service struct {
	tx      txRunner
	db      *gorm.DB
	engine  *Engine
	outbox  outbox.Emitter
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

func NewService(tx txRunner, db *gorm.DB, engine *Engine, emitter outbox.Emitter, m *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if engine == nil {
		return nil, fmt.Errorf("movement engine required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, db: db, engine: engine, outbox: emitter, metrics: m, logg: logg}, nil
}

func (s *service) RecordMovement(ctx context.Context, actor outbox.ActorRef, input RecordMovementInput) (result *RecordMovementResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("record_movement", started, err) }()

	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.Validation("user_id", ReasonUserRequired, "acting user is required")
	}
	movement, err := input.Movement()
	if err != nil {
		return nil, err
	}
	movement = movement.RecordedBy(actor.UserID)

	var rec *models.StockMovement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.engine.Apply(ctx, tx, movement)
		if err != nil {
			return err
		}
		rec = applied
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockMovementRecorded,
			AggregateType: enums.AggregateStockMovement,
			AggregateID:   rec.ID,
			Actor:         &actor,
			Data:          movementEvent(rec),
			OccurredAt:    rec.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MovementRecorded(string(rec.Type))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"movement_id":   rec.ID.String(),
		"movement_type": string(rec.Type),
		"items":         len(rec.Items),
	})
	s.logg.Info(logCtx, "stock.movement_recorded")

	return &RecordMovementResult{MovementID: rec.ID, Applied: true}, nil
}

func (s *service) GetBalances(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID) ([]BalanceDTO, error) {
	if warehouseID == uuid.Nil {
		return nil, pkgerrors.Validation("warehouse_id", ReasonWarehouseRequired, "warehouse_id is required")
	}
	q := s.db.WithContext(ctx).Where("warehouse_id = ?", warehouseID)
	if len(productIDs) > 0 {
		q = q.Where("product_id IN ?", productIDs)
	}
	var rows []models.StockBalance
	if err := q.Order("product_id ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock balances")
	}
	out := make([]BalanceDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, balanceDTO(row))
	}
	return out, nil
}

func (s *service) ListMovements(ctx context.Context, filter MovementFilter, params pagination.Params) (*pagination.Page[MovementDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Validation("cursor", "INVALID_CURSOR", "cursor is invalid")
	}

	q := s.db.WithContext(ctx).Model(&models.StockMovement{}).Preload("Items")
	if filter.WarehouseID != nil {
		q = q.Where("(warehouse_id = ? OR from_warehouse_id = ? OR to_warehouse_id = ?)", *filter.WarehouseID, *filter.WarehouseID, *filter.WarehouseID)
	}
	if filter.ProductID != nil {
		q = q.Where("EXISTS (SELECT 1 FROM stock_movement_items smi WHERE smi.movement_id = stock_movements.id AND smi.product_id = ?)", *filter.ProductID)
	}
	if filter.RefType != nil {
		q = q.Where("ref_type = ?", *filter.RefType)
	}
	if filter.RefID != nil {
		q = q.Where("ref_id = ?", *filter.RefID)
	}
	if cursor != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.StockMovement
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}

	dtos := make([]MovementDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, movementDTO(row))
	}
	page := pagination.BuildPage(dtos, params.Limit, func(m MovementDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return &page, nil
}

func movementEvent(rec *models.StockMovement) payloads.StockMovementRecordedEvent {
	event := payloads.StockMovementRecordedEvent{
		MovementID:      rec.ID,
		Type:            string(rec.Type),
		WarehouseID:     rec.WarehouseID,
		FromWarehouseID: rec.FromWarehouseID,
		ToWarehouseID:   rec.ToWarehouseID,
		RefType:         rec.RefType,
		RefID:           rec.RefID,
		CreatedBy:       rec.CreatedBy,
	}
	for _, d := range SignedDeltas(*rec) {
		direction := enums.MovementDirectionIn
		if d.Qty.IsNegative() {
			direction = enums.MovementDirectionOut
		}
		event.Items = append(event.Items, payloads.StockMovementItem{
			ProductID:   d.Key.ProductID,
			WarehouseID: d.Key.WarehouseID,
			Qty:         d.Qty.Abs(),
			Direction:   string(direction),
		})
	}
	return event
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
