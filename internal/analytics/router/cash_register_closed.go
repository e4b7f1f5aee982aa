package router

import (
	"context"
	"fmt"

	"github.com/tillstock/tillstock-backend/internal/analytics/types"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/outbox/payloads"
)

type registerClosedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newRegisterClosedHandler(w Writer, logg *logger.Logger) Handler {
	return &registerClosedHandler{writer: w, logg: logg}
}

func (h *registerClosedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.CashRegisterClosedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", enums.EventCashRegisterClosed)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"cash_register_id": event.CashRegisterID,
		"variance":         event.Variance,
	})

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = event.ClosedAt
	}
	row := types.DrawerClosureRow{
		EventID:        envelope.EventID,
		OccurredAt:     occurredAt.UTC(),
		CashRegisterID: event.CashRegisterID.String(),
		BranchID:       event.BranchID.String(),
		OpenedBy:       event.OpenedBy.String(),
		ClosedBy:       event.ClosedBy.String(),
		OpeningCash:    event.OpeningCash.Rat(),
		ExpectedCash:   event.ExpectedCash.Rat(),
		CountedCash:    event.CountedCash.Rat(),
		DifferenceCash: event.DifferenceCash.Rat(),
		Variance:       event.Variance,
		OpenedAt:       event.OpenedAt.UTC(),
		ClosedAt:       event.ClosedAt.UTC(),
	}
	if !event.OpenedAt.IsZero() && event.ClosedAt.After(event.OpenedAt) {
		row.OpenMinutes = int64(event.ClosedAt.Sub(event.OpenedAt).Minutes())
	}

	if err := h.writer.InsertDrawerClosure(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert drawer closure", err)
		return err
	}
	h.logg.Info(logCtx, "drawer closure inserted")
	return nil
}
