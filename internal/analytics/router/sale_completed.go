package router

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/internal/analytics/types"
	"github.com/tillstock/tillstock-backend/internal/analytics/writer"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/outbox/payloads"
)

type saleCompletedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newSaleCompletedHandler(w Writer, logg *logger.Logger) Handler {
	return &saleCompletedHandler{writer: w, logg: logg}
}

func (h *saleCompletedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.SaleCompletedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", enums.EventSaleCompleted)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"sale_id":   event.SaleID,
		"branch_id": event.BranchID,
		"total":     event.Total.StringFixed(2),
	})

	row, err := buildSaleFactRow(envelope, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build sale fact row", err)
		return err
	}
	if err := h.writer.InsertSaleFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert sale fact", err)
		return err
	}

	h.logg.Info(logCtx, "sale fact inserted")
	return nil
}

func buildSaleFactRow(envelope types.Envelope, event *payloads.SaleCompletedEvent) (types.SaleFactRow, error) {
	items, err := writer.EncodeJSON(event.Items)
	if err != nil {
		return types.SaleFactRow{}, fmt.Errorf("encode items: %w", err)
	}
	paymentsJSON, err := writer.EncodeJSON(event.Payments)
	if err != nil {
		return types.SaleFactRow{}, fmt.Errorf("encode payments: %w", err)
	}

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = event.SoldAt
	}

	return types.SaleFactRow{
		EventID:        envelope.EventID,
		OccurredAt:     occurredAt.UTC(),
		SaleID:         event.SaleID.String(),
		BranchID:       event.BranchID.String(),
		CashRegisterID: event.CashRegisterID.String(),
		UserID:         event.UserID.String(),
		Status:         event.Status,
		SoldAt:         event.SoldAt.UTC(),
		Subtotal:       event.Subtotal.Rat(),
		DiscountTotal:  event.DiscountTotal.Rat(),
		TaxTotal:       event.TaxTotal.Rat(),
		Total:          event.Total.Rat(),
		PaidTotal:      event.PaidTotal.Rat(),
		ChangeTotal:    event.ChangeTotal.Rat(),
		CashTotal:      netCash(event).Rat(),
		ItemCount:      int64(len(event.Items)),
		Items:          items,
		Payments:       paymentsJSON,
	}, nil
}

// netCash is what the sale left in the drawer: cash tendered minus change.
// Change is only taken from the drawer when some cash was tendered.
func netCash(event *payloads.SaleCompletedEvent) decimal.Decimal {
	cash := decimal.Zero
	tookCash := false
	for _, p := range event.Payments {
		if p.Method != string(enums.PaymentMethodCash) {
			continue
		}
		tookCash = true
		cash = cash.Add(p.Amount)
	}
	if tookCash {
		cash = cash.Sub(event.ChangeTotal)
	}
	return cash.Round(2)
}
