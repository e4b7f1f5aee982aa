package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/api/responses"
	"github.com/tillstock/tillstock-backend/api/validators"
	salessvc "github.com/tillstock/tillstock-backend/internal/sales"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
)

type createSaleRequest struct {
	BranchID       *uuid.UUID           `json:"branch_id,omitempty"`
	UserID         *uuid.UUID           `json:"user_id,omitempty"`
	IdempotencyKey *string              `json:"idempotency_key,omitempty"`
	Items          []saleItemRequest    `json:"items" validate:"required,min=1,dive"`
	Payments       []salePaymentRequest `json:"payments,omitempty" validate:"omitempty,dive"`
}

type saleItemRequest struct {
	ProductID   uuid.UUID       `json:"product_id" validate:"required"`
	WarehouseID *uuid.UUID      `json:"warehouse_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity" validate:"dec_gt0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"dec_gte0"`
	Discount    decimal.Decimal `json:"discount,omitempty" validate:"dec_gte0"`
	Tax         decimal.Decimal `json:"tax,omitempty" validate:"dec_gte0"`
}

type salePaymentRequest struct {
	Method    string          `json:"method" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"dec_gt0"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=120"`
}

// CreateSale rings up a checkout against the branch's open drawer. A replay
// of an idempotency key answers 200 with the original sale.
func CreateSale(svc salessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		var payload createSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		who, err := resolveActor(r.Context(), payload.BranchID, payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := salessvc.CreateSaleInput{
			BranchID:       who.BranchID,
			UserID:         who.UserID,
			Role:           who.Role,
			IdempotencyKey: payload.IdempotencyKey,
			Items:          make([]salessvc.ItemInput, 0, len(payload.Items)),
			Payments:       make([]salessvc.PaymentInput, 0, len(payload.Payments)),
		}
		for _, it := range payload.Items {
			input.Items = append(input.Items, salessvc.ItemInput{
				ProductID:   it.ProductID,
				WarehouseID: it.WarehouseID,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				Discount:    it.Discount,
				Tax:         it.Tax,
			})
		}
		for _, p := range payload.Payments {
			method, err := enums.ParsePaymentMethod(p.Method)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("payments.method", salessvc.ReasonPaymentMethodInvalid, "payment method is invalid"))
				return
			}
			input.Payments = append(input.Payments, salessvc.PaymentInput{Method: method, Amount: p.Amount, Reference: p.Reference})
		}

		result, err := svc.CreateSale(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result.Sale)
	}
}

func GetSale(svc salessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}
		saleID, err := validators.ParseUUIDParam(chi.URLParam(r, "saleId"), "sale_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.GetSale(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}
