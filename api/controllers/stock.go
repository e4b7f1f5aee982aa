package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/api/responses"
	"github.com/tillstock/tillstock-backend/api/validators"
	"github.com/tillstock/tillstock-backend/internal/inventory"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/pagination"
)

type recordMovementRequest struct {
	Type            string                `json:"type" validate:"required,oneof=receipt issue adjustment transfer"`
	BranchID        *uuid.UUID            `json:"branch_id,omitempty"`
	UserID          *uuid.UUID            `json:"user_id,omitempty"`
	WarehouseID     *uuid.UUID            `json:"warehouse_id,omitempty"`
	FromWarehouseID *uuid.UUID            `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *uuid.UUID            `json:"to_warehouse_id,omitempty"`
	Items           []movementItemRequest `json:"items" validate:"required,min=1,dive"`
	RefType         *string               `json:"ref_type,omitempty" validate:"omitempty,max=64"`
	RefID           *uuid.UUID            `json:"ref_id,omitempty"`
	Note            *string               `json:"note,omitempty" validate:"omitempty,max=500"`
}

type movementItemRequest struct {
	ProductID uuid.UUID           `json:"product_id" validate:"required"`
	Qty       decimal.Decimal     `json:"qty" validate:"dec_ne0"`
	UnitCost  decimal.NullDecimal `json:"unit_cost,omitempty"`
}

// RecordStockMovement applies a receipt, issue, adjustment or transfer.
func RecordStockMovement(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload recordMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		who, err := resolveActor(r.Context(), payload.BranchID, payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]inventory.Item, 0, len(payload.Items))
		for _, it := range payload.Items {
			items = append(items, inventory.Item{ProductID: it.ProductID, Qty: it.Qty, UnitCost: it.UnitCost})
		}
		if payload.RefType != nil {
			trimmed := strings.TrimSpace(*payload.RefType)
			payload.RefType = &trimmed
		}

		result, err := svc.RecordMovement(r.Context(), who.ref(), inventory.RecordMovementInput{
			Type:            enums.MovementType(payload.Type),
			WarehouseID:     payload.WarehouseID,
			FromWarehouseID: payload.FromWarehouseID,
			ToWarehouseID:   payload.ToWarehouseID,
			Items:           items,
			RefType:         payload.RefType,
			RefID:           payload.RefID,
			Note:            payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListStockMovements pages the movement log, newest first.
func ListStockMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var filter inventory.MovementFilter
		if filter.WarehouseID, err = validators.ParseQueryUUID(r, "warehouse_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.ProductID, err = validators.ParseQueryUUID(r, "product_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.RefID, err = validators.ParseQueryUUID(r, "ref_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if refType := strings.TrimSpace(r.URL.Query().Get("ref_type")); refType != "" {
			filter.RefType = &refType
		}

		page, err := svc.ListMovements(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GetStockBalances returns balances of one warehouse. product_id may repeat
// or carry a comma-separated list; without it every balance row is returned.
func GetStockBalances(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if warehouseID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("warehouse_id", inventory.ReasonWarehouseRequired, "warehouse_id is required"))
			return
		}

		var productIDs []uuid.UUID
		for _, raw := range r.URL.Query()["product_id"] {
			for _, part := range strings.Split(raw, ",") {
				if strings.TrimSpace(part) == "" {
					continue
				}
				id, err := validators.ParseUUIDParam(part, "product_id")
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				productIDs = append(productIDs, id)
			}
		}

		balances, err := svc.GetBalances(r.Context(), *warehouseID, productIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balances)
	}
}
