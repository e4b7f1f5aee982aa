package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/api/middleware"
	"github.com/tillstock/tillstock-backend/api/responses"
	"github.com/tillstock/tillstock-backend/api/validators"
	"github.com/tillstock/tillstock-backend/internal/drawers"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/logger"
)

type openDrawerRequest struct {
	BranchID    *uuid.UUID      `json:"branch_id,omitempty"`
	UserID      *uuid.UUID      `json:"user_id,omitempty"`
	OpeningCash decimal.Decimal `json:"opening_cash" validate:"dec_gte0"`
	Note        *string         `json:"note,omitempty" validate:"omitempty,max=500"`
}

type closeDrawerRequest struct {
	RegisterID  uuid.UUID        `json:"register_id" validate:"required"`
	UserID      *uuid.UUID       `json:"user_id,omitempty"`
	CountedCash *decimal.Decimal `json:"counted_cash"`
	Note        *string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

type drawerMovementRequest struct {
	RegisterID uuid.UUID       `json:"register_id" validate:"required"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	Type       string          `json:"type" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"dec_gt0"`
	Reason     string          `json:"reason" validate:"required,max=200"`
	Note       *string         `json:"note,omitempty" validate:"omitempty,max=500"`
}

func drawerUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "drawer service unavailable")
}

func OpenDrawer(svc drawers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, drawerUnavailable())
			return
		}

		var payload openDrawerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		who, err := resolveActor(r.Context(), payload.BranchID, payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reg, err := svc.Open(r.Context(), drawers.OpenInput{
			BranchID:    who.BranchID,
			UserID:      who.UserID,
			Role:        who.Role,
			OpeningCash: payload.OpeningCash,
			Note:        payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reg)
	}
}

// CloseDrawer reconciles the counted cash against the computed expectation.
func CloseDrawer(svc drawers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, drawerUnavailable())
			return
		}

		var payload closeDrawerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		who, err := resolveActor(r.Context(), nil, payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reg, err := svc.Close(r.Context(), drawers.CloseInput{
			RegisterID:  payload.RegisterID,
			UserID:      who.UserID,
			Role:        who.Role,
			CountedCash: payload.CountedCash,
			Note:        payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reg)
	}
}

func CreateDrawerMovement(svc drawers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, drawerUnavailable())
			return
		}

		var payload drawerMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movementType, err := enums.ParseCashMovementType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("type", drawers.ReasonMovementTypeInvalid, "type must be IN or OUT"))
			return
		}
		who, err := resolveActor(r.Context(), nil, payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movement, err := svc.CreateMovement(r.Context(), drawers.MovementInput{
			RegisterID: payload.RegisterID,
			UserID:     who.UserID,
			Type:       movementType,
			Amount:     payload.Amount,
			Reason:     payload.Reason,
			Note:       payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

// GetOpenDrawer looks up the open register of branch_id, defaulting to the
// session branch.
func GetOpenDrawer(svc drawers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, drawerUnavailable())
			return
		}

		branchID, err := validators.ParseQueryUUID(r, "branch_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target := uuid.Nil
		if branchID != nil {
			target = *branchID
		} else if fromToken, ok := middleware.BranchIDFromContext(r.Context()); ok {
			target = fromToken
		}

		reg, err := svc.GetOpen(r.Context(), target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reg)
	}
}

func GetDrawerSummary(svc drawers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, drawerUnavailable())
			return
		}
		registerID, err := validators.ParseUUIDParam(chi.URLParam(r, "registerId"), "register_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), registerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
