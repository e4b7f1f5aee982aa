package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxUserID      contextKey = "user_id"
	ctxRole        contextKey = "actor_role"
	ctxBranchID    contextKey = "branch_id"
	ctxWarehouseID contextKey = "warehouse_id"
)

func uuidFromContext(ctx context.Context, key contextKey) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	v, ok := ctx.Value(key).(uuid.UUID)
	if !ok || v == uuid.Nil {
		return uuid.Nil, false
	}
	return v, true
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return uuidFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// BranchIDFromContext returns the branch the caller's session is bound to.
func BranchIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return uuidFromContext(ctx, ctxBranchID)
}

// ActiveWarehouseIDFromContext returns the warehouse selected for the session,
// used as the second step of sale line warehouse resolution.
func ActiveWarehouseIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return uuidFromContext(ctx, ctxWarehouseID)
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithBranchID injects the branch identifier into the context for downstream handlers.
func WithBranchID(ctx context.Context, branchID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxBranchID, branchID)
}

func WithWarehouseID(ctx context.Context, warehouseID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxWarehouseID, warehouseID)
}
