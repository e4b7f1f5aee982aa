package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/tillstock/tillstock-backend/api/middleware"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
)

// actor is who a ledger write is recorded for. BranchID may be nil when
// neither the body nor the token names one; the services reject that.
type actor struct {
	UserID   uuid.UUID
	BranchID uuid.UUID
	Role     string
}

func (a actor) ref() outbox.ActorRef {
	ref := outbox.ActorRef{UserID: a.UserID, Role: a.Role}
	if a.BranchID != uuid.Nil {
		branchID := a.BranchID
		ref.BranchID = &branchID
	}
	return ref
}

// resolveActor defaults branch and user from the token. Naming a different
// user or branch than the token's requires a role that may act for others.
func resolveActor(ctx context.Context, bodyBranch, bodyUser *uuid.UUID) (actor, error) {
	callerID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	role := middleware.RoleFromContext(ctx)
	privileged := enums.MemberRole(role).CanActForOthers()

	a := actor{UserID: callerID, Role: role}
	if bodyUser != nil && *bodyUser != uuid.Nil && *bodyUser != callerID {
		if !privileged {
			return actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "cannot record operations for another user")
		}
		a.UserID = *bodyUser
	}

	tokenBranch, hasTokenBranch := middleware.BranchIDFromContext(ctx)
	switch {
	case bodyBranch != nil && *bodyBranch != uuid.Nil:
		if hasTokenBranch && *bodyBranch != tokenBranch && !privileged {
			return actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "branch does not match session")
		}
		a.BranchID = *bodyBranch
	case hasTokenBranch:
		a.BranchID = tokenBranch
	}
	return a, nil
}
