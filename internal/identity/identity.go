package identity

import (
	"context"
	"database/sql"
	"fmt"

	"remwork/internal/domain"
	"remwork/internal/repo"
)

// Role identifiers stored in actor_roles.
const (
	RoleAdmin          = "admin"
	RoleValidator      = "validator"
	RoleGlobalApprover = "global_approver"
)

// Principal is the authenticated caller, resolved by the server's auth
// middleware from a JWT, an API key, or the legacy actor header.
type Principal struct {
	ActorID string
	Source  string
}

// ForbiddenError indicates the actor lacks the capability for an operation.
type ForbiddenError struct {
	ActorID    string
	Capability string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s lacks capability %s", e.ActorID, e.Capability)
}

// Authorizer answers capability questions against the SQL role tables. The Tx
// variants run inside the transition transaction so a role revoked mid-flight
// cannot slip a decision through.
type Authorizer struct {
	Repo repo.Repo
}

func (a Authorizer) IsAdmin(ctx context.Context, tx *sql.Tx, actorID string) (bool, error) {
	return a.Repo.ActorHasRoleTx(ctx, tx, actorID, RoleAdmin)
}

func (a Authorizer) IsValidator(ctx context.Context, tx *sql.Tx, actorID string) (bool, error) {
	return a.Repo.ActorHasRoleTx(ctx, tx, actorID, RoleValidator)
}

func (a Authorizer) IsGlobalApprover(ctx context.Context, tx *sql.Tx, actorID string) (bool, error) {
	return a.Repo.ActorHasRoleTx(ctx, tx, actorID, RoleGlobalApprover)
}

// RequireValidator gates validator-only edges (finalize, rebuttal review,
// action-plan review, closure review). Admins pass every gate.
func (a Authorizer) RequireValidator(ctx context.Context, tx *sql.Tx, actorID string) error {
	ok, err := a.IsValidator(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return a.requireAdmin(ctx, tx, actorID, "validator")
}

// RequireAssignee gates assignee-only edges (acknowledge, rebut, submit plan,
// task updates, closure submission).
func (a Authorizer) RequireAssignee(ctx context.Context, tx *sql.Tx, rec domain.Recommendation, actorID string) error {
	if rec.AssignedToID == actorID {
		return nil
	}
	return a.requireAdmin(ctx, tx, actorID, "assignee")
}

// RequireCreatorOrValidator gates draft edits and finalization ownership.
func (a Authorizer) RequireCreatorOrValidator(ctx context.Context, tx *sql.Tx, rec domain.Recommendation, actorID string) error {
	if rec.CreatedByID == actorID {
		return nil
	}
	ok, err := a.IsValidator(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return a.requireAdmin(ctx, tx, actorID, "creator or validator")
}

func (a Authorizer) RequireAdmin(ctx context.Context, tx *sql.Tx, actorID string) error {
	return a.requireAdmin(ctx, tx, actorID, RoleAdmin)
}

func (a Authorizer) requireAdmin(ctx context.Context, tx *sql.Tx, actorID, capability string) error {
	ok, err := a.IsAdmin(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return ForbiddenError{ActorID: actorID, Capability: capability}
}

// AuthorizeApprovalDecision checks the actor against one approval slot. A
// global slot takes a global approver. A regional slot takes that region's
// approver, or a global approver acting as proxy; the proxy case is reported
// so the caller can stamp represented_region_id on the decision.
func (a Authorizer) AuthorizeApprovalDecision(ctx context.Context, tx *sql.Tx, ap domain.Approval, actorID string) (proxy bool, err error) {
	admin, err := a.IsAdmin(ctx, tx, actorID)
	if err != nil {
		return false, err
	}
	switch ap.ApprovalType {
	case domain.ApprovalTypeGlobal:
		if admin {
			return false, nil
		}
		ok, err := a.IsGlobalApprover(ctx, tx, actorID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ForbiddenError{ActorID: actorID, Capability: "global approval"}
		}
		return false, nil
	case domain.ApprovalTypeRegional:
		if ap.RegionID == nil {
			return false, fmt.Errorf("regional approval %s has no region", ap.ID)
		}
		ok, err := a.Repo.IsRegionApproverTx(ctx, tx, actorID, *ap.RegionID)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
		if admin {
			return false, nil
		}
		global, err := a.IsGlobalApprover(ctx, tx, actorID)
		if err != nil {
			return false, err
		}
		if global {
			return true, nil
		}
		return false, ForbiddenError{ActorID: actorID, Capability: "regional approval for " + *ap.RegionID}
	default:
		return false, fmt.Errorf("unknown approval type %s", ap.ApprovalType)
	}
}
