package workflow

import (
	"context"

	"github.com/google/uuid"

	"remwork/internal/domain"
	"remwork/internal/identity"
	"remwork/internal/repo"
)

func (e Engine) requireAdmin(ctx context.Context, actorID string) error {
	ok, err := e.Repo.ActorHasRole(ctx, actorID, identity.RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return identity.ForbiddenError{ActorID: actorID, Capability: identity.RoleAdmin}
	}
	return nil
}

func (e Engine) ListPriorityConfigs(ctx context.Context) ([]domain.PriorityConfig, error) {
	return e.Repo.ListPriorityConfigs(ctx)
}

// UpdatePriorityConfig changes whether a priority requires final approval.
// The change applies to recommendations entering the approval phase after it;
// already-materialized approval sets are snapshots and stay as routed.
func (e Engine) UpdatePriorityConfig(ctx context.Context, actorID string, pc domain.PriorityConfig) (domain.PriorityConfig, error) {
	if pc.PriorityID == "" {
		return domain.PriorityConfig{}, ValidationError{Field: "priority_id", Message: "required"}
	}
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return domain.PriorityConfig{}, err
	}
	pc.UpdatedAt = e.timestamp()
	if err := e.Repo.UpsertPriorityConfig(ctx, pc); err != nil {
		return domain.PriorityConfig{}, err
	}
	return pc, nil
}

func (e Engine) ListModelRegions(ctx context.Context, modelID string) ([]domain.ModelRegion, error) {
	return e.Repo.ListModelRegions(ctx, modelID)
}

// UpsertModelRegion maintains the registry view the router reads at fan-out.
func (e Engine) UpsertModelRegion(ctx context.Context, actorID string, mr domain.ModelRegion) error {
	if mr.ModelID == "" || mr.RegionID == "" {
		return ValidationError{Field: "model_id/region_id", Message: "required"}
	}
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	return e.Repo.UpsertModelRegion(ctx, mr)
}

func (e Engine) DeleteModelRegion(ctx context.Context, actorID, modelID, regionID string) error {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	return e.Repo.DeleteModelRegion(ctx, modelID, regionID)
}

// GrantRole assigns a role to an actor, creating the actor row on first use.
func (e Engine) GrantRole(ctx context.Context, actorID, granteeID, roleID string) error {
	if granteeID == "" || roleID == "" {
		return ValidationError{Field: "actor_id/role_id", Message: "required"}
	}
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := e.Repo.EnsureActor(ctx, granteeID, e.timestamp()); err != nil {
		return err
	}
	return e.Repo.AssignRole(ctx, granteeID, roleID)
}

func (e Engine) RevokeRole(ctx context.Context, actorID, granteeID, roleID string) error {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	return e.Repo.RevokeRole(ctx, granteeID, roleID)
}

// GrantRegionApprover marks an actor as approver for one region.
func (e Engine) GrantRegionApprover(ctx context.Context, actorID, granteeID, regionID string) error {
	if granteeID == "" || regionID == "" {
		return ValidationError{Field: "actor_id/region_id", Message: "required"}
	}
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := e.Repo.EnsureActor(ctx, granteeID, e.timestamp()); err != nil {
		return err
	}
	return e.Repo.AssignRegionApprover(ctx, granteeID, regionID)
}

// CreateAPIKey mints a key for service callers. The plaintext is returned
// once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, ownerID, name string) (domain.APIKey, string, error) {
	if ownerID == "" {
		return domain.APIKey{}, "", ValidationError{Field: "actor_id", Message: "required"}
	}
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := uuid.NewString() + uuid.NewString()
	k := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   ownerID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return domain.APIKey{}, "", err
	}
	return k, plaintext, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID, ownerID string) ([]domain.APIKey, error) {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, ownerID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, actorID, keyID string) error {
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	return e.Repo.DeleteAPIKey(ctx, keyID)
}
