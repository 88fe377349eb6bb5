package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"remwork/internal/config"
	"remwork/internal/db"
	"remwork/internal/domain"
	"remwork/internal/migrate"
	"remwork/internal/repo"
)

// Bootstrap opens the workspace database, runs migrations, and seeds
// reference data from the config: priority rows, the model/region registry,
// role grants, and regional approvers. Seeding is idempotent; existing rows
// are updated in place, and roles granted outside the config are left alone.
func Bootstrap(ctx context.Context, workspace string, cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg != nil {
		if err := Seed(ctx, conn, cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	return conn, nil
}

// Seed applies the config's reference data to the database.
func Seed(ctx context.Context, conn *sql.DB, cfg *config.Config) error {
	r := repo.Repo{DB: conn}
	now := time.Now().UTC().Format(time.RFC3339)
	for id, entry := range cfg.Priorities {
		pc := domain.PriorityConfig{
			PriorityID:            id,
			RequiresFinalApproval: entry.RequiresFinalApproval,
			Description:           entry.Description,
			UpdatedAt:             now,
		}
		if err := r.UpsertPriorityConfig(ctx, pc); err != nil {
			return fmt.Errorf("priority %s: %w", id, err)
		}
	}
	for _, region := range cfg.Regions {
		mr := domain.ModelRegion{
			ModelID:                  region.ModelID,
			RegionID:                 region.RegionID,
			RequiresRegionalApproval: region.RequiresRegionalApproval,
		}
		if err := r.UpsertModelRegion(ctx, mr); err != nil {
			return fmt.Errorf("region %s/%s: %w", region.ModelID, region.RegionID, err)
		}
	}
	for roleID, actors := range cfg.RBAC.Roles {
		for _, actorID := range actors {
			if err := r.EnsureActor(ctx, actorID, now); err != nil {
				return err
			}
			if err := r.AssignRole(ctx, actorID, roleID); err != nil {
				return fmt.Errorf("role %s for %s: %w", roleID, actorID, err)
			}
		}
	}
	for regionID, actors := range cfg.RBAC.RegionApprovers {
		for _, actorID := range actors {
			if err := r.EnsureActor(ctx, actorID, now); err != nil {
				return err
			}
			if err := r.AssignRegionApprover(ctx, actorID, regionID); err != nil {
				return fmt.Errorf("region approver %s for %s: %w", regionID, actorID, err)
			}
		}
	}
	return nil
}
