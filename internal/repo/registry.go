package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

func (r Repo) UpsertModelRegion(ctx context.Context, mr domain.ModelRegion) error {
	requires := 0
	if mr.RequiresRegionalApproval {
		requires = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO model_regions(model_id,region_id,requires_regional_approval) VALUES (?,?,?)
ON CONFLICT(model_id,region_id) DO UPDATE SET requires_regional_approval=excluded.requires_regional_approval`,
		mr.ModelID, mr.RegionID, requires)
	return err
}

func (r Repo) DeleteModelRegion(ctx context.Context, modelID, regionID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM model_regions WHERE model_id=? AND region_id=?`, modelID, regionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListModelRegions(ctx context.Context, modelID string) ([]domain.ModelRegion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT model_id,region_id,requires_regional_approval FROM model_regions WHERE model_id=? ORDER BY region_id ASC`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectModelRegions(rows)
}

// ListModelRegionsTx is the routing read: the fan-out materializes one slot per
// owning region that requires regional sign-off, inside the transition tx.
func (r Repo) ListModelRegionsTx(ctx context.Context, tx *sql.Tx, modelID string) ([]domain.ModelRegion, error) {
	rows, err := tx.QueryContext(ctx, `SELECT model_id,region_id,requires_regional_approval FROM model_regions WHERE model_id=? ORDER BY region_id ASC`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectModelRegions(rows)
}

func collectModelRegions(rows *sql.Rows) ([]domain.ModelRegion, error) {
	var res []domain.ModelRegion
	for rows.Next() {
		var mr domain.ModelRegion
		var requires int
		if err := rows.Scan(&mr.ModelID, &mr.RegionID, &requires); err != nil {
			return nil, err
		}
		mr.RequiresRegionalApproval = requires == 1
		res = append(res, mr)
	}
	return res, rows.Err()
}
