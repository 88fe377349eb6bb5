package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

func scanPriorityConfig(row rowScanner) (domain.PriorityConfig, error) {
	var pc domain.PriorityConfig
	var description sql.NullString
	var requires int
	err := row.Scan(&pc.PriorityID, &requires, &description, &pc.UpdatedAt)
	if err == sql.ErrNoRows {
		return pc, ErrNotFound
	}
	if err != nil {
		return pc, err
	}
	pc.RequiresFinalApproval = requires == 1
	if description.Valid {
		pc.Description = description.String
	}
	return pc, nil
}

func (r Repo) UpsertPriorityConfig(ctx context.Context, pc domain.PriorityConfig) error {
	requires := 0
	if pc.RequiresFinalApproval {
		requires = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO priority_configs(priority_id,requires_final_approval,description,updated_at) VALUES (?,?,?,?)
ON CONFLICT(priority_id) DO UPDATE SET requires_final_approval=excluded.requires_final_approval, description=excluded.description, updated_at=excluded.updated_at`,
		pc.PriorityID, requires, nullable(pc.Description), pc.UpdatedAt)
	return err
}

func (r Repo) GetPriorityConfig(ctx context.Context, priorityID string) (domain.PriorityConfig, error) {
	return scanPriorityConfig(r.DB.QueryRowContext(ctx, `SELECT priority_id,requires_final_approval,description,updated_at FROM priority_configs WHERE priority_id=?`, priorityID))
}

// GetPriorityConfigTx reads the approval requirement inside the routing
// transaction so a concurrent config change cannot split the fan-out.
func (r Repo) GetPriorityConfigTx(ctx context.Context, tx *sql.Tx, priorityID string) (domain.PriorityConfig, error) {
	return scanPriorityConfig(tx.QueryRowContext(ctx, `SELECT priority_id,requires_final_approval,description,updated_at FROM priority_configs WHERE priority_id=?`, priorityID))
}

func (r Repo) ListPriorityConfigs(ctx context.Context) ([]domain.PriorityConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT priority_id,requires_final_approval,description,updated_at FROM priority_configs ORDER BY priority_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PriorityConfig
	for rows.Next() {
		pc, err := scanPriorityConfig(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, pc)
	}
	return res, rows.Err()
}
