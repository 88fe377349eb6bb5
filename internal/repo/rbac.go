package repo

import (
	"context"
	"database/sql"
)

func (r Repo) EnsureActor(ctx context.Context, actorID, createdAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actors(id,created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`, actorID, createdAt)
	return err
}

func (r Repo) AssignRole(ctx context.Context, actorID, roleID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actor_roles(actor_id,role_id) VALUES (?,?) ON CONFLICT(actor_id,role_id) DO NOTHING`, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, actorID, roleID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ActorHasRole(ctx context.Context, actorID, roleID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID).Scan(&n)
	return n > 0, err
}

func (r Repo) ActorHasRoleTx(ctx context.Context, tx *sql.Tx, actorID, roleID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListActorRoles(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id ASC`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (r Repo) AssignRegionApprover(ctx context.Context, actorID, regionID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO region_approvers(actor_id,region_id) VALUES (?,?) ON CONFLICT(actor_id,region_id) DO NOTHING`, actorID, regionID)
	return err
}

func (r Repo) IsRegionApprover(ctx context.Context, actorID, regionID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM region_approvers WHERE actor_id=? AND region_id=?`, actorID, regionID).Scan(&n)
	return n > 0, err
}

func (r Repo) IsRegionApproverTx(ctx context.Context, tx *sql.Tx, actorID, regionID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM region_approvers WHERE actor_id=? AND region_id=?`, actorID, regionID).Scan(&n)
	return n > 0, err
}
