package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

const taskColumns = `id,recommendation_id,task_order,description,owner_id,target_date,completed_date,completion_status_id,completion_notes,created_at,updated_at`

func scanTask(row rowScanner) (domain.ActionPlanTask, error) {
	var t domain.ActionPlanTask
	var completedDate, completionStatus, completionNotes sql.NullString
	err := row.Scan(&t.ID, &t.RecommendationID, &t.TaskOrder, &t.Description, &t.OwnerID, &t.TargetDate,
		&completedDate, &completionStatus, &completionNotes, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.CompletedDate = fromNull(completedDate)
	t.CompletionStatusID = fromNull(completionStatus)
	t.CompletionNotes = fromNull(completionNotes)
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.ActionPlanTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO action_plan_tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.RecommendationID, t.TaskOrder, t.Description, t.OwnerID, t.TargetDate,
		nullableStringPtr(t.CompletedDate), nullableStringPtr(t.CompletionStatusID), nullableStringPtr(t.CompletionNotes),
		t.CreatedAt, t.UpdatedAt)
	return err
}

// DeleteTasksTx removes the whole batch; a plan resubmission replaces it.
func (r Repo) DeleteTasksTx(ctx context.Context, tx *sql.Tx, recommendationID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM action_plan_tasks WHERE recommendation_id=?`, recommendationID)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.ActionPlanTask, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM action_plan_tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.ActionPlanTask, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM action_plan_tasks WHERE id=?`, id))
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.ActionPlanTask) error {
	_, err := tx.ExecContext(ctx, `UPDATE action_plan_tasks SET description=?, owner_id=?, target_date=?, completed_date=?, completion_status_id=?, completion_notes=?, updated_at=? WHERE id=?`,
		t.Description, t.OwnerID, t.TargetDate,
		nullableStringPtr(t.CompletedDate), nullableStringPtr(t.CompletionStatusID), nullableStringPtr(t.CompletionNotes),
		t.UpdatedAt, t.ID)
	return err
}

func (r Repo) ListTasks(ctx context.Context, recommendationID string) ([]domain.ActionPlanTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM action_plan_tasks WHERE recommendation_id=? ORDER BY task_order ASC`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActionPlanTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksTx(ctx context.Context, tx *sql.Tx, recommendationID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM action_plan_tasks WHERE recommendation_id=?`, recommendationID).Scan(&n)
	return n, err
}
