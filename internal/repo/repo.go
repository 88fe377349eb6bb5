package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"remwork/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const recommendationColumns = `id,validation_request_id,monitoring_cycle_id,model_id,title,description,root_cause,priority_id,category_id,current_status,created_by_id,assigned_to_id,original_target_date,current_target_date,finalized_at,acknowledged_at,closed_at,closed_by_id,closure_summary,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row rowScanner) (domain.Recommendation, error) {
	var rec domain.Recommendation
	var validationRequestID, monitoringCycleID, description, rootCause, categoryID sql.NullString
	var originalTarget, currentTarget, finalizedAt, acknowledgedAt, closedAt, closedByID, closureSummary sql.NullString
	err := row.Scan(&rec.ID, &validationRequestID, &monitoringCycleID, &rec.ModelID, &rec.Title, &description, &rootCause,
		&rec.PriorityID, &categoryID, &rec.CurrentStatus, &rec.CreatedByID, &rec.AssignedToID,
		&originalTarget, &currentTarget, &finalizedAt, &acknowledgedAt, &closedAt, &closedByID, &closureSummary,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.ValidationRequestID = fromNull(validationRequestID)
	rec.MonitoringCycleID = fromNull(monitoringCycleID)
	if description.Valid {
		rec.Description = description.String
	}
	if rootCause.Valid {
		rec.RootCause = rootCause.String
	}
	if categoryID.Valid {
		rec.CategoryID = categoryID.String
	}
	rec.OriginalTargetDate = fromNull(originalTarget)
	rec.CurrentTargetDate = fromNull(currentTarget)
	rec.FinalizedAt = fromNull(finalizedAt)
	rec.AcknowledgedAt = fromNull(acknowledgedAt)
	rec.ClosedAt = fromNull(closedAt)
	rec.ClosedByID = fromNull(closedByID)
	rec.ClosureSummary = fromNull(closureSummary)
	return rec, nil
}

func (r Repo) InsertRecommendationTx(ctx context.Context, tx *sql.Tx, rec domain.Recommendation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO recommendations(`+recommendationColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, nullableStringPtr(rec.ValidationRequestID), nullableStringPtr(rec.MonitoringCycleID), rec.ModelID,
		rec.Title, nullable(rec.Description), nullable(rec.RootCause), rec.PriorityID, nullable(rec.CategoryID),
		rec.CurrentStatus, rec.CreatedByID, rec.AssignedToID,
		nullableStringPtr(rec.OriginalTargetDate), nullableStringPtr(rec.CurrentTargetDate),
		nullableStringPtr(rec.FinalizedAt), nullableStringPtr(rec.AcknowledgedAt),
		nullableStringPtr(rec.ClosedAt), nullableStringPtr(rec.ClosedByID), nullableStringPtr(rec.ClosureSummary),
		rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r Repo) GetRecommendation(ctx context.Context, id string) (domain.Recommendation, error) {
	return scanRecommendation(r.DB.QueryRowContext(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE id=?`, id))
}

func (r Repo) GetRecommendationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Recommendation, error) {
	return scanRecommendation(tx.QueryRowContext(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE id=?`, id))
}

// UpdateRecommendationTx writes the full row guarded by the expected status.
// Zero rows affected means another transition won the race; the caller treats
// that as a conflict and rolls back.
func (r Repo) UpdateRecommendationTx(ctx context.Context, tx *sql.Tx, rec domain.Recommendation, expectedStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE recommendations SET
validation_request_id=?, monitoring_cycle_id=?, model_id=?, title=?, description=?, root_cause=?, priority_id=?, category_id=?,
current_status=?, assigned_to_id=?, original_target_date=?, current_target_date=?, finalized_at=?, acknowledged_at=?,
closed_at=?, closed_by_id=?, closure_summary=?, updated_at=?
WHERE id=? AND current_status=?`,
		nullableStringPtr(rec.ValidationRequestID), nullableStringPtr(rec.MonitoringCycleID), rec.ModelID,
		rec.Title, nullable(rec.Description), nullable(rec.RootCause), rec.PriorityID, nullable(rec.CategoryID),
		rec.CurrentStatus, rec.AssignedToID,
		nullableStringPtr(rec.OriginalTargetDate), nullableStringPtr(rec.CurrentTargetDate),
		nullableStringPtr(rec.FinalizedAt), nullableStringPtr(rec.AcknowledgedAt),
		nullableStringPtr(rec.ClosedAt), nullableStringPtr(rec.ClosedByID), nullableStringPtr(rec.ClosureSummary),
		rec.UpdatedAt, rec.ID, expectedStatus)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

type RecommendationFilters struct {
	Status              string
	PriorityID          string
	AssignedToID        string
	ModelID             string
	ValidationRequestID string
	MonitoringCycleID   string
	Limit               int
	CursorCreatedAt     string
	CursorID            string
}

func (r Repo) ListRecommendations(ctx context.Context, f RecommendationFilters) ([]domain.Recommendation, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "current_status=?")
		args = append(args, f.Status)
	}
	if f.PriorityID != "" {
		clauses = append(clauses, "priority_id=?")
		args = append(args, f.PriorityID)
	}
	if f.AssignedToID != "" {
		clauses = append(clauses, "assigned_to_id=?")
		args = append(args, f.AssignedToID)
	}
	if f.ModelID != "" {
		clauses = append(clauses, "model_id=?")
		args = append(args, f.ModelID)
	}
	if f.ValidationRequestID != "" {
		clauses = append(clauses, "validation_request_id=?")
		args = append(args, f.ValidationRequestID)
	}
	if f.MonitoringCycleID != "" {
		clauses = append(clauses, "monitoring_cycle_id=?")
		args = append(args, f.MonitoringCycleID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + recommendationColumns + ` FROM recommendations ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) CountRecommendationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT current_status, count(*) FROM recommendations GROUP BY current_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func fromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
