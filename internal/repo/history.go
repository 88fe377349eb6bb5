package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

const historyColumns = `id,recommendation_id,old_status,new_status,changed_by_id,changed_at,reason`

func scanHistory(row rowScanner) (domain.StatusHistory, error) {
	var h domain.StatusHistory
	var oldStatus, reason sql.NullString
	err := row.Scan(&h.ID, &h.RecommendationID, &oldStatus, &h.NewStatus, &h.ChangedByID, &h.ChangedAt, &reason)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	h.OldStatus = fromNull(oldStatus)
	h.Reason = fromNull(reason)
	return h, nil
}

// ListHistory returns the timeline of one recommendation in insertion order.
func (r Repo) ListHistory(ctx context.Context, recommendationID string) ([]domain.StatusHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+historyColumns+` FROM status_history WHERE recommendation_id=? ORDER BY id ASC`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHistory(rows)
}

// HistoryAfter returns entries with id greater than afterID across all
// recommendations, oldest first. The webhook dispatcher tails the ledger
// with it.
func (r Repo) HistoryAfter(ctx context.Context, afterID int64, limit int) ([]domain.StatusHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+historyColumns+` FROM status_history WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHistory(rows)
}

func (r Repo) LatestHistoryID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT max(id) FROM status_history`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func collectHistory(rows *sql.Rows) ([]domain.StatusHistory, error) {
	var res []domain.StatusHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
