package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

func scanEvidence(row rowScanner) (domain.ClosureEvidence, error) {
	var ev domain.ClosureEvidence
	var url sql.NullString
	err := row.Scan(&ev.ID, &ev.RecommendationID, &ev.Description, &url, &ev.UploadedByID, &ev.UploadedAt)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	ev.URL = fromNull(url)
	return ev, nil
}

func (r Repo) InsertEvidence(ctx context.Context, ev domain.ClosureEvidence) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO closure_evidence(id,recommendation_id,description,url,uploaded_by_id,uploaded_at) VALUES (?,?,?,?,?,?)`,
		ev.ID, ev.RecommendationID, ev.Description, nullableStringPtr(ev.URL), ev.UploadedByID, ev.UploadedAt)
	return err
}

func (r Repo) GetEvidence(ctx context.Context, id string) (domain.ClosureEvidence, error) {
	return scanEvidence(r.DB.QueryRowContext(ctx, `SELECT id,recommendation_id,description,url,uploaded_by_id,uploaded_at FROM closure_evidence WHERE id=?`, id))
}

func (r Repo) DeleteEvidence(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM closure_evidence WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListEvidence(ctx context.Context, recommendationID string) ([]domain.ClosureEvidence, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,recommendation_id,description,url,uploaded_by_id,uploaded_at FROM closure_evidence WHERE recommendation_id=? ORDER BY uploaded_at DESC, id DESC`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ClosureEvidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
