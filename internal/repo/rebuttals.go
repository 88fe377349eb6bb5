package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

const rebuttalColumns = `id,recommendation_id,rationale,evidence,submitted_by_id,submitted_at,reviewed_by_id,reviewed_at,review_decision,review_comments,is_current`

func scanRebuttal(row rowScanner) (domain.Rebuttal, error) {
	var rb domain.Rebuttal
	var evidence, reviewedBy, reviewedAt, decision, comments sql.NullString
	var isCurrent int
	err := row.Scan(&rb.ID, &rb.RecommendationID, &rb.Rationale, &evidence, &rb.SubmittedByID, &rb.SubmittedAt,
		&reviewedBy, &reviewedAt, &decision, &comments, &isCurrent)
	if err == sql.ErrNoRows {
		return rb, ErrNotFound
	}
	if err != nil {
		return rb, err
	}
	rb.Evidence = fromNull(evidence)
	rb.ReviewedByID = fromNull(reviewedBy)
	rb.ReviewedAt = fromNull(reviewedAt)
	rb.ReviewDecision = fromNull(decision)
	rb.ReviewComments = fromNull(comments)
	rb.IsCurrent = isCurrent == 1
	return rb, nil
}

// InsertRebuttalTx demotes the previous current rebuttal and inserts the new
// one as current, all inside the caller's transaction.
func (r Repo) InsertRebuttalTx(ctx context.Context, tx *sql.Tx, rb domain.Rebuttal) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE rebuttals SET is_current=0 WHERE recommendation_id=? AND is_current=1`, rb.RecommendationID); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO rebuttals(recommendation_id,rationale,evidence,submitted_by_id,submitted_at,is_current) VALUES (?,?,?,?,?,1)`,
		rb.RecommendationID, rb.Rationale, nullableStringPtr(rb.Evidence), rb.SubmittedByID, rb.SubmittedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) CurrentRebuttal(ctx context.Context, recommendationID string) (domain.Rebuttal, error) {
	return scanRebuttal(r.DB.QueryRowContext(ctx, `SELECT `+rebuttalColumns+` FROM rebuttals WHERE recommendation_id=? AND is_current=1`, recommendationID))
}

func (r Repo) CurrentRebuttalTx(ctx context.Context, tx *sql.Tx, recommendationID string) (domain.Rebuttal, error) {
	return scanRebuttal(tx.QueryRowContext(ctx, `SELECT `+rebuttalColumns+` FROM rebuttals WHERE recommendation_id=? AND is_current=1`, recommendationID))
}

func (r Repo) ListRebuttals(ctx context.Context, recommendationID string) ([]domain.Rebuttal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+rebuttalColumns+` FROM rebuttals WHERE recommendation_id=? ORDER BY id DESC`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rebuttal
	for rows.Next() {
		rb, err := scanRebuttal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rb)
	}
	return res, rows.Err()
}

// RecordRebuttalReviewTx stores the validator's decision on one rebuttal row.
// The row stays current; an overridden rebuttal is history, not re-opened.
func (r Repo) RecordRebuttalReviewTx(ctx context.Context, tx *sql.Tx, id int64, reviewerID, reviewedAt, decision string, comments *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE rebuttals SET reviewed_by_id=?, reviewed_at=?, review_decision=?, review_comments=? WHERE id=? AND review_decision IS NULL`,
		reviewerID, reviewedAt, decision, nullableStringPtr(comments), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
