package repo

import (
	"context"
	"database/sql"

	"remwork/internal/domain"
)

const approvalColumns = `id,recommendation_id,approval_type,region_id,represented_region_id,approver_id,status,approved_at,comments,evidence,voided_by_id,void_reason,voided_at,is_required,created_at`

func scanApproval(row rowScanner) (domain.Approval, error) {
	var ap domain.Approval
	var regionID, representedRegionID, approverID, approvedAt, comments, evidence, voidedBy, voidReason, voidedAt sql.NullString
	var isRequired int
	err := row.Scan(&ap.ID, &ap.RecommendationID, &ap.ApprovalType, &regionID, &representedRegionID, &approverID,
		&ap.Status, &approvedAt, &comments, &evidence, &voidedBy, &voidReason, &voidedAt, &isRequired, &ap.CreatedAt)
	if err == sql.ErrNoRows {
		return ap, ErrNotFound
	}
	if err != nil {
		return ap, err
	}
	ap.RegionID = fromNull(regionID)
	ap.RepresentedRegionID = fromNull(representedRegionID)
	ap.ApproverID = fromNull(approverID)
	ap.ApprovedAt = fromNull(approvedAt)
	ap.Comments = fromNull(comments)
	ap.Evidence = fromNull(evidence)
	ap.VoidedByID = fromNull(voidedBy)
	ap.VoidReason = fromNull(voidReason)
	ap.VoidedAt = fromNull(voidedAt)
	ap.IsRequired = isRequired == 1
	return ap, nil
}

func (r Repo) InsertApprovalTx(ctx context.Context, tx *sql.Tx, ap domain.Approval) error {
	required := 0
	if ap.IsRequired {
		required = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO approvals(`+approvalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ap.ID, ap.RecommendationID, ap.ApprovalType, nullableStringPtr(ap.RegionID), nullableStringPtr(ap.RepresentedRegionID),
		nullableStringPtr(ap.ApproverID), ap.Status, nullableStringPtr(ap.ApprovedAt), nullableStringPtr(ap.Comments),
		nullableStringPtr(ap.Evidence), nullableStringPtr(ap.VoidedByID), nullableStringPtr(ap.VoidReason),
		nullableStringPtr(ap.VoidedAt), required, ap.CreatedAt)
	return err
}

func (r Repo) GetApproval(ctx context.Context, id string) (domain.Approval, error) {
	return scanApproval(r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=?`, id))
}

func (r Repo) GetApprovalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Approval, error) {
	return scanApproval(tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=?`, id))
}

func (r Repo) ListApprovals(ctx context.Context, recommendationID string) ([]domain.Approval, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE recommendation_id=? ORDER BY created_at ASC, id ASC`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApprovals(rows)
}

func (r Repo) ListApprovalsTx(ctx context.Context, tx *sql.Tx, recommendationID string) ([]domain.Approval, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE recommendation_id=? ORDER BY created_at ASC, id ASC`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApprovals(rows)
}

func collectApprovals(rows *sql.Rows) ([]domain.Approval, error) {
	var res []domain.Approval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ap)
	}
	return res, rows.Err()
}

// DecideApprovalTx records a decision on a PENDING approval. The status guard
// in the WHERE clause keeps a voided or already-decided row from being
// silently re-decided.
func (r Repo) DecideApprovalTx(ctx context.Context, tx *sql.Tx, id, status, approverID, decidedAt string, comments, evidence, representedRegionID *string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE approvals SET status=?, approver_id=?, approved_at=?, comments=?, evidence=?, represented_region_id=? WHERE id=? AND status=?`,
		status, approverID, decidedAt, nullableStringPtr(comments), nullableStringPtr(evidence), nullableStringPtr(representedRegionID), id, domain.ApprovalPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// VoidApprovalTx re-opens a decided slot: back to PENDING with the decision
// and approver fields cleared. The void metadata stays on the row as the
// trace of the last void; the void itself is also recorded in status history.
// The status guard rejects voiding a PENDING (or already re-opened) row.
func (r Repo) VoidApprovalTx(ctx context.Context, tx *sql.Tx, id, voidedByID, voidReason, voidedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE approvals SET status=?, approver_id=NULL, approved_at=NULL, comments=NULL, evidence=NULL, voided_by_id=?, void_reason=?, voided_at=? WHERE id=? AND status IN (?,?)`,
		domain.ApprovalPending, voidedByID, voidReason, voidedAt, id, domain.ApprovalApproved, domain.ApprovalRejected)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ReopenRejectedApprovalsTx flips REJECTED slots back to PENDING when the
// recommendation re-enters the approval phase. APPROVED slots stand.
func (r Repo) ReopenRejectedApprovalsTx(ctx context.Context, tx *sql.Tx, recommendationID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE approvals SET status=?, approver_id=NULL, approved_at=NULL, comments=NULL, evidence=NULL WHERE recommendation_id=? AND status=?`,
		domain.ApprovalPending, recommendationID, domain.ApprovalRejected)
	return err
}

// ApprovalTally summarizes the required approvals of one recommendation,
// computed inside the deciding transaction so the completion check and the
// decision it reacts to are atomic.
type ApprovalTally struct {
	Pending  int
	Approved int
	Rejected int
}

func (t ApprovalTally) AllApproved() bool {
	return t.Pending == 0 && t.Rejected == 0 && t.Approved > 0
}

func (r Repo) TallyApprovalsTx(ctx context.Context, tx *sql.Tx, recommendationID string) (ApprovalTally, error) {
	rows, err := tx.QueryContext(ctx, `SELECT status, count(*) FROM approvals WHERE recommendation_id=? AND is_required=1 GROUP BY status`,
		recommendationID)
	if err != nil {
		return ApprovalTally{}, err
	}
	defer rows.Close()
	var t ApprovalTally
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return ApprovalTally{}, err
		}
		switch status {
		case domain.ApprovalPending:
			t.Pending = count
		case domain.ApprovalApproved:
			t.Approved = count
		case domain.ApprovalRejected:
			t.Rejected = count
		}
	}
	return t, rows.Err()
}
