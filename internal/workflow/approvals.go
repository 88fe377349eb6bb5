package workflow

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"remwork/internal/domain"
	"remwork/internal/history"
)

// routeApprovalsTx materializes the required approval set at the moment the
// recommendation enters the approval phase: one GLOBAL slot always, plus one
// REGIONAL slot per region that owns the model and requires regional sign-off.
// The set is a snapshot; later registry or priority changes do not touch it.
// On re-entry after a rejection the existing set is retained: rejected slots
// re-open, approved slots stand. Returns true when nothing is left pending.
func (e Engine) routeApprovalsTx(ctx context.Context, tx *sql.Tx, rec domain.Recommendation) (bool, error) {
	existing, err := e.Repo.ListApprovalsTx(ctx, tx, rec.ID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		if err := e.Repo.ReopenRejectedApprovalsTx(ctx, tx, rec.ID); err != nil {
			return false, err
		}
		tally, err := e.Repo.TallyApprovalsTx(ctx, tx, rec.ID)
		if err != nil {
			return false, err
		}
		return tally.AllApproved(), nil
	}

	ts := e.timestamp()
	slots := []domain.Approval{{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		ApprovalType:     domain.ApprovalTypeGlobal,
		Status:           domain.ApprovalPending,
		IsRequired:       true,
		CreatedAt:        ts,
	}}
	regions, err := e.Repo.ListModelRegionsTx(ctx, tx, rec.ModelID)
	if err != nil {
		return false, err
	}
	for _, mr := range regions {
		if !mr.RequiresRegionalApproval {
			continue
		}
		regionID := mr.RegionID
		slots = append(slots, domain.Approval{
			ID:               uuid.NewString(),
			RecommendationID: rec.ID,
			ApprovalType:     domain.ApprovalTypeRegional,
			RegionID:         &regionID,
			Status:           domain.ApprovalPending,
			IsRequired:       true,
			CreatedAt:        ts,
		})
	}
	for _, ap := range slots {
		if err := e.Repo.InsertApprovalTx(ctx, tx, ap); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Approvals lists the approval set of one recommendation.
func (e Engine) Approvals(ctx context.Context, id string) ([]domain.Approval, error) {
	if _, err := e.Repo.GetRecommendation(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListApprovals(ctx, id)
}

// SubmitApproval records one approver's decision on one slot. The completion
// check runs inside the same transaction as the decision write, so two
// concurrent last approvals cannot both observe a completed set; the second
// transaction finds the parent already CLOSED and fails its status guard.
func (e Engine) SubmitApproval(ctx context.Context, approvalID, actorID, decision, comments, evidence string) (domain.Approval, domain.Recommendation, error) {
	var status string
	switch decision {
	case domain.DecisionApprove:
		status = domain.ApprovalApproved
	case domain.DecisionReject:
		status = domain.ApprovalRejected
		if comments == "" {
			return domain.Approval{}, domain.Recommendation{}, ValidationError{Field: "comments", Message: "required when rejecting"}
		}
	default:
		return domain.Approval{}, domain.Recommendation{}, ValidationError{Field: "decision", Message: "must be approve or reject"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}
	defer tx.Rollback()

	ap, err := e.Repo.GetApprovalTx(ctx, tx, approvalID)
	if err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}
	rec, err := e.Repo.GetRecommendationTx(ctx, tx, ap.RecommendationID)
	if err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}
	if err := checkTransition(rec, ActionSubmitApproval); err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}
	proxy, err := e.Auth.AuthorizeApprovalDecision(ctx, tx, ap, actorID)
	if err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}

	var representedRegion *string
	if proxy {
		representedRegion = ap.RegionID
	}
	ts := e.timestamp()
	ok, err := e.Repo.DecideApprovalTx(ctx, tx, ap.ID, status, actorID, ts, optionalString(comments), optionalString(evidence), representedRegion)
	if err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}
	if !ok {
		// Already decided; a fresh decision requires an admin void first.
		return domain.Approval{}, domain.Recommendation{}, InvalidTransitionError{RecommendationID: rec.ID, CurrentStatus: rec.CurrentStatus, Action: ActionSubmitApproval}
	}
	ap.Status = status
	ap.ApproverID = &actorID
	ap.ApprovedAt = &ts
	ap.Comments = optionalString(comments)
	ap.Evidence = optionalString(evidence)
	ap.RepresentedRegionID = representedRegion

	from := rec.CurrentStatus
	if status == domain.ApprovalRejected {
		rec.CurrentStatus = domain.StatusPendingClosureReview
		if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, comments); err != nil {
			return domain.Approval{}, domain.Recommendation{}, err
		}
	} else {
		tally, err := e.Repo.TallyApprovalsTx(ctx, tx, rec.ID)
		if err != nil {
			return domain.Approval{}, domain.Recommendation{}, err
		}
		if tally.AllApproved() {
			e.markClosed(&rec, actorID)
			if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, ""); err != nil {
				return domain.Approval{}, domain.Recommendation{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Approval{}, domain.Recommendation{}, err
	}
	return ap, rec, nil
}

// VoidApproval is the administrative reset of one decided slot back to
// PENDING. It never transitions the parent recommendation; it only re-opens
// the slot for a fresh decision, and leaves standing decisions on siblings
// untouched.
func (e Engine) VoidApproval(ctx context.Context, approvalID, actorID, reason string) (domain.Approval, error) {
	if reason == "" {
		return domain.Approval{}, ValidationError{Field: "reason", Message: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Approval{}, err
	}
	defer tx.Rollback()

	ap, err := e.Repo.GetApprovalTx(ctx, tx, approvalID)
	if err != nil {
		return domain.Approval{}, err
	}
	rec, err := e.Repo.GetRecommendationTx(ctx, tx, ap.RecommendationID)
	if err != nil {
		return domain.Approval{}, err
	}
	if rec.CurrentStatus == domain.StatusClosed {
		return domain.Approval{}, InvalidTransitionError{RecommendationID: rec.ID, CurrentStatus: rec.CurrentStatus, Action: ActionVoidApproval}
	}
	if err := e.Auth.RequireAdmin(ctx, tx, actorID); err != nil {
		return domain.Approval{}, err
	}

	ts := e.timestamp()
	ok, err := e.Repo.VoidApprovalTx(ctx, tx, ap.ID, actorID, reason, ts)
	if err != nil {
		return domain.Approval{}, err
	}
	if !ok {
		return domain.Approval{}, InvalidTransitionError{RecommendationID: rec.ID, CurrentStatus: rec.CurrentStatus, Action: ActionVoidApproval}
	}
	if err := e.History.Append(ctx, tx, history.Entry{
		RecommendationID: rec.ID,
		OldStatus:        rec.CurrentStatus,
		NewStatus:        rec.CurrentStatus,
		ChangedByID:      actorID,
		Reason:           "approval " + ap.ID + " voided: " + reason,
	}); err != nil {
		return domain.Approval{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Approval{}, err
	}
	return e.Repo.GetApproval(ctx, approvalID)
}
