package workflow

import (
	"context"

	"github.com/google/uuid"

	"remwork/internal/domain"
	"remwork/internal/identity"
	"remwork/internal/repo"
)

// SubmitForClosureReview is the assignee declaring remediation done, with a
// mandatory summary that becomes the closure_summary on the aggregate.
func (e Engine) SubmitForClosureReview(ctx context.Context, id, actorID, summary string) (domain.Recommendation, error) {
	if summary == "" {
		return domain.Recommendation{}, ValidationError{Field: "summary", Message: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if err := checkTransition(rec, ActionSubmitClosureReview); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireAssignee(ctx, tx, rec, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	from := rec.CurrentStatus
	rec.CurrentStatus = domain.StatusPendingClosureReview
	rec.ClosureSummary = &summary
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, ""); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// ApproveClosureReview either closes the recommendation outright or, when the
// priority demands final approval, materializes the approval set and parks the
// recommendation in PENDING_APPROVAL. The priority config is read inside the
// transaction so the branch and the fan-out see one consistent snapshot.
func (e Engine) ApproveClosureReview(ctx context.Context, id, actorID, comments string) (domain.Recommendation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if err := checkTransition(rec, ActionApproveClosureReview); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireValidator(ctx, tx, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	pc, err := e.Repo.GetPriorityConfigTx(ctx, tx, rec.PriorityID)
	if err != nil && err != repo.ErrNotFound {
		return domain.Recommendation{}, err
	}

	from := rec.CurrentStatus
	if pc.RequiresFinalApproval {
		allApproved, err := e.routeApprovalsTx(ctx, tx, rec)
		if err != nil {
			return domain.Recommendation{}, err
		}
		if allApproved {
			// Every slot in the retained set already carries a standing
			// approval; nothing is pending, close directly.
			e.markClosed(&rec, actorID)
		} else {
			rec.CurrentStatus = domain.StatusPendingApproval
		}
	} else {
		e.markClosed(&rec, actorID)
	}
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, comments); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// RejectClosureReview sends the recommendation back into execution with
// mandatory feedback.
func (e Engine) RejectClosureReview(ctx context.Context, id, actorID, feedback string) (domain.Recommendation, error) {
	if feedback == "" {
		return domain.Recommendation{}, ValidationError{Field: "feedback", Message: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if err := checkTransition(rec, ActionRejectClosureReview); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireValidator(ctx, tx, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	from := rec.CurrentStatus
	rec.CurrentStatus = domain.StatusInProgress
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, feedback); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

func (e Engine) markClosed(rec *domain.Recommendation, actorID string) {
	ts := e.timestamp()
	rec.CurrentStatus = domain.StatusClosed
	rec.ClosedAt = &ts
	rec.ClosedByID = &actorID
}

// AddClosureEvidence attaches one supporting record. Evidence may be added
// any time after execution starts, until the recommendation closes.
func (e Engine) AddClosureEvidence(ctx context.Context, id, actorID, description, url string) (domain.ClosureEvidence, error) {
	if description == "" {
		return domain.ClosureEvidence{}, ValidationError{Field: "description", Message: "required"}
	}
	rec, err := e.Repo.GetRecommendation(ctx, id)
	if err != nil {
		return domain.ClosureEvidence{}, err
	}
	if rec.CurrentStatus == domain.StatusClosed {
		return domain.ClosureEvidence{}, InvalidTransitionError{RecommendationID: id, CurrentStatus: rec.CurrentStatus, Action: "add_closure_evidence"}
	}
	ev := domain.ClosureEvidence{
		ID:               uuid.NewString(),
		RecommendationID: id,
		Description:      description,
		URL:              optionalString(url),
		UploadedByID:     actorID,
		UploadedAt:       e.timestamp(),
	}
	if err := e.Repo.InsertEvidence(ctx, ev); err != nil {
		return domain.ClosureEvidence{}, err
	}
	return ev, nil
}

// DeleteClosureEvidence removes one record; the uploader or an admin may do
// it while the recommendation is still open.
func (e Engine) DeleteClosureEvidence(ctx context.Context, evidenceID, actorID string) error {
	ev, err := e.Repo.GetEvidence(ctx, evidenceID)
	if err != nil {
		return err
	}
	rec, err := e.Repo.GetRecommendation(ctx, ev.RecommendationID)
	if err != nil {
		return err
	}
	if rec.CurrentStatus == domain.StatusClosed {
		return InvalidTransitionError{RecommendationID: rec.ID, CurrentStatus: rec.CurrentStatus, Action: "delete_closure_evidence"}
	}
	if ev.UploadedByID != actorID {
		ok, err := e.Repo.ActorHasRole(ctx, actorID, identity.RoleAdmin)
		if err != nil {
			return err
		}
		if !ok {
			return identity.ForbiddenError{ActorID: actorID, Capability: "delete evidence"}
		}
	}
	return e.Repo.DeleteEvidence(ctx, evidenceID)
}

// Evidence lists attached closure evidence, newest first.
func (e Engine) Evidence(ctx context.Context, id string) ([]domain.ClosureEvidence, error) {
	if _, err := e.Repo.GetRecommendation(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListEvidence(ctx, id)
}
