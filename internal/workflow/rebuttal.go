package workflow

import (
	"context"

	"remwork/internal/domain"
	"remwork/internal/repo"
)

// DeclineAcknowledgement is the assignee refusing the finding with a reason.
// It records the reason as a rebuttal so the validator reviews one artifact
// regardless of which entry point was used.
func (e Engine) DeclineAcknowledgement(ctx context.Context, id, actorID, reason string) (domain.Recommendation, error) {
	if reason == "" {
		return domain.Recommendation{}, ValidationError{Field: "reason", Message: "required"}
	}
	return e.submitRebuttal(ctx, id, actorID, ActionDeclineAcknowledgement, reason, "")
}

// SubmitRebuttal is the richer form of decline, with rationale and optional
// supporting evidence.
func (e Engine) SubmitRebuttal(ctx context.Context, id, actorID, rationale, evidence string) (domain.Recommendation, error) {
	if rationale == "" {
		return domain.Recommendation{}, ValidationError{Field: "rationale", Message: "required"}
	}
	return e.submitRebuttal(ctx, id, actorID, ActionSubmitRebuttal, rationale, evidence)
}

func (e Engine) submitRebuttal(ctx context.Context, id, actorID, action, rationale, evidence string) (domain.Recommendation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if err := checkTransition(rec, action); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireAssignee(ctx, tx, rec, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	rb := domain.Rebuttal{
		RecommendationID: id,
		Rationale:        rationale,
		Evidence:         optionalString(evidence),
		SubmittedByID:    actorID,
		SubmittedAt:      e.timestamp(),
	}
	if _, err := e.Repo.InsertRebuttalTx(ctx, tx, rb); err != nil {
		return domain.Recommendation{}, err
	}

	from := rec.CurrentStatus
	rec.CurrentStatus = domain.StatusRebuttalSubmitted
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, rationale); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// ReviewRebuttal is the validator's verdict on the current rebuttal. ACCEPT
// closes the recommendation; OVERRIDE reinstates it, requiring a fresh
// acknowledgement cycle. The reviewed rebuttal stays current either way; a
// renewed decline supersedes it with a new row.
func (e Engine) ReviewRebuttal(ctx context.Context, id, actorID, decision, comments string) (domain.Recommendation, error) {
	if decision != domain.RebuttalAccept && decision != domain.RebuttalOverride {
		return domain.Recommendation{}, ValidationError{Field: "decision", Message: "must be accept or override"}
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
	if err := checkTransition(rec, ActionReviewRebuttal); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireValidator(ctx, tx, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	rb, err := e.Repo.CurrentRebuttalTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	ts := e.timestamp()
	if err := e.Repo.RecordRebuttalReviewTx(ctx, tx, rb.ID, actorID, ts, decision, optionalString(comments)); err != nil {
		if err == repo.ErrNotFound {
			return domain.Recommendation{}, InvalidTransitionError{RecommendationID: id, CurrentStatus: rec.CurrentStatus, Action: ActionReviewRebuttal}
		}
		return domain.Recommendation{}, err
	}

	from := rec.CurrentStatus
	if decision == domain.RebuttalAccept {
		rec.CurrentStatus = domain.StatusClosed
		rec.ClosedAt = &ts
		rec.ClosedByID = &actorID
		if comments != "" {
			rec.ClosureSummary = &comments
		}
	} else {
		rec.CurrentStatus = domain.StatusPendingResponse
		rec.AcknowledgedAt = nil
	}
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, comments); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// Rebuttals returns all rebuttal versions, newest first.
func (e Engine) Rebuttals(ctx context.Context, id string) ([]domain.Rebuttal, error) {
	if _, err := e.Repo.GetRecommendation(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListRebuttals(ctx, id)
}
