package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"remwork/internal/domain"
)

// TaskDraft is one entry in a submitted action plan. Order in the submitted
// slice becomes the 1-based task_order.
type TaskDraft struct {
	Description string
	OwnerID     string
	TargetDate  string
}

// SubmitActionPlan attaches the ordered task batch and moves the
// recommendation to validator review. A resubmission after rejection replaces
// the previous batch wholesale.
func (e Engine) SubmitActionPlan(ctx context.Context, id, actorID string, drafts []TaskDraft) (domain.Recommendation, []domain.ActionPlanTask, error) {
	if len(drafts) == 0 {
		return domain.Recommendation{}, nil, ValidationError{Field: "tasks", Message: "at least one task required"}
	}
	for i, d := range drafts {
		if d.Description == "" {
			return domain.Recommendation{}, nil, ValidationError{Field: fmt.Sprintf("tasks[%d].description", i), Message: "required"}
		}
		if d.OwnerID == "" {
			return domain.Recommendation{}, nil, ValidationError{Field: fmt.Sprintf("tasks[%d].owner_id", i), Message: "required"}
		}
		if d.TargetDate == "" {
			return domain.Recommendation{}, nil, ValidationError{Field: fmt.Sprintf("tasks[%d].target_date", i), Message: "required"}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, nil, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, nil, err
	}
	if err := checkTransition(rec, ActionSubmitActionPlan); err != nil {
		return domain.Recommendation{}, nil, err
	}
	if err := e.Auth.RequireAssignee(ctx, tx, rec, actorID); err != nil {
		return domain.Recommendation{}, nil, err
	}

	if err := e.Repo.DeleteTasksTx(ctx, tx, id); err != nil {
		return domain.Recommendation{}, nil, err
	}
	ts := e.timestamp()
	tasks := make([]domain.ActionPlanTask, 0, len(drafts))
	for i, d := range drafts {
		t := domain.ActionPlanTask{
			ID:               uuid.NewString(),
			RecommendationID: id,
			TaskOrder:        i + 1,
			Description:      d.Description,
			OwnerID:          d.OwnerID,
			TargetDate:       d.TargetDate,
			CreatedAt:        ts,
			UpdatedAt:        ts,
		}
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return domain.Recommendation{}, nil, err
		}
		tasks = append(tasks, t)
	}

	from := rec.CurrentStatus
	rec.CurrentStatus = domain.StatusPendingValidatorReview
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, ""); err != nil {
		return domain.Recommendation{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, nil, err
	}
	return rec, tasks, nil
}

// ApproveActionPlan moves the plan into execution.
func (e Engine) ApproveActionPlan(ctx context.Context, id, actorID, comments string) (domain.Recommendation, error) {
	return e.reviewActionPlan(ctx, id, actorID, ActionApproveActionPlan, comments)
}

// RejectActionPlan sends the plan back for rework with mandatory feedback.
// The submitted tasks are retained so the assignee can revise and resubmit.
func (e Engine) RejectActionPlan(ctx context.Context, id, actorID, feedback string) (domain.Recommendation, error) {
	if feedback == "" {
		return domain.Recommendation{}, ValidationError{Field: "feedback", Message: "required"}
	}
	return e.reviewActionPlan(ctx, id, actorID, ActionRejectActionPlan, feedback)
}

func (e Engine) reviewActionPlan(ctx context.Context, id, actorID, action, note string) (domain.Recommendation, error) {
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
	if err := e.Auth.RequireValidator(ctx, tx, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	from := rec.CurrentStatus
	if action == ActionApproveActionPlan {
		rec.CurrentStatus = domain.StatusInProgress
	} else {
		rec.CurrentStatus = domain.StatusAcknowledged
	}
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, note); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// TaskPatch updates completion tracking on one task. Nil leaves a field
// unchanged.
type TaskPatch struct {
	Description        *string
	OwnerID            *string
	TargetDate         *string
	CompletedDate      *string
	CompletionStatusID *string
	CompletionNotes    *string
	ActorID            string
}

// UpdateTask edits one task. Completion fields are informational and do not
// drive the parent state machine; edits are allowed from IN_PROGRESS until
// the parent closes.
func (e Engine) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (domain.ActionPlanTask, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionPlanTask{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.ActionPlanTask{}, err
	}
	rec, err := e.Repo.GetRecommendationTx(ctx, tx, t.RecommendationID)
	if err != nil {
		return domain.ActionPlanTask{}, err
	}
	switch rec.CurrentStatus {
	case domain.StatusInProgress, domain.StatusPendingClosureReview, domain.StatusPendingApproval:
	default:
		return domain.ActionPlanTask{}, InvalidTransitionError{RecommendationID: rec.ID, CurrentStatus: rec.CurrentStatus, Action: "update_task"}
	}
	if t.OwnerID != patch.ActorID {
		if err := e.Auth.RequireAssignee(ctx, tx, rec, patch.ActorID); err != nil {
			return domain.ActionPlanTask{}, err
		}
	}

	if patch.Description != nil {
		if *patch.Description == "" {
			return domain.ActionPlanTask{}, ValidationError{Field: "description", Message: "required"}
		}
		t.Description = *patch.Description
	}
	if patch.OwnerID != nil {
		if *patch.OwnerID == "" {
			return domain.ActionPlanTask{}, ValidationError{Field: "owner_id", Message: "required"}
		}
		t.OwnerID = *patch.OwnerID
	}
	if patch.TargetDate != nil {
		if *patch.TargetDate == "" {
			return domain.ActionPlanTask{}, ValidationError{Field: "target_date", Message: "required"}
		}
		t.TargetDate = *patch.TargetDate
	}
	if patch.CompletedDate != nil {
		t.CompletedDate = optionalString(*patch.CompletedDate)
	}
	if patch.CompletionStatusID != nil {
		t.CompletionStatusID = optionalString(*patch.CompletionStatusID)
	}
	if patch.CompletionNotes != nil {
		t.CompletionNotes = optionalString(*patch.CompletionNotes)
	}
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.ActionPlanTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionPlanTask{}, err
	}
	return t, nil
}

// Tasks returns the action plan in task order.
func (e Engine) Tasks(ctx context.Context, id string) ([]domain.ActionPlanTask, error) {
	if _, err := e.Repo.GetRecommendation(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, id)
}
