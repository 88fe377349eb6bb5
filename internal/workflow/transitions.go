package workflow

import "remwork/internal/domain"

// Action names, used in transition errors and audit reasons.
const (
	ActionFinalize               = "finalize"
	ActionAcknowledge            = "acknowledge"
	ActionDeclineAcknowledgement = "decline_acknowledgement"
	ActionSubmitRebuttal         = "submit_rebuttal"
	ActionReviewRebuttal         = "review_rebuttal"
	ActionSubmitActionPlan       = "submit_action_plan"
	ActionApproveActionPlan      = "approve_action_plan"
	ActionRejectActionPlan       = "reject_action_plan"
	ActionSubmitClosureReview    = "submit_for_closure_review"
	ActionApproveClosureReview   = "approve_closure_review"
	ActionRejectClosureReview    = "reject_closure_review"
	ActionSubmitApproval         = "submit_approval"
	ActionVoidApproval           = "void_approval"
	ActionUpdate                 = "update"
)

// transitions is the single source of truth for the state machine: which
// statuses each action may fire from. Branching targets (rebuttal review,
// closure review) are resolved by the handler, not the table.
var transitions = map[string][]string{
	ActionFinalize:               {domain.StatusDraft},
	ActionAcknowledge:            {domain.StatusPendingResponse},
	ActionDeclineAcknowledgement: {domain.StatusPendingResponse},
	ActionSubmitRebuttal:         {domain.StatusPendingResponse},
	ActionReviewRebuttal:         {domain.StatusRebuttalSubmitted},
	ActionSubmitActionPlan:       {domain.StatusAcknowledged},
	ActionApproveActionPlan:      {domain.StatusPendingValidatorReview},
	ActionRejectActionPlan:       {domain.StatusPendingValidatorReview},
	ActionSubmitClosureReview:    {domain.StatusInProgress},
	ActionApproveClosureReview:   {domain.StatusPendingClosureReview},
	ActionRejectClosureReview:    {domain.StatusPendingClosureReview},
	ActionSubmitApproval:         {domain.StatusPendingApproval},
}

// checkTransition validates the action against the current status.
func checkTransition(rec domain.Recommendation, action string) error {
	for _, from := range transitions[action] {
		if rec.CurrentStatus == from {
			return nil
		}
	}
	return InvalidTransitionError{RecommendationID: rec.ID, CurrentStatus: rec.CurrentStatus, Action: action}
}
