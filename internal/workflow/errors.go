package workflow

import "fmt"

// InvalidTransitionError means the requested action does not apply to the
// recommendation's current status. The attempt performs no mutation.
type InvalidTransitionError struct {
	RecommendationID string
	CurrentStatus    string
	Action           string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s recommendation %s in status %s", e.Action, e.RecommendationID, e.CurrentStatus)
}

// ValidationError reports a missing or malformed input field. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError means a concurrent transition won the status race; the caller
// should re-fetch and retry if still applicable.
type ConflictError struct {
	RecommendationID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("recommendation %s was modified concurrently", e.RecommendationID)
}
