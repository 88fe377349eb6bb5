package server

// Request bodies for the REST surface. Responses reuse the domain structs,
// which carry the JSON shape directly.

type CreateRecommendationRequest struct {
	ID                  string `json:"id,omitempty" doc:"Optional client-chosen id"`
	ValidationRequestID string `json:"validation_request_id,omitempty"`
	MonitoringCycleID   string `json:"monitoring_cycle_id,omitempty"`
	ModelID             string `json:"model_id"`
	Title               string `json:"title"`
	Description         string `json:"description,omitempty"`
	RootCause           string `json:"root_cause,omitempty"`
	PriorityID          string `json:"priority_id"`
	CategoryID          string `json:"category_id,omitempty"`
	AssignedToID        string `json:"assigned_to_id"`
	TargetDate          string `json:"target_date,omitempty" format:"date-time"`
}

type UpdateRecommendationRequest struct {
	Title             *string `json:"title,omitempty"`
	Description       *string `json:"description,omitempty"`
	RootCause         *string `json:"root_cause,omitempty"`
	PriorityID        *string `json:"priority_id,omitempty"`
	CategoryID        *string `json:"category_id,omitempty"`
	AssignedToID      *string `json:"assigned_to_id,omitempty"`
	CurrentTargetDate *string `json:"current_target_date,omitempty" format:"date-time"`
}

type DeclineRequest struct {
	Reason string `json:"reason"`
}

type RebuttalRequest struct {
	Rationale string `json:"rationale"`
	Evidence  string `json:"evidence,omitempty"`
}

type ReviewRebuttalRequest struct {
	Decision string `json:"decision" enum:"accept,override"`
	Comments string `json:"comments,omitempty"`
}

type TaskDraftRequest struct {
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	TargetDate  string `json:"target_date" format:"date-time"`
}

type SubmitActionPlanRequest struct {
	Tasks []TaskDraftRequest `json:"tasks"`
}

type CommentsRequest struct {
	Comments string `json:"comments,omitempty"`
}

type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

type TaskPatchRequest struct {
	Description        *string `json:"description,omitempty"`
	OwnerID            *string `json:"owner_id,omitempty"`
	TargetDate         *string `json:"target_date,omitempty" format:"date-time"`
	CompletedDate      *string `json:"completed_date,omitempty" format:"date-time"`
	CompletionStatusID *string `json:"completion_status_id,omitempty"`
	CompletionNotes    *string `json:"completion_notes,omitempty"`
}

type SummaryRequest struct {
	Summary string `json:"summary"`
}

type EvidenceRequest struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type ApprovalDecisionRequest struct {
	Decision string `json:"decision" enum:"approve,reject"`
	Comments string `json:"comments,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

type RejectApprovalRequest struct {
	Reason string `json:"reason"`
}

type VoidApprovalRequest struct {
	Reason string `json:"reason"`
}

type PriorityConfigRequest struct {
	RequiresFinalApproval bool   `json:"requires_final_approval"`
	Description           string `json:"description,omitempty"`
}

type ModelRegionRequest struct {
	RequiresRegionalApproval bool `json:"requires_regional_approval"`
}

type GrantRoleRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id" enum:"admin,validator,global_approver"`
}

type RegionApproverRequest struct {
	ActorID  string `json:"actor_id"`
	RegionID string `json:"region_id"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type APIKeyCreatedResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key" doc:"Plaintext key, shown only once"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
