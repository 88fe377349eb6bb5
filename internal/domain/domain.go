package domain

// Recommendation statuses.
const (
	StatusDraft                  = "draft"
	StatusPendingResponse        = "pending_response"
	StatusAcknowledged           = "acknowledged"
	StatusRebuttalSubmitted      = "rebuttal_submitted"
	StatusPendingValidatorReview = "pending_validator_review"
	StatusInProgress             = "in_progress"
	StatusPendingClosureReview   = "pending_closure_review"
	StatusPendingApproval        = "pending_approval"
	StatusClosed                 = "closed"
)

// Approval types and statuses.
const (
	ApprovalTypeGlobal   = "global"
	ApprovalTypeRegional = "regional"

	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
	ApprovalVoided   = "voided"
)

// Rebuttal review decisions.
const (
	RebuttalAccept   = "accept"
	RebuttalOverride = "override"
)

// Approval decisions submitted by approvers.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type Recommendation struct {
	ID                  string  `json:"id"`
	ValidationRequestID *string `json:"validation_request_id,omitempty"`
	MonitoringCycleID   *string `json:"monitoring_cycle_id,omitempty"`
	ModelID             string  `json:"model_id"`
	Title               string  `json:"title"`
	Description         string  `json:"description,omitempty"`
	RootCause           string  `json:"root_cause,omitempty"`
	PriorityID          string  `json:"priority_id"`
	CategoryID          string  `json:"category_id,omitempty"`
	CurrentStatus       string  `json:"current_status" enum:"draft,pending_response,acknowledged,rebuttal_submitted,pending_validator_review,in_progress,pending_closure_review,pending_approval,closed"`
	CreatedByID         string  `json:"created_by_id"`
	AssignedToID        string  `json:"assigned_to_id"`
	OriginalTargetDate  *string `json:"original_target_date,omitempty" format:"date-time"`
	CurrentTargetDate   *string `json:"current_target_date,omitempty" format:"date-time"`
	FinalizedAt         *string `json:"finalized_at,omitempty" format:"date-time"`
	AcknowledgedAt      *string `json:"acknowledged_at,omitempty" format:"date-time"`
	ClosedAt            *string `json:"closed_at,omitempty" format:"date-time"`
	ClosedByID          *string `json:"closed_by_id,omitempty"`
	ClosureSummary      *string `json:"closure_summary,omitempty"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	UpdatedAt           string  `json:"updated_at" format:"date-time"`
}

type ActionPlanTask struct {
	ID                 string  `json:"id"`
	RecommendationID   string  `json:"recommendation_id"`
	TaskOrder          int     `json:"task_order"`
	Description        string  `json:"description"`
	OwnerID            string  `json:"owner_id"`
	TargetDate         string  `json:"target_date" format:"date-time"`
	CompletedDate      *string `json:"completed_date,omitempty" format:"date-time"`
	CompletionStatusID *string `json:"completion_status_id,omitempty"`
	CompletionNotes    *string `json:"completion_notes,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

// Rebuttal rows are never deleted; a resubmission inserts a new row and demotes
// the previous current one in the same transaction. The autoincrement ID keeps
// "latest by submission order" derivable without the flag.
type Rebuttal struct {
	ID               int64   `json:"id"`
	RecommendationID string  `json:"recommendation_id"`
	Rationale        string  `json:"rationale"`
	Evidence         *string `json:"evidence,omitempty"`
	SubmittedByID    string  `json:"submitted_by_id"`
	SubmittedAt      string  `json:"submitted_at" format:"date-time"`
	ReviewedByID     *string `json:"reviewed_by_id,omitempty"`
	ReviewedAt       *string `json:"reviewed_at,omitempty" format:"date-time"`
	ReviewDecision   *string `json:"review_decision,omitempty" enum:"accept,override"`
	ReviewComments   *string `json:"review_comments,omitempty"`
	IsCurrent        bool    `json:"is_current"`
}

type ClosureEvidence struct {
	ID               string  `json:"id"`
	RecommendationID string  `json:"recommendation_id"`
	Description      string  `json:"description"`
	URL              *string `json:"url,omitempty"`
	UploadedByID     string  `json:"uploaded_by_id"`
	UploadedAt       string  `json:"uploaded_at" format:"date-time"`
}

type StatusHistory struct {
	ID               int64   `json:"id"`
	RecommendationID string  `json:"recommendation_id"`
	OldStatus        *string `json:"old_status,omitempty"`
	NewStatus        string  `json:"new_status"`
	ChangedByID      string  `json:"changed_by_id"`
	ChangedAt        string  `json:"changed_at" format:"date-time"`
	Reason           *string `json:"reason,omitempty"`
}

type Approval struct {
	ID                  string  `json:"id"`
	RecommendationID    string  `json:"recommendation_id"`
	ApprovalType        string  `json:"approval_type" enum:"global,regional"`
	RegionID            *string `json:"region_id,omitempty"`
	RepresentedRegionID *string `json:"represented_region_id,omitempty"`
	ApproverID          *string `json:"approver_id,omitempty"`
	Status              string  `json:"status" enum:"pending,approved,rejected,voided"`
	ApprovedAt          *string `json:"approved_at,omitempty" format:"date-time"`
	Comments            *string `json:"comments,omitempty"`
	Evidence            *string `json:"evidence,omitempty"`
	VoidedByID          *string `json:"voided_by_id,omitempty"`
	VoidReason          *string `json:"void_reason,omitempty"`
	VoidedAt            *string `json:"voided_at,omitempty" format:"date-time"`
	IsRequired          bool    `json:"is_required"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
}

type PriorityConfig struct {
	PriorityID            string `json:"priority_id"`
	RequiresFinalApproval bool   `json:"requires_final_approval"`
	Description           string `json:"description,omitempty"`
	UpdatedAt             string `json:"updated_at" format:"date-time"`
}

/// ModelRegion is the registry view consumed by the approval router: which
// regions a model is deployed in and whether each requires regional sign-off.
type ModelRegion struct {
	ModelID                  string `json:"model_id"`
	RegionID                 string `json:"region_id"`
	RequiresRegionalApproval bool   `json:"requires_regional_approval"`
}

// APIKey is stored hashed; the plaintext is shown once at creation.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TerminalStatus reports whether no further transitions exist from s.
func TerminalStatus(s string) bool {
	return s == StatusClosed
}
