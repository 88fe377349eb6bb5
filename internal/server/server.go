package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"remwork/internal/domain"
	"remwork/internal/identity"
	"remwork/internal/repo"
	"remwork/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   workflow.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot finalize recommendation in status closed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the remediation workflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Remwork API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerRecommendations(group, cfg.Engine)
	registerRebuttals(group, cfg.Engine)
	registerActionPlan(group, cfg.Engine)
	registerClosure(group, cfg.Engine)
	registerApprovals(group, cfg.Engine)
	registerHistory(group, cfg.Engine)
	registerAdmin(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	startNotifier(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe identity.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": fe.Capability})
	}
	var it workflow.InvalidTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"current_status": it.CurrentStatus,
			"action":         it.Action,
		})
	}
	var ce workflow.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var ve workflow.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type recommendationBody struct {
	Body domain.Recommendation `json:"body"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Recommendation counts by status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		counts, err := e.Repo.CountRecommendationsByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerRecommendations(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-recommendation",
		Method:        http.MethodPost,
		Path:          "/recommendations",
		Summary:       "Create recommendation (DRAFT)",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRecommendationRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.Create(ctx, workflow.CreateOptions{
			ID:                  input.Body.ID,
			ValidationRequestID: input.Body.ValidationRequestID,
			MonitoringCycleID:   input.Body.MonitoringCycleID,
			ModelID:             input.Body.ModelID,
			Title:               input.Body.Title,
			Description:         input.Body.Description,
			RootCause:           input.Body.RootCause,
			PriorityID:          input.Body.PriorityID,
			CategoryID:          input.Body.CategoryID,
			AssignedToID:        input.Body.AssignedToID,
			TargetDate:          input.Body.TargetDate,
			ActorID:             actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-recommendations",
		Method:      http.MethodGet,
		Path:        "/recommendations",
		Summary:     "List recommendations",
	}, func(ctx context.Context, input *struct {
		Status              string `query:"status"`
		PriorityID          string `query:"priority_id"`
		AssignedToID        string `query:"assigned_to_id"`
		ModelID             string `query:"model_id"`
		ValidationRequestID string `query:"validation_request_id"`
		MonitoringCycleID   string `query:"monitoring_cycle_id"`
		Limit               int    `query:"limit" minimum:"1" maximum:"500"`
		Cursor              string `query:"cursor" doc:"Opaque page cursor from a previous response"`
	}) (*struct {
		Body struct {
			Items      []domain.Recommendation `json:"items"`
			NextCursor string                  `json:"next_cursor,omitempty"`
		} `json:"body"`
	}, error) {
		filters := repo.RecommendationFilters{
			Status:              input.Status,
			PriorityID:          input.PriorityID,
			AssignedToID:        input.AssignedToID,
			ModelID:             input.ModelID,
			ValidationRequestID: input.ValidationRequestID,
			MonitoringCycleID:   input.MonitoringCycleID,
			Limit:               input.Limit,
		}
		if filters.Limit == 0 {
			filters.Limit = 50
		}
		if input.Cursor != "" {
			createdAt, id, ok := decodeCursor(input.Cursor)
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			filters.CursorCreatedAt = createdAt
			filters.CursorID = id
		}
		items, err := e.List(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items      []domain.Recommendation `json:"items"`
				NextCursor string                  `json:"next_cursor,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		if len(items) == filters.Limit {
			last := items[len(items)-1]
			out.Body.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-recommendation",
		Method:      http.MethodGet,
		Path:        "/recommendations/{id}",
		Summary:     "Get recommendation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*recommendationBody, error) {
		rec, err := e.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-recommendation",
		Method:      http.MethodPatch,
		Path:        "/recommendations/{id}",
		Summary:     "Update descriptive fields",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                      `path:"id"`
		Body UpdateRecommendationRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.Update(ctx, input.ID, workflow.UpdateOptions{
			Title:             input.Body.Title,
			Description:       input.Body.Description,
			RootCause:         input.Body.RootCause,
			PriorityID:        input.Body.PriorityID,
			CategoryID:        input.Body.CategoryID,
			AssignedToID:      input.Body.AssignedToID,
			CurrentTargetDate: input.Body.CurrentTargetDate,
			ActorID:           actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	registerTransition(api, "finalize-recommendation", "/recommendations/{id}/finalize", "Finalize draft",
		func(ctx context.Context, id, actorID string) (domain.Recommendation, error) {
			return e.Finalize(ctx, id, actorID)
		})
	registerTransition(api, "acknowledge-recommendation", "/recommendations/{id}/acknowledge", "Acknowledge finding",
		func(ctx context.Context, id, actorID string) (domain.Recommendation, error) {
			return e.Acknowledge(ctx, id, actorID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "decline-acknowledgement",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/decline",
		Summary:     "Decline acknowledgement with a reason",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body DeclineRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.DeclineAcknowledgement(ctx, input.ID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})
}

// registerTransition cuts down boilerplate for body-less transition posts.
func registerTransition(api huma.API, opID, route, summary string, fn func(ctx context.Context, id, actorID string) (domain.Recommendation, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        route,
		Summary:     summary,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := fn(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})
}

func registerRebuttals(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-rebuttal",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/rebuttal",
		Summary:     "Submit a rebuttal",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body RebuttalRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.SubmitRebuttal(ctx, input.ID, actorID, input.Body.Rationale, input.Body.Evidence)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-rebuttal",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/rebuttal/review",
		Summary:     "Review the current rebuttal (accept closes, override reinstates)",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body ReviewRebuttalRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.ReviewRebuttal(ctx, input.ID, actorID, input.Body.Decision, input.Body.Comments)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rebuttals",
		Method:      http.MethodGet,
		Path:        "/recommendations/{id}/rebuttals",
		Summary:     "List rebuttal versions, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Rebuttal `json:"body"`
	}, error) {
		items, err := e.Rebuttals(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Rebuttal `json:"body"`
		}{Body: items}, nil
	})
}

func registerActionPlan(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-action-plan",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/action-plan",
		Summary:     "Submit the ordered task batch",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body SubmitActionPlanRequest `json:"body"`
	}) (*struct {
		Body struct {
			Recommendation domain.Recommendation   `json:"recommendation"`
			Tasks          []domain.ActionPlanTask `json:"tasks"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		drafts := make([]workflow.TaskDraft, 0, len(input.Body.Tasks))
		for _, t := range input.Body.Tasks {
			drafts = append(drafts, workflow.TaskDraft{
				Description: t.Description,
				OwnerID:     t.OwnerID,
				TargetDate:  t.TargetDate,
			})
		}
		rec, tasks, err := e.SubmitActionPlan(ctx, input.ID, actorID, drafts)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Recommendation domain.Recommendation   `json:"recommendation"`
				Tasks          []domain.ActionPlanTask `json:"tasks"`
			} `json:"body"`
		}{}
		out.Body.Recommendation = rec
		out.Body.Tasks = tasks
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-action-plan",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/action-plan/approve",
		Summary:     "Approve the action plan",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body CommentsRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.ApproveActionPlan(ctx, input.ID, actorID, input.Body.Comments)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-action-plan",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/action-plan/reject",
		Summary:     "Reject the action plan with feedback",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body FeedbackRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.RejectActionPlan(ctx, input.ID, actorID, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/recommendations/{id}/tasks",
		Summary:     "List the action plan in task order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ActionPlanTask `json:"body"`
	}, error) {
		items, err := e.Tasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActionPlanTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update one task's details or completion tracking",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string           `path:"task_id"`
		Body   TaskPatchRequest `json:"body"`
	}) (*struct {
		Body domain.ActionPlanTask `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, input.TaskID, workflow.TaskPatch{
			Description:        input.Body.Description,
			OwnerID:            input.Body.OwnerID,
			TargetDate:         input.Body.TargetDate,
			CompletedDate:      input.Body.CompletedDate,
			CompletionStatusID: input.Body.CompletionStatusID,
			CompletionNotes:    input.Body.CompletionNotes,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionPlanTask `json:"body"`
		}{Body: t}, nil
	})
}

func registerClosure(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-for-closure-review",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/closure/submit",
		Summary:     "Submit for closure review with a summary",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SummaryRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.SubmitForClosureReview(ctx, input.ID, actorID, input.Body.Summary)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-closure-review",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/closure/approve",
		Summary:     "Approve closure review; closes or enters the approval phase",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body CommentsRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.ApproveClosureReview(ctx, input.ID, actorID, input.Body.Comments)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-closure-review",
		Method:      http.MethodPost,
		Path:        "/recommendations/{id}/closure/reject",
		Summary:     "Reject closure review with feedback",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body FeedbackRequest `json:"body"`
	}) (*recommendationBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.RejectClosureReview(ctx, input.ID, actorID, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return &recommendationBody{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-closure-evidence",
		Method:        http.MethodPost,
		Path:          "/recommendations/{id}/evidence",
		Summary:       "Attach closure evidence",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body EvidenceRequest `json:"body"`
	}) (*struct {
		Body domain.ClosureEvidence `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.AddClosureEvidence(ctx, input.ID, actorID, input.Body.Description, input.Body.URL)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClosureEvidence `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-closure-evidence",
		Method:      http.MethodDelete,
		Path:        "/evidence/{evidence_id}",
		Summary:     "Delete closure evidence",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		EvidenceID string `path:"evidence_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteClosureEvidence(ctx, input.EvidenceID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-closure-evidence",
		Method:      http.MethodGet,
		Path:        "/recommendations/{id}/evidence",
		Summary:     "List closure evidence",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ClosureEvidence `json:"body"`
	}, error) {
		items, err := e.Evidence(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ClosureEvidence `json:"body"`
		}{Body: items}, nil
	})
}

func registerApprovals(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/recommendations/{id}/approvals",
		Summary:     "List the approval set",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Approval `json:"body"`
	}, error) {
		items, err := e.Approvals(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Approval `json:"body"`
		}{Body: items}, nil
	})

	type approvalOutcome struct {
		Body struct {
			Approval       domain.Approval       `json:"approval"`
			Recommendation domain.Recommendation `json:"recommendation"`
		} `json:"body"`
	}
	decide := func(ctx context.Context, approvalID, decision, comments, evidence string) (*approvalOutcome, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ap, rec, err := e.SubmitApproval(ctx, approvalID, actorID, decision, comments, evidence)
		if err != nil {
			return nil, handleError(err)
		}
		out := &approvalOutcome{}
		out.Body.Approval = ap
		out.Body.Recommendation = rec
		return out, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "submit-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}/decision",
		Summary:     "Decide one approval slot",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ApprovalID string                  `path:"approval_id"`
		Body       ApprovalDecisionRequest `json:"body"`
	}) (*approvalOutcome, error) {
		return decide(ctx, input.ApprovalID, input.Body.Decision, input.Body.Comments, input.Body.Evidence)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}/reject",
		Summary:     "Reject one approval slot with a reason",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ApprovalID string                `path:"approval_id"`
		Body       RejectApprovalRequest `json:"body"`
	}) (*approvalOutcome, error) {
		return decide(ctx, input.ApprovalID, domain.DecisionReject, input.Body.Reason, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "void-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}/void",
		Summary:     "Admin: reset one decided approval back to pending",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ApprovalID string              `path:"approval_id"`
		Body       VoidApprovalRequest `json:"body"`
	}) (*struct {
		Body domain.Approval `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ap, err := e.VoidApproval(ctx, input.ApprovalID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Approval `json:"body"`
		}{Body: ap}, nil
	})
}

func registerHistory(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/recommendations/{id}/history",
		Summary:     "Audit trail timeline, oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.StatusHistory `json:"body"`
	}, error) {
		items, err := e.Timeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.StatusHistory `json:"body"`
		}{Body: items}, nil
	})
}

func registerAdmin(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-priority-configs",
		Method:      http.MethodGet,
		Path:        "/priorities",
		Summary:     "List priority configs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PriorityConfig `json:"body"`
	}, error) {
		items, err := e.ListPriorityConfigs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PriorityConfig `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-priority-config",
		Method:      http.MethodPut,
		Path:        "/priorities/{priority_id}",
		Summary:     "Admin: update one priority config",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PriorityID string                `path:"priority_id"`
		Body       PriorityConfigRequest `json:"body"`
	}) (*struct {
		Body domain.PriorityConfig `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pc, err := e.UpdatePriorityConfig(ctx, actorID, domain.PriorityConfig{
			PriorityID:            input.PriorityID,
			RequiresFinalApproval: input.Body.RequiresFinalApproval,
			Description:           input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PriorityConfig `json:"body"`
		}{Body: pc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-model-regions",
		Method:      http.MethodGet,
		Path:        "/models/{model_id}/regions",
		Summary:     "List registry entries for one model",
	}, func(ctx context.Context, input *struct {
		ModelID string `path:"model_id"`
	}) (*struct {
		Body []domain.ModelRegion `json:"body"`
	}, error) {
		items, err := e.ListModelRegions(ctx, input.ModelID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ModelRegion `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-model-region",
		Method:      http.MethodPut,
		Path:        "/models/{model_id}/regions/{region_id}",
		Summary:     "Admin: register a model/region ownership",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ModelID  string             `path:"model_id"`
		RegionID string             `path:"region_id"`
		Body     ModelRegionRequest `json:"body"`
	}) (*struct {
		Body domain.ModelRegion `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		mr := domain.ModelRegion{
			ModelID:                  input.ModelID,
			RegionID:                 input.RegionID,
			RequiresRegionalApproval: input.Body.RequiresRegionalApproval,
		}
		if err := e.UpsertModelRegion(ctx, actorID, mr); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModelRegion `json:"body"`
		}{Body: mr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-model-region",
		Method:      http.MethodDelete,
		Path:        "/models/{model_id}/regions/{region_id}",
		Summary:     "Admin: remove a model/region ownership",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ModelID  string `path:"model_id"`
		RegionID string `path:"region_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteModelRegion(ctx, actorID, input.ModelID, input.RegionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/rbac/roles",
		Summary:     "Admin: grant a role",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body GrantRoleRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodDelete,
		Path:        "/rbac/roles",
		Summary:     "Admin: revoke a role",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
		RoleID  string `query:"role_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, actorID, input.ActorID, input.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-region-approver",
		Method:      http.MethodPost,
		Path:        "/rbac/region-approvers",
		Summary:     "Admin: mark an actor as approver for a region",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body RegionApproverRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRegionApprover(ctx, actorID, input.Body.ActorID, input.Body.RegionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Admin: mint an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		k, plaintext, err := e.CreateAPIKey(ctx, actorID, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{
			ID:        k.ID,
			ActorID:   k.ActorID,
			Name:      k.Name,
			Key:       plaintext,
			CreatedAt: k.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Admin: delete an API key",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, actorID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func encodeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func decodeCursor(cursor string) (createdAt, id string, ok bool) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, req *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Remwork API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
