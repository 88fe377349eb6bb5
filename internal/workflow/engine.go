package workflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"remwork/internal/config"
	"remwork/internal/domain"
	"remwork/internal/history"
	"remwork/internal/identity"
	"remwork/internal/repo"
)

// Engine validates and applies every workflow transition. Each mutation runs
// in one transaction covering the status write, the child-record changes, and
// the audit entry.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Recorder
	Auth    identity.Authorizer
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		History: history.Recorder{},
		Auth:    identity.Authorizer{Repo: r},
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// applyTransitionTx writes the new status guarded by the expected one and
// appends the matching audit entry. A lost race surfaces as ConflictError and
// rolls the whole transition back.
func (e Engine) applyTransitionTx(ctx context.Context, tx *sql.Tx, rec domain.Recommendation, fromStatus, actorID, reason string) error {
	rec.UpdatedAt = e.timestamp()
	ok, err := e.Repo.UpdateRecommendationTx(ctx, tx, rec, fromStatus)
	if err != nil {
		return err
	}
	if !ok {
		return ConflictError{RecommendationID: rec.ID}
	}
	return e.History.Append(ctx, tx, history.Entry{
		RecommendationID: rec.ID,
		OldStatus:        fromStatus,
		NewStatus:        rec.CurrentStatus,
		ChangedByID:      actorID,
		Reason:           reason,
	})
}

// CreateOptions are the writable fields at creation. Exactly one of
// ValidationRequestID / MonitoringCycleID must be set; the source link is
// immutable afterward.
type CreateOptions struct {
	ID                  string
	ValidationRequestID string
	MonitoringCycleID   string
	ModelID             string
	Title               string
	Description         string
	RootCause           string
	PriorityID          string
	CategoryID          string
	AssignedToID        string
	TargetDate          string
	ActorID             string
}

func (e Engine) Create(ctx context.Context, opts CreateOptions) (domain.Recommendation, error) {
	if opts.Title == "" {
		return domain.Recommendation{}, ValidationError{Field: "title", Message: "required"}
	}
	if opts.ModelID == "" {
		return domain.Recommendation{}, ValidationError{Field: "model_id", Message: "required"}
	}
	if opts.PriorityID == "" {
		return domain.Recommendation{}, ValidationError{Field: "priority_id", Message: "required"}
	}
	if opts.AssignedToID == "" {
		return domain.Recommendation{}, ValidationError{Field: "assigned_to_id", Message: "required"}
	}
	if (opts.ValidationRequestID == "") == (opts.MonitoringCycleID == "") {
		return domain.Recommendation{}, ValidationError{Field: "source", Message: "exactly one of validation_request_id and monitoring_cycle_id must be set"}
	}
	if _, err := e.Repo.GetPriorityConfig(ctx, opts.PriorityID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Recommendation{}, ValidationError{Field: "priority_id", Message: "unknown priority " + opts.PriorityID}
		}
		return domain.Recommendation{}, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := e.timestamp()
	rec := domain.Recommendation{
		ID:                  id,
		ValidationRequestID: optionalString(opts.ValidationRequestID),
		MonitoringCycleID:   optionalString(opts.MonitoringCycleID),
		ModelID:             opts.ModelID,
		Title:               opts.Title,
		Description:         opts.Description,
		RootCause:           opts.RootCause,
		PriorityID:          opts.PriorityID,
		CategoryID:          opts.CategoryID,
		CurrentStatus:       domain.StatusDraft,
		CreatedByID:         opts.ActorID,
		AssignedToID:        opts.AssignedToID,
		OriginalTargetDate:  optionalString(opts.TargetDate),
		CurrentTargetDate:   optionalString(opts.TargetDate),
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertRecommendationTx(ctx, tx, rec); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.History.Append(ctx, tx, history.Entry{
		RecommendationID: rec.ID,
		NewStatus:        domain.StatusDraft,
		ChangedByID:      opts.ActorID,
	}); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

func (e Engine) Get(ctx context.Context, id string) (domain.Recommendation, error) {
	return e.Repo.GetRecommendation(ctx, id)
}

func (e Engine) List(ctx context.Context, f repo.RecommendationFilters) ([]domain.Recommendation, error) {
	return e.Repo.ListRecommendations(ctx, f)
}

// Timeline returns the audit trail of one recommendation, oldest first.
func (e Engine) Timeline(ctx context.Context, id string) ([]domain.StatusHistory, error) {
	if _, err := e.Repo.GetRecommendation(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, id)
}

// UpdateOptions patch descriptive fields. Nil means leave unchanged.
type UpdateOptions struct {
	Title             *string
	Description       *string
	RootCause         *string
	PriorityID        *string
	CategoryID        *string
	AssignedToID      *string
	CurrentTargetDate *string
	ActorID           string
}

// Update edits descriptive fields while the recommendation is open. The
// priority is frozen once the approval set has been materialized so a change
// cannot silently alter an in-flight fan-out.
func (e Engine) Update(ctx context.Context, id string, opts UpdateOptions) (domain.Recommendation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if rec.CurrentStatus == domain.StatusClosed {
		return domain.Recommendation{}, InvalidTransitionError{RecommendationID: id, CurrentStatus: rec.CurrentStatus, Action: ActionUpdate}
	}
	if err := e.Auth.RequireCreatorOrValidator(ctx, tx, rec, opts.ActorID); err != nil {
		return domain.Recommendation{}, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Recommendation{}, ValidationError{Field: "title", Message: "required"}
		}
		rec.Title = *opts.Title
	}
	if opts.Description != nil {
		rec.Description = *opts.Description
	}
	if opts.RootCause != nil {
		rec.RootCause = *opts.RootCause
	}
	if opts.PriorityID != nil && *opts.PriorityID != rec.PriorityID {
		if rec.CurrentStatus == domain.StatusPendingApproval {
			return domain.Recommendation{}, ValidationError{Field: "priority_id", Message: "cannot change priority while approvals are in flight"}
		}
		if _, err := e.Repo.GetPriorityConfigTx(ctx, tx, *opts.PriorityID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Recommendation{}, ValidationError{Field: "priority_id", Message: "unknown priority " + *opts.PriorityID}
			}
			return domain.Recommendation{}, err
		}
		rec.PriorityID = *opts.PriorityID
	}
	if opts.CategoryID != nil {
		rec.CategoryID = *opts.CategoryID
	}
	if opts.AssignedToID != nil {
		if *opts.AssignedToID == "" {
			return domain.Recommendation{}, ValidationError{Field: "assigned_to_id", Message: "required"}
		}
		rec.AssignedToID = *opts.AssignedToID
	}
	if opts.CurrentTargetDate != nil {
		rec.CurrentTargetDate = optionalString(*opts.CurrentTargetDate)
	}
	rec.UpdatedAt = e.timestamp()
	ok, err := e.Repo.UpdateRecommendationTx(ctx, tx, rec, rec.CurrentStatus)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if !ok {
		return domain.Recommendation{}, ConflictError{RecommendationID: id}
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// Finalize moves a draft to PENDING_RESPONSE once the required fields are in
// place, stamping finalized_at.
func (e Engine) Finalize(ctx context.Context, id, actorID string) (domain.Recommendation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if err := checkTransition(rec, ActionFinalize); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireCreatorOrValidator(ctx, tx, rec, actorID); err != nil {
		return domain.Recommendation{}, err
	}
	if rec.Description == "" {
		return domain.Recommendation{}, ValidationError{Field: "description", Message: "required before finalize"}
	}
	if rec.CurrentTargetDate == nil {
		return domain.Recommendation{}, ValidationError{Field: "current_target_date", Message: "required before finalize"}
	}

	ts := e.timestamp()
	from := rec.CurrentStatus
	rec.CurrentStatus = domain.StatusPendingResponse
	rec.FinalizedAt = &ts
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, ""); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// Acknowledge is the assignee accepting the finding.
func (e Engine) Acknowledge(ctx context.Context, id, actorID string) (domain.Recommendation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetRecommendationTx(ctx, tx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if err := checkTransition(rec, ActionAcknowledge); err != nil {
		return domain.Recommendation{}, err
	}
	if err := e.Auth.RequireAssignee(ctx, tx, rec, actorID); err != nil {
		return domain.Recommendation{}, err
	}

	ts := e.timestamp()
	from := rec.CurrentStatus
	rec.CurrentStatus = domain.StatusAcknowledged
	rec.AcknowledgedAt = &ts
	if err := e.applyTransitionTx(ctx, tx, rec, from, actorID, ""); err != nil {
		return domain.Recommendation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
