package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remwork/internal/app"
	"remwork/internal/config"
	"remwork/internal/db"
	"remwork/internal/domain"
	"remwork/internal/identity"
	"remwork/internal/migrate"
	"remwork/internal/workflow"
)

const (
	actorValidator  = "val-1"
	actorOwner      = "owner-1"
	actorAdmin      = "admin-1"
	actorGlobal     = "global-1"
	actorEUApprover = "eu-1"
)

type testEnv struct {
	Engine workflow.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Regions = []config.RegionEntry{
		{ModelID: "model-1", RegionID: "EU", RequiresRegionalApproval: true},
		{ModelID: "model-1", RegionID: "US", RequiresRegionalApproval: false},
	}
	cfg.RBAC.Roles = map[string][]string{
		"validator":       {actorValidator},
		"admin":           {actorAdmin},
		"global_approver": {actorGlobal},
	}
	cfg.RBAC.RegionApprovers = map[string][]string{
		"EU": {actorEUApprover},
	}
	ctx := context.Background()
	if err := app.Seed(ctx, conn, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	eng := workflow.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

func createRec(t *testing.T, env testEnv, priority string) domain.Recommendation {
	t.Helper()
	rec, err := env.Engine.Create(env.Ctx, workflow.CreateOptions{
		ValidationRequestID: "vr-1",
		ModelID:             "model-1",
		Title:               "Recalibrate PD model",
		Description:         "Monthly backtests show drift in segment B",
		PriorityID:          priority,
		AssignedToID:        actorOwner,
		TargetDate:          "2025-09-30T00:00:00Z",
		ActorID:             actorValidator,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

// advanceToInProgress walks a fresh recommendation through finalize,
// acknowledge, and plan approval.
func advanceToInProgress(t *testing.T, env testEnv, id string) domain.Recommendation {
	t.Helper()
	if _, err := env.Engine.Finalize(env.Ctx, id, actorValidator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := env.Engine.Acknowledge(env.Ctx, id, actorOwner); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, _, err := env.Engine.SubmitActionPlan(env.Ctx, id, actorOwner, []workflow.TaskDraft{
		{Description: "Refit model", OwnerID: actorOwner, TargetDate: "2025-08-01T00:00:00Z"},
		{Description: "Re-run backtests", OwnerID: actorOwner, TargetDate: "2025-09-01T00:00:00Z"},
	}); err != nil {
		t.Fatalf("submit plan: %v", err)
	}
	rec, err := env.Engine.ApproveActionPlan(env.Ctx, id, actorValidator, "")
	if err != nil {
		t.Fatalf("approve plan: %v", err)
	}
	return rec
}

func advanceToClosureReview(t *testing.T, env testEnv, id string) domain.Recommendation {
	t.Helper()
	advanceToInProgress(t, env, id)
	rec, err := env.Engine.SubmitForClosureReview(env.Ctx, id, actorOwner, "All tasks done, backtests green")
	if err != nil {
		t.Fatalf("submit closure: %v", err)
	}
	return rec
}

func TestLifecycleDirectClose(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "medium")
	if rec.CurrentStatus != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", rec.CurrentStatus)
	}
	advanceToClosureReview(t, env, rec.ID)

	// medium priority closes at validator sign-off, no approval set
	closed, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, "verified")
	if err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	if closed.CurrentStatus != domain.StatusClosed {
		t.Fatalf("expected closed, got %s", closed.CurrentStatus)
	}
	if closed.ClosedAt == nil || closed.ClosedByID == nil || *closed.ClosedByID != actorValidator {
		t.Fatalf("closure stamps missing: %+v", closed)
	}
	approvals, err := env.Engine.Approvals(env.Ctx, rec.ID)
	if err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if len(approvals) != 0 {
		t.Fatalf("expected no approval slots, got %d", len(approvals))
	}

	// one audit entry per transition, oldest first, starting with the creation row
	timeline, err := env.Engine.Timeline(env.Ctx, rec.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	want := []string{
		domain.StatusDraft,
		domain.StatusPendingResponse,
		domain.StatusAcknowledged,
		domain.StatusPendingValidatorReview,
		domain.StatusInProgress,
		domain.StatusPendingClosureReview,
		domain.StatusClosed,
	}
	if len(timeline) != len(want) {
		t.Fatalf("expected %d history rows, got %d", len(want), len(timeline))
	}
	for i, h := range timeline {
		if h.NewStatus != want[i] {
			t.Fatalf("history[%d]: expected %s, got %s", i, want[i], h.NewStatus)
		}
	}
	if timeline[0].OldStatus != nil {
		t.Fatalf("creation row should have no old status")
	}
}

func TestCreateRequiresExactlyOneSource(t *testing.T) {
	env := newTestEnv(t)
	base := workflow.CreateOptions{
		ModelID:      "model-1",
		Title:        "t",
		PriorityID:   "low",
		AssignedToID: actorOwner,
		ActorID:      actorValidator,
	}
	if _, err := env.Engine.Create(env.Ctx, base); err == nil {
		t.Fatalf("expected error with no source link")
	}
	both := base
	both.ValidationRequestID = "vr-1"
	both.MonitoringCycleID = "mc-1"
	if _, err := env.Engine.Create(env.Ctx, both); err == nil {
		t.Fatalf("expected error with both source links")
	}
	var verr workflow.ValidationError
	_, err := env.Engine.Create(env.Ctx, both)
	if !errors.As(err, &verr) || verr.Field != "source" {
		t.Fatalf("expected source validation error, got %v", err)
	}
}

func TestCreateRejectsUnknownPriority(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Create(env.Ctx, workflow.CreateOptions{
		ValidationRequestID: "vr-1",
		ModelID:             "model-1",
		Title:               "t",
		PriorityID:          "urgent",
		AssignedToID:        actorOwner,
		ActorID:             actorValidator,
	})
	var verr workflow.ValidationError
	if !errors.As(err, &verr) || verr.Field != "priority_id" {
		t.Fatalf("expected priority validation error, got %v", err)
	}
}

func TestFinalizeRequirements(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.Engine.Create(env.Ctx, workflow.CreateOptions{
		ValidationRequestID: "vr-1",
		ModelID:             "model-1",
		Title:               "Missing fields",
		PriorityID:          "low",
		AssignedToID:        actorOwner,
		ActorID:             actorValidator,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator); err == nil {
		t.Fatalf("expected finalize to fail without description and target date")
	}
	desc := "Now described"
	target := "2025-10-01T00:00:00Z"
	if _, err := env.Engine.Update(env.Ctx, rec.ID, workflow.UpdateOptions{
		Description:       &desc,
		CurrentTargetDate: &target,
		ActorID:           actorValidator,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	final, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.FinalizedAt == nil {
		t.Fatalf("finalized_at not stamped")
	}

	// replaying the same edge must fail and leave the audit trail untouched
	before, _ := env.Engine.Timeline(env.Ctx, rec.ID)
	_, err = env.Engine.Finalize(env.Ctx, rec.ID, actorValidator)
	var terr workflow.InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	after, _ := env.Engine.Timeline(env.Ctx, rec.ID)
	if len(after) != len(before) {
		t.Fatalf("failed transition wrote history: %d -> %d", len(before), len(after))
	}
}

func TestAcknowledgeGatedToAssignee(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "low")
	if _, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	_, err := env.Engine.Acknowledge(env.Ctx, rec.ID, actorValidator)
	var ferr identity.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden for non-assignee, got %v", err)
	}
	// admin passes every gate
	if _, err := env.Engine.Acknowledge(env.Ctx, rec.ID, actorAdmin); err != nil {
		t.Fatalf("admin acknowledge: %v", err)
	}
}

func TestRebuttalOverrideReinstates(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "low")
	if _, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	rb, err := env.Engine.SubmitRebuttal(env.Ctx, rec.ID, actorOwner, "wrong model scoped", "see memo")
	if err != nil {
		t.Fatalf("submit rebuttal: %v", err)
	}
	if rb.CurrentStatus != domain.StatusRebuttalSubmitted {
		t.Fatalf("expected rebuttal_submitted, got %s", rb.CurrentStatus)
	}

	back, err := env.Engine.ReviewRebuttal(env.Ctx, rec.ID, actorValidator, domain.RebuttalOverride, "finding stands")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if back.CurrentStatus != domain.StatusPendingResponse {
		t.Fatalf("expected pending_response after override, got %s", back.CurrentStatus)
	}
	if back.AcknowledgedAt != nil {
		t.Fatalf("override must clear acknowledged_at")
	}

	// the reviewed rebuttal stays current until a renewed decline supersedes it
	rebuttals, err := env.Engine.Rebuttals(env.Ctx, rec.ID)
	if err != nil {
		t.Fatalf("rebuttals: %v", err)
	}
	if len(rebuttals) != 1 || !rebuttals[0].IsCurrent {
		t.Fatalf("expected one current rebuttal, got %+v", rebuttals)
	}
	if rebuttals[0].ReviewDecision == nil || *rebuttals[0].ReviewDecision != domain.RebuttalOverride {
		t.Fatalf("review decision not recorded")
	}

	// a second decline demotes the first row
	if _, err := env.Engine.DeclineAcknowledgement(env.Ctx, rec.ID, actorOwner, "still disagree"); err != nil {
		t.Fatalf("second decline: %v", err)
	}
	rebuttals, _ = env.Engine.Rebuttals(env.Ctx, rec.ID)
	if len(rebuttals) != 2 {
		t.Fatalf("expected two rebuttal rows, got %d", len(rebuttals))
	}
	current := 0
	for _, r := range rebuttals {
		if r.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current rebuttal, got %d", current)
	}
}

func TestRebuttalAcceptCloses(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "high")
	if _, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := env.Engine.DeclineAcknowledgement(env.Ctx, rec.ID, actorOwner, "duplicate of REC-9"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	closed, err := env.Engine.ReviewRebuttal(env.Ctx, rec.ID, actorValidator, domain.RebuttalAccept, "agreed, duplicate")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if closed.CurrentStatus != domain.StatusClosed || closed.ClosedAt == nil {
		t.Fatalf("accept must close: %+v", closed)
	}
	if closed.ClosureSummary == nil || *closed.ClosureSummary != "agreed, duplicate" {
		t.Fatalf("review comments should become the closure summary")
	}
	// closing via rebuttal never materializes approvals, regardless of priority
	approvals, _ := env.Engine.Approvals(env.Ctx, rec.ID)
	if len(approvals) != 0 {
		t.Fatalf("expected no approvals, got %d", len(approvals))
	}
}

func TestActionPlanRejectKeepsTasks(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "low")
	if _, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := env.Engine.Acknowledge(env.Ctx, rec.ID, actorOwner); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, _, err := env.Engine.SubmitActionPlan(env.Ctx, rec.ID, actorOwner, []workflow.TaskDraft{
		{Description: "first pass", OwnerID: actorOwner, TargetDate: "2025-07-01T00:00:00Z"},
	}); err != nil {
		t.Fatalf("submit plan: %v", err)
	}
	if _, err := env.Engine.RejectActionPlan(env.Ctx, rec.ID, actorValidator, ""); err == nil {
		t.Fatalf("reject without feedback should fail")
	}
	back, err := env.Engine.RejectActionPlan(env.Ctx, rec.ID, actorValidator, "add a validation step")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if back.CurrentStatus != domain.StatusAcknowledged {
		t.Fatalf("expected acknowledged after rejection, got %s", back.CurrentStatus)
	}
	tasks, _ := env.Engine.Tasks(env.Ctx, rec.ID)
	if len(tasks) != 1 {
		t.Fatalf("rejected plan tasks must be retained, got %d", len(tasks))
	}

	// resubmission replaces the batch wholesale
	_, tasks, err = env.Engine.SubmitActionPlan(env.Ctx, rec.ID, actorOwner, []workflow.TaskDraft{
		{Description: "revised pass", OwnerID: actorOwner, TargetDate: "2025-07-01T00:00:00Z"},
		{Description: "validation step", OwnerID: actorOwner, TargetDate: "2025-07-15T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("resubmit plan: %v", err)
	}
	if len(tasks) != 2 || tasks[0].TaskOrder != 1 || tasks[1].TaskOrder != 2 {
		t.Fatalf("unexpected replacement batch: %+v", tasks)
	}
}

func TestTaskUpdatesGatedByParentStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "low")
	if _, err := env.Engine.Finalize(env.Ctx, rec.ID, actorValidator); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := env.Engine.Acknowledge(env.Ctx, rec.ID, actorOwner); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	_, tasks, err := env.Engine.SubmitActionPlan(env.Ctx, rec.ID, actorOwner, []workflow.TaskDraft{
		{Description: "only task", OwnerID: actorOwner, TargetDate: "2025-07-01T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("submit plan: %v", err)
	}
	done := "2025-06-20T00:00:00Z"
	// parent is still pending_validator_review
	if _, err := env.Engine.UpdateTask(env.Ctx, tasks[0].ID, workflow.TaskPatch{CompletedDate: &done, ActorID: actorOwner}); err == nil {
		t.Fatalf("expected task update blocked before in_progress")
	}
	if _, err := env.Engine.ApproveActionPlan(env.Ctx, rec.ID, actorValidator, ""); err != nil {
		t.Fatalf("approve plan: %v", err)
	}
	updated, err := env.Engine.UpdateTask(env.Ctx, tasks[0].ID, workflow.TaskPatch{CompletedDate: &done, ActorID: actorOwner})
	if err != nil {
		t.Fatalf("task update: %v", err)
	}
	if updated.CompletedDate == nil || *updated.CompletedDate != done {
		t.Fatalf("completed date not recorded: %+v", updated)
	}
}

func TestApprovalFanOutAndRejectionLoop(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "critical")
	advanceToClosureReview(t, env, rec.ID)

	parked, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, "")
	if err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	if parked.CurrentStatus != domain.StatusPendingApproval {
		t.Fatalf("critical priority must enter pending_approval, got %s", parked.CurrentStatus)
	}

	// one global slot plus one EU regional slot; US does not require sign-off
	approvals, err := env.Engine.Approvals(env.Ctx, rec.ID)
	if err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if len(approvals) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(approvals))
	}
	var globalSlot, euSlot domain.Approval
	for _, ap := range approvals {
		switch ap.ApprovalType {
		case domain.ApprovalTypeGlobal:
			globalSlot = ap
		case domain.ApprovalTypeRegional:
			if ap.RegionID == nil || *ap.RegionID != "EU" {
				t.Fatalf("unexpected regional slot: %+v", ap)
			}
			euSlot = ap
		}
	}
	if globalSlot.ID == "" || euSlot.ID == "" {
		t.Fatalf("missing slot: %+v", approvals)
	}

	// rejection needs comments and bounces the parent back to closure review
	if _, _, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorGlobal, domain.DecisionReject, "", ""); err == nil {
		t.Fatalf("reject without comments should fail")
	}
	_, bounced, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorGlobal, domain.DecisionReject, "evidence is stale", "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if bounced.CurrentStatus != domain.StatusPendingClosureReview {
		t.Fatalf("rejection must return to pending_closure_review, got %s", bounced.CurrentStatus)
	}

	// approve EU while the parent sits in closure review: blocked
	if _, _, err := env.Engine.SubmitApproval(env.Ctx, euSlot.ID, actorEUApprover, domain.DecisionApprove, "", ""); err == nil {
		t.Fatalf("approvals must be inert outside pending_approval")
	}

	// re-entry retains the set and reopens only the rejected slot
	if _, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, "evidence refreshed"); err != nil {
		t.Fatalf("re-approve closure: %v", err)
	}
	approvals, _ = env.Engine.Approvals(env.Ctx, rec.ID)
	if len(approvals) != 2 {
		t.Fatalf("re-entry must not grow the set, got %d slots", len(approvals))
	}
	for _, ap := range approvals {
		if ap.Status != domain.ApprovalPending {
			t.Fatalf("slot %s should be pending after re-entry, got %s", ap.ID, ap.Status)
		}
	}

	// EU approver cannot touch the global slot
	if _, _, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorEUApprover, domain.DecisionApprove, "", ""); err == nil {
		t.Fatalf("regional approver must not decide the global slot")
	}
	if _, _, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorGlobal, domain.DecisionApprove, "lgtm", ""); err != nil {
		t.Fatalf("global approve: %v", err)
	}
	ap, closed, err := env.Engine.SubmitApproval(env.Ctx, euSlot.ID, actorEUApprover, domain.DecisionApprove, "", "")
	if err != nil {
		t.Fatalf("eu approve: %v", err)
	}
	if ap.RepresentedRegionID != nil {
		t.Fatalf("region's own approver is not a proxy")
	}
	if closed.CurrentStatus != domain.StatusClosed || closed.ClosedAt == nil {
		t.Fatalf("last approval must close: %+v", closed)
	}
}

func TestGlobalApproverProxiesRegionalSlot(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "critical")
	advanceToClosureReview(t, env, rec.ID)
	if _, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, ""); err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	approvals, _ := env.Engine.Approvals(env.Ctx, rec.ID)
	var euSlot domain.Approval
	for _, ap := range approvals {
		if ap.ApprovalType == domain.ApprovalTypeRegional {
			euSlot = ap
		}
	}
	ap, _, err := env.Engine.SubmitApproval(env.Ctx, euSlot.ID, actorGlobal, domain.DecisionApprove, "covering for EU", "")
	if err != nil {
		t.Fatalf("proxy approve: %v", err)
	}
	if ap.RepresentedRegionID == nil || *ap.RepresentedRegionID != "EU" {
		t.Fatalf("proxy decision must stamp represented_region_id, got %+v", ap)
	}
}

func TestVoidApproval(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "critical")
	advanceToClosureReview(t, env, rec.ID)
	if _, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, ""); err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	approvals, _ := env.Engine.Approvals(env.Ctx, rec.ID)
	var globalSlot domain.Approval
	for _, ap := range approvals {
		if ap.ApprovalType == domain.ApprovalTypeGlobal {
			globalSlot = ap
		}
	}

	// voiding an undecided slot is meaningless
	if _, err := env.Engine.VoidApproval(env.Ctx, globalSlot.ID, actorAdmin, "typo"); err == nil {
		t.Fatalf("void of a pending slot should fail")
	}

	if _, _, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorGlobal, domain.DecisionApprove, "approved in error", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// a decided slot refuses a second decision until voided
	_, _, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorGlobal, domain.DecisionApprove, "", "")
	var terr workflow.InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected invalid transition on re-decision, got %v", err)
	}

	// only admins void
	if _, err := env.Engine.VoidApproval(env.Ctx, globalSlot.ID, actorGlobal, "mistake"); err == nil {
		t.Fatalf("non-admin void should fail")
	}
	if _, err := env.Engine.VoidApproval(env.Ctx, globalSlot.ID, actorAdmin, ""); err == nil {
		t.Fatalf("void without reason should fail")
	}
	voided, err := env.Engine.VoidApproval(env.Ctx, globalSlot.ID, actorAdmin, "approved in error")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.ApprovalPending {
		t.Fatalf("voided slot must return to pending, got %s", voided.Status)
	}
	if voided.ApproverID != nil || voided.ApprovedAt != nil || voided.Comments != nil {
		t.Fatalf("void must clear decision fields: %+v", voided)
	}
	if voided.VoidedByID == nil || *voided.VoidedByID != actorAdmin || voided.VoidReason == nil {
		t.Fatalf("void metadata missing: %+v", voided)
	}

	// the parent never moves on a void
	cur, _ := env.Engine.Get(env.Ctx, rec.ID)
	if cur.CurrentStatus != domain.StatusPendingApproval {
		t.Fatalf("void must not transition the parent, got %s", cur.CurrentStatus)
	}

	// the slot accepts a fresh decision again
	if _, _, err := env.Engine.SubmitApproval(env.Ctx, globalSlot.ID, actorGlobal, domain.DecisionApprove, "", ""); err != nil {
		t.Fatalf("re-decide after void: %v", err)
	}
}

func TestPriorityFrozenDuringApproval(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "critical")
	advanceToClosureReview(t, env, rec.ID)
	if _, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, ""); err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	lower := "low"
	_, err := env.Engine.Update(env.Ctx, rec.ID, workflow.UpdateOptions{PriorityID: &lower, ActorID: actorValidator})
	var verr workflow.ValidationError
	if !errors.As(err, &verr) || verr.Field != "priority_id" {
		t.Fatalf("expected priority change blocked in pending_approval, got %v", err)
	}
}

func TestConcurrentLastApprovalClosesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Now = time.Now
	rec := createRec(t, env, "high")
	advanceToClosureReview(t, env, rec.ID)
	if _, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, ""); err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	approvals, _ := env.Engine.Approvals(env.Ctx, rec.ID)
	var slots []string
	for _, ap := range approvals {
		slots = append(slots, ap.ID)
	}

	// both racers try to finish the set; exactly one transition to CLOSED may land
	var wg sync.WaitGroup
	errs := make([]error, len(slots)*2)
	for i, slotID := range slots {
		for j, actor := range []string{actorGlobal, actorAdmin} {
			wg.Add(1)
			go func(idx int, slot, who string) {
				defer wg.Done()
				_, _, errs[idx] = env.Engine.SubmitApproval(env.Ctx, slot, who, domain.DecisionApprove, "", "")
			}(i*2+j, slotID, actor)
		}
	}
	wg.Wait()

	cur, err := env.Engine.Get(env.Ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.CurrentStatus != domain.StatusClosed {
		t.Fatalf("expected closed, got %s", cur.CurrentStatus)
	}
	timeline, _ := env.Engine.Timeline(env.Ctx, rec.ID)
	closedRows := 0
	for _, h := range timeline {
		if h.NewStatus == domain.StatusClosed {
			closedRows++
		}
	}
	if closedRows != 1 {
		t.Fatalf("expected exactly one closing transition, got %d", closedRows)
	}
	succeeded := 0
	for _, e := range errs {
		if e == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		t.Fatalf("no racer succeeded: %v", errs)
	}
}

func TestEvidenceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	rec := createRec(t, env, "medium")
	advanceToInProgress(t, env, rec.ID)

	ev, err := env.Engine.AddClosureEvidence(env.Ctx, rec.ID, actorOwner, "backtest report", "https://mrm.internal/reports/77")
	if err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	// only the uploader or an admin may delete
	if err := env.Engine.DeleteClosureEvidence(env.Ctx, ev.ID, actorGlobal); err == nil {
		t.Fatalf("stranger delete should fail")
	}
	if err := env.Engine.DeleteClosureEvidence(env.Ctx, ev.ID, actorAdmin); err != nil {
		t.Fatalf("admin delete: %v", err)
	}

	ev2, err := env.Engine.AddClosureEvidence(env.Ctx, rec.ID, actorOwner, "sign-off memo", "")
	if err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	if _, err := env.Engine.SubmitForClosureReview(env.Ctx, rec.ID, actorOwner, "done"); err != nil {
		t.Fatalf("submit closure: %v", err)
	}
	if _, err := env.Engine.ApproveClosureReview(env.Ctx, rec.ID, actorValidator, ""); err != nil {
		t.Fatalf("approve closure: %v", err)
	}
	// the record is frozen once closed
	if _, err := env.Engine.AddClosureEvidence(env.Ctx, rec.ID, actorOwner, "late addition", ""); err == nil {
		t.Fatalf("evidence add after close should fail")
	}
	if err := env.Engine.DeleteClosureEvidence(env.Ctx, ev2.ID, actorAdmin); err == nil {
		t.Fatalf("evidence delete after close should fail")
	}
}
