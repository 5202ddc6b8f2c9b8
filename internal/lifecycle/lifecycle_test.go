package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/drover-sh/drover/internal/agent"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/hooks"
	"github.com/drover-sh/drover/internal/planstore"
	"github.com/drover-sh/drover/internal/pr"
	"github.com/drover-sh/drover/internal/testutil"
	"github.com/drover-sh/drover/internal/workspace"
)

func TestSuffix(t *testing.T) {
	tests := []struct {
		name    string
		issueID int
		stage   string
		want    string
		wantErr bool
	}{
		{"plain id", 42, "", "42", false},
		{"simple stage", 42, "api", "42-api", false},
		{"uppercase lowered", 42, "API", "42-api", false},
		{"spaces collapse to hyphens", 42, "data model v2", "42-data-model-v2", false},
		{"punctuation runs collapse", 42, "fix!!login", "42-fix-login", false},
		{"trailing junk trimmed", 42, "api!", "42-api", false},
		{"stage with nothing usable", 42, "!!!", "", true},
		{"zero issue id", 0, "", "", true},
		{"negative issue id", -1, "api", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Suffix(tt.issueID, tt.stage)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Suffix() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Suffix() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Suffix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPort(t *testing.T) {
	if got := Port(42, 3000, 1000); got != 3042 {
		t.Errorf("Port(42) = %d, want 3042", got)
	}
	if got := Port(7, 0, 0); got != 3007 {
		t.Errorf("Port(7) with defaults = %d, want 3007", got)
	}

	// Ids that coincide modulo the range collide. Known limit, not a
	// defect of the derivation.
	if Port(42, 3000, 1000) != Port(1042, 3000, 1000) {
		t.Error("ids 42 and 1042 should share a port under a modulo-1000 range")
	}
}

func TestPhaseRoundTrip(t *testing.T) {
	for _, phase := range []Phase{PhaseCreated, PhasePlanning, PhasePlanPosted,
		PhaseBuilding, PhaseReview, PhaseCleanup, PhaseDone} {
		parsed, err := ParsePhase(phase.String())
		if err != nil {
			t.Fatalf("ParsePhase(%s) error = %v", phase, err)
		}
		if parsed != phase {
			t.Errorf("ParsePhase(%s) = %v, want %v", phase, parsed, phase)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	// A missing registry is an empty registry.
	units, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(units) != 0 {
		t.Errorf("fresh registry has %d units, want 0", len(units))
	}

	if err := store.Put(&Unit{Suffix: "42", IssueID: 42, Phase: PhasePlanning}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(&Unit{Suffix: "7-api", IssueID: 7, Stage: "api", Phase: PhaseReview}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	unit, err := store.Get("42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if unit.Phase != PhasePlanning {
		t.Errorf("Phase = %v, want PhasePlanning", unit.Phase)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Suffix != "42" || list[1].Suffix != "7-api" {
		t.Errorf("List() order wrong: %v", list)
	}

	_, err = store.Get("404")
	if !errors.Is(err, errors.ErrUnitNotFound) {
		t.Errorf("Get(404) error = %v, want ErrUnitNotFound", err)
	}
}

// testHarness wires an orchestrator against a real git repo, a real plan
// store, and fake agents plus a fake PR checkpoint.
type testHarness struct {
	orch    *Orchestrator
	repo    string
	agents  *agent.FakeSpawner
	plans   *planstore.FileStore
	gate    *pr.FakeCheckpoint
	manager *workspace.Manager
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	manager, err := workspace.New(repo, filepath.Join(repo, "worktrees"), "origin", nil)
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}

	h := &testHarness{
		repo:    repo,
		agents:  agent.NewFakeSpawner(),
		plans:   planstore.NewFileStore(filepath.Join(t.TempDir(), "plans"), nil),
		gate:    pr.NewFakeCheckpoint(),
		manager: manager,
	}
	h.orch = New(NewStore(t.TempDir()), manager, h.plans, h.agents, nil, h.gate, nil)
	return h
}

// advanceToReview walks a unit to Review: start, post plan, approve plan,
// report PR.
func (h *testHarness) advanceToReview(t *testing.T, issueID int) *Unit {
	t.Helper()
	ctx := context.Background()

	unit, err := h.orch.StartPlanning(ctx, issueID, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}
	if _, err := h.orch.ReportPlanPosted(unit.Suffix); err != nil {
		t.Fatalf("ReportPlanPosted() error = %v", err)
	}
	if err := h.plans.Write(unit.Suffix, []byte("# plan\n")); err != nil {
		t.Fatalf("plan Write() error = %v", err)
	}
	if _, err := h.orch.ApprovePlan(ctx, unit.Suffix, false); err != nil {
		t.Fatalf("ApprovePlan() error = %v", err)
	}
	unit, err = h.orch.ReportPRCreated(unit.Suffix, "https://example.com/pr/1")
	if err != nil {
		t.Fatalf("ReportPRCreated() error = %v", err)
	}
	return unit
}

func TestStartPlanning(t *testing.T) {
	h := newHarness(t)

	unit, err := h.orch.StartPlanning(context.Background(), 42, StartOptions{WorkType: "fix"})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}
	if unit.Phase != PhasePlanning {
		t.Errorf("Phase = %v, want PhasePlanning", unit.Phase)
	}
	if unit.Branch != "fix/issue-42" {
		t.Errorf("Branch = %s, want fix/issue-42", unit.Branch)
	}
	if unit.Planner == nil {
		t.Fatal("no planner handle recorded")
	}
	if !h.agents.Live(unit.Planner.Session) {
		t.Error("planner session not live")
	}
	if _, err := os.Stat(unit.WorkspacePath); err != nil {
		t.Errorf("workspace missing: %v", err)
	}
}

func TestStartPlanningDuplicateSuffix(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.StartPlanning(ctx, 42, StartOptions{}); err != nil {
		t.Fatalf("first StartPlanning() error = %v", err)
	}

	_, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if !errors.Is(err, errors.ErrUnitExists) {
		t.Errorf("error = %v, want ErrUnitExists", err)
	}
	if len(h.agents.Spawned) != 1 {
		t.Errorf("spawn count = %d, want 1 (duplicate must not spawn)", len(h.agents.Spawned))
	}
}

func TestReportNeverAdvancesPastPlanPosted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unit, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}

	// However many times the planner reports, the unit waits for the
	// explicit approval command.
	for i := 0; i < 3; i++ {
		unit, err = h.orch.ReportPlanPosted(unit.Suffix)
		if err != nil {
			t.Fatalf("ReportPlanPosted() error = %v", err)
		}
		if unit.Phase != PhasePlanPosted {
			t.Fatalf("Phase = %v, want PhasePlanPosted", unit.Phase)
		}
	}
	if unit.Builder != nil {
		t.Error("builder spawned without approval")
	}
	if len(h.agents.Spawned) != 1 {
		t.Errorf("spawn count = %d, want 1", len(h.agents.Spawned))
	}
}

func TestApprovePlanRequiresPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unit, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}
	if _, err := h.orch.ReportPlanPosted(unit.Suffix); err != nil {
		t.Fatalf("ReportPlanPosted() error = %v", err)
	}

	_, err = h.orch.ApprovePlan(ctx, unit.Suffix, false)
	if !errors.Is(err, errors.ErrPlanNotFound) {
		t.Fatalf("error = %v, want ErrPlanNotFound", err)
	}

	// Write the plan; approval now succeeds and the planner survives.
	if err := h.plans.Write(unit.Suffix, []byte("# plan\n")); err != nil {
		t.Fatalf("plan Write() error = %v", err)
	}
	unit, err = h.orch.ApprovePlan(ctx, unit.Suffix, false)
	if err != nil {
		t.Fatalf("ApprovePlan() error = %v", err)
	}
	if unit.Phase != PhaseBuilding {
		t.Errorf("Phase = %v, want PhaseBuilding", unit.Phase)
	}
	if unit.Builder == nil {
		t.Fatal("no builder handle recorded")
	}
	if unit.Planner == nil || !h.agents.Live(unit.Planner.Session) {
		t.Error("planner disposed at plan approval; it must stay idle")
	}
}

// The posted report is informational, so approval must also work for a unit
// still in Planning whose report was never relayed.
func TestApprovePlanFromPlanning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unit, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}
	if err := h.plans.Write(unit.Suffix, []byte("# plan\n")); err != nil {
		t.Fatalf("plan Write() error = %v", err)
	}

	unit, err = h.orch.ApprovePlan(ctx, unit.Suffix, false)
	if err != nil {
		t.Fatalf("ApprovePlan() error = %v", err)
	}
	if unit.Phase != PhaseBuilding {
		t.Errorf("Phase = %v, want PhaseBuilding", unit.Phase)
	}
	if unit.Builder == nil {
		t.Error("no builder handle recorded")
	}
}

func TestWatchPlanEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unit, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}

	events := make(chan planstore.PlanEvent, 4)
	done := make(chan error, 1)
	go func() { done <- h.orch.WatchPlanEvents(ctx, events) }()

	// Events for unknown suffixes and removals are noise, not errors.
	events <- planstore.PlanEvent{Suffix: "404", Op: planstore.OpWritten}
	events <- planstore.PlanEvent{Suffix: unit.Suffix, Op: planstore.OpRemoved}
	events <- planstore.PlanEvent{Suffix: unit.Suffix, Op: planstore.OpWritten}
	close(events)

	if err := <-done; err != nil {
		t.Fatalf("WatchPlanEvents() error = %v", err)
	}

	unit, err = h.orch.Status(unit.Suffix)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if unit.Phase != PhasePlanPosted {
		t.Errorf("Phase = %v, want PhasePlanPosted", unit.Phase)
	}
	if unit.Builder != nil {
		t.Error("a watched plan event must not advance past PlanPosted")
	}
}

func TestWatchPlanEventsStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.orch.WatchPlanEvents(ctx, make(chan planstore.PlanEvent)) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchPlanEvents() after cancel = %v, want nil", err)
	}
}

// erringPlanStore fails Verify to simulate an inconclusive check.
type erringPlanStore struct {
	*planstore.FileStore
}

func (s erringPlanStore) Verify(string) (bool, error) {
	return false, errors.New("plan backend unreachable")
}

func TestApprovePlanInconclusiveNeedsOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.orch.plans = erringPlanStore{h.plans}

	unit, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}
	if _, err := h.orch.ReportPlanPosted(unit.Suffix); err != nil {
		t.Fatalf("ReportPlanPosted() error = %v", err)
	}

	if _, err := h.orch.ApprovePlan(ctx, unit.Suffix, false); err == nil {
		t.Fatal("approval succeeded despite inconclusive verification")
	}

	unit, err = h.orch.ApprovePlan(ctx, unit.Suffix, true)
	if err != nil {
		t.Fatalf("ApprovePlan(override) error = %v", err)
	}
	if unit.Phase != PhaseBuilding {
		t.Errorf("Phase = %v, want PhaseBuilding", unit.Phase)
	}
}

func TestReportPRCreated(t *testing.T) {
	h := newHarness(t)
	unit := h.advanceToReview(t, 42)

	if unit.Phase != PhaseReview {
		t.Errorf("Phase = %v, want PhaseReview", unit.Phase)
	}
	if unit.PRURL != "https://example.com/pr/1" {
		t.Errorf("PRURL = %s", unit.PRURL)
	}

	// A repeated report refreshes the URL and nothing else.
	unit, err := h.orch.ReportPRCreated(unit.Suffix, "https://example.com/pr/2")
	if err != nil {
		t.Fatalf("second ReportPRCreated() error = %v", err)
	}
	if unit.Phase != PhaseReview || unit.PRURL != "https://example.com/pr/2" {
		t.Errorf("Phase/URL = %v/%s", unit.Phase, unit.PRURL)
	}
}

func TestReportPRCreatedWrongPhase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unit, err := h.orch.StartPlanning(ctx, 42, StartOptions{})
	if err != nil {
		t.Fatalf("StartPlanning() error = %v", err)
	}

	_, err = h.orch.ReportPRCreated(unit.Suffix, "https://example.com/pr/1")
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestApproveIssueRefusedWhenNotReady(t *testing.T) {
	h := newHarness(t)
	unit := h.advanceToReview(t, 42)

	h.gate.Statuses[unit.Branch] = &pr.Status{
		State: "OPEN", Mergeable: true, ChecksPassing: false,
	}

	_, err := h.orch.ApproveIssue(context.Background(), unit.Suffix)
	if !errors.Is(err, errors.ErrNotMergeable) {
		t.Fatalf("error = %v, want ErrNotMergeable", err)
	}

	// A refused transition is a no-op: everything stays in place.
	unit, err = h.orch.Status(unit.Suffix)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if unit.Phase != PhaseReview {
		t.Errorf("Phase = %v, want PhaseReview", unit.Phase)
	}
	if _, err := os.Stat(unit.WorkspacePath); err != nil {
		t.Error("workspace removed by a refused approval")
	}
	if ok, _ := h.plans.Verify(unit.Suffix); !ok {
		t.Error("plan deleted by a refused approval")
	}
	if !h.agents.Live(unit.Planner.Session) || !h.agents.Live(unit.Builder.Session) {
		t.Error("agents disposed by a refused approval")
	}
	if len(h.gate.Merged) != 0 {
		t.Error("merge performed by a refused approval")
	}
}

func TestApproveIssueTeardown(t *testing.T) {
	h := newHarness(t)
	unit := h.advanceToReview(t, 42)

	h.gate.Statuses[unit.Branch] = &pr.Status{
		State: "OPEN", Mergeable: true, ChecksPassing: true,
	}
	workspacePath := unit.WorkspacePath
	plannerSession := unit.Planner.Session
	builderSession := unit.Builder.Session

	unit, err := h.orch.ApproveIssue(context.Background(), unit.Suffix)
	if err != nil {
		t.Fatalf("ApproveIssue() error = %v", err)
	}
	if unit.Phase != PhaseDone {
		t.Errorf("Phase = %v, want PhaseDone", unit.Phase)
	}
	if len(h.gate.Merged) != 1 || h.gate.Merged[0] != "feature/issue-42" {
		t.Errorf("Merged = %v, want [feature/issue-42]", h.gate.Merged)
	}
	if h.agents.Live(plannerSession) || h.agents.Live(builderSession) {
		t.Error("agents still live after teardown")
	}
	if ok, _ := h.plans.Verify("42"); ok {
		t.Error("plan still present after teardown")
	}
	if _, err := os.Stat(workspacePath); !os.IsNotExist(err) {
		t.Error("workspace still present after teardown")
	}

	// The builder must be disposed before the planner.
	if len(h.agents.Disposed) != 2 ||
		h.agents.Disposed[0] != builderSession ||
		h.agents.Disposed[1] != plannerSession {
		t.Errorf("dispose order = %v, want [builder planner]", h.agents.Disposed)
	}

	// The suffix is free again.
	if _, err := h.orch.StartPlanning(context.Background(), 42, StartOptions{}); err != nil {
		t.Errorf("suffix not reusable after teardown: %v", err)
	}
}

func TestApproveIssueContinuesPastFailingCleanupHook(t *testing.T) {
	h := newHarness(t)
	unit := h.advanceToReview(t, 42)

	// Install a failing cleanup hook in the primary checkout.
	hooksDir := filepath.Join(h.repo, hooks.HooksDir)
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		t.Fatalf("mkdir hooks: %v", err)
	}
	script := filepath.Join(hooksDir, string(hooks.HookCleanup))
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
		t.Fatalf("write hook: %v", err)
	}
	h.orch.hooks = hooks.Resolve(h.repo, nil)

	h.gate.Statuses[unit.Branch] = &pr.Status{
		State: "OPEN", Mergeable: true, ChecksPassing: true,
	}

	unit, err := h.orch.ApproveIssue(context.Background(), unit.Suffix)
	if err != nil {
		t.Fatalf("ApproveIssue() error = %v (failing cleanup hook must not abort teardown)", err)
	}
	if unit.Phase != PhaseDone {
		t.Errorf("Phase = %v, want PhaseDone", unit.Phase)
	}
	if len(h.gate.Merged) != 1 {
		t.Error("merge skipped after failing cleanup hook")
	}
}

func TestDisposeAbsentAgentIsSatisfied(t *testing.T) {
	h := newHarness(t)
	unit := h.advanceToReview(t, 42)

	// The planner session vanished out-of-band (operator killed it).
	if _, err := h.agents.Dispose(context.Background(), unit.Planner); err != nil {
		t.Fatalf("out-of-band dispose error = %v", err)
	}

	h.gate.Statuses[unit.Branch] = &pr.Status{
		State: "OPEN", Mergeable: true, ChecksPassing: true,
	}

	unit, err := h.orch.ApproveIssue(context.Background(), unit.Suffix)
	if err != nil {
		t.Fatalf("ApproveIssue() error = %v (absent agent must be satisfied)", err)
	}
	if unit.Phase != PhaseDone {
		t.Errorf("Phase = %v, want PhaseDone", unit.Phase)
	}
}
