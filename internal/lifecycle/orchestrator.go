package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/drover-sh/drover/internal/agent"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/hooks"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/planstore"
	"github.com/drover-sh/drover/internal/pr"
	"github.com/drover-sh/drover/internal/workspace"
)

// Orchestrator owns phase transitions for all work units. It is the only
// component that spawns or disposes a unit's agents, and it never touches a
// unit's resources from another unit's command.
type Orchestrator struct {
	store      *Store
	workspaces *workspace.Manager
	plans      planstore.Store
	agents     agent.Spawner
	hooks      hooks.Runner
	checkpoint pr.Checkpoint
	logger     *logging.Logger
}

// New wires an Orchestrator from its collaborators.
func New(store *Store, workspaces *workspace.Manager, plans planstore.Store,
	agents agent.Spawner, hookRunner hooks.Runner, checkpoint pr.Checkpoint,
	logger *logging.Logger) *Orchestrator {
	if hookRunner == nil {
		hookRunner = hooks.NopRunner{}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Orchestrator{
		store:      store,
		workspaces: workspaces,
		plans:      plans,
		agents:     agents,
		hooks:      hookRunner,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// StartOptions control StartPlanning.
type StartOptions struct {
	Stage    string
	WorkType string
	// Prompt is the planner's initial task text. Empty gets a default
	// derived from the issue id.
	Prompt string
}

// StartPlanning creates a unit for the issue, provisions its workspace, and
// spawns the planner: Created→Planning in one command. A suffix already in
// use by an active unit is refused with no mutation.
func (o *Orchestrator) StartPlanning(ctx context.Context, issueID int, opts StartOptions) (*Unit, error) {
	suffix, err := Suffix(issueID, opts.Stage)
	if err != nil {
		return nil, err
	}

	units, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	if existing, ok := units[suffix]; ok && existing.Active() {
		return nil, errors.NewLifecycleError("work unit already active", errors.ErrUnitExists).
			WithSuffix(suffix).
			WithPhase(existing.Phase.String())
	}

	created, _, err := o.workspaces.Create(suffix, workspace.CreateOptions{WorkType: opts.WorkType})
	if err != nil {
		return nil, err
	}

	prompt := opts.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("Investigate issue %d and write an implementation plan.", issueID)
	}

	planner, err := o.agents.Spawn(ctx, agent.Spec{
		Role:    agent.RolePlanner,
		Suffix:  suffix,
		WorkDir: created.Path,
		Prompt:  prompt,
	})
	if err != nil {
		// The workspace is fresh and clean; release it so the failed
		// start leaves nothing behind.
		if _, rerr := o.workspaces.Remove(suffix, false); rerr != nil {
			o.logger.Warn("failed to release workspace after spawn failure",
				"suffix", suffix, "error", rerr)
		}
		return nil, err
	}

	now := time.Now()
	unit := &Unit{
		Suffix:        suffix,
		IssueID:       issueID,
		Stage:         opts.Stage,
		Phase:         PhasePlanning,
		WorkType:      opts.WorkType,
		WorkspacePath: created.Path,
		Branch:        created.Branch,
		Planner:       planner,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.Put(unit); err != nil {
		return nil, err
	}

	o.logger.WithUnit(suffix).Info("planning started",
		"issue", issueID, "branch", created.Branch)
	return unit, nil
}

// ReportPlanPosted records the planner's "plan written" report. It marks
// the unit PlanPosted and nothing more: reports are status, not consent,
// and a unit already at or past PlanPosted does not move.
func (o *Orchestrator) ReportPlanPosted(suffix string) (*Unit, error) {
	unit, err := o.store.Get(suffix)
	if err != nil {
		return nil, err
	}

	switch unit.Phase {
	case PhasePlanning:
		unit.Phase = PhasePlanPosted
		unit.UpdatedAt = time.Now()
		if err := o.store.Put(unit); err != nil {
			return nil, err
		}
		o.logger.WithUnit(suffix).Info("plan posted, awaiting approval")
	case PhasePlanPosted:
		// Repeated report, nothing to record.
	default:
		return nil, errors.NewLifecycleError("plan report is only meaningful while planning", errors.ErrInvalidTransition).
			WithSuffix(suffix).
			WithPhase(unit.Phase.String())
	}
	return unit, nil
}

// WatchPlanEvents consumes plan file events and records a "plan posted"
// report for each written plan. Events for unknown suffixes and units not in
// Planning are ignored: a plan file is a report, and a stray report is
// noise, not an error. Returns nil when ctx is done or events closes.
func (o *Orchestrator) WatchPlanEvents(ctx context.Context, events <-chan planstore.PlanEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Op != planstore.OpWritten {
				continue
			}
			if _, err := o.ReportPlanPosted(ev.Suffix); err != nil {
				if errors.Is(err, errors.ErrUnitNotFound) || errors.Is(err, errors.ErrInvalidTransition) {
					o.logger.Debug("ignoring plan event", "suffix", ev.Suffix, "error", err)
					continue
				}
				return err
			}
		}
	}
}

// ApprovePlan is the explicit PlanPosted→Building command. A unit still in
// Planning may also be approved: the posted report is informational and the
// operator may act on a plan whose report was never relayed. The plan must
// verifiably exist; when verification is inconclusive (store error), the
// approval proceeds only with override, logged as a warning. The planner is
// not disposed: it stays idle for the builder to consult.
func (o *Orchestrator) ApprovePlan(ctx context.Context, suffix string, override bool) (*Unit, error) {
	unit, err := o.store.Get(suffix)
	if err != nil {
		return nil, err
	}
	if unit.Phase != PhasePlanPosted && unit.Phase != PhasePlanning {
		return nil, errors.NewLifecycleError("unit is not awaiting plan approval", errors.ErrInvalidTransition).
			WithSuffix(suffix).
			WithPhase(unit.Phase.String())
	}

	exists, verr := o.plans.Verify(suffix)
	switch {
	case verr == nil && exists:
		// Verified.
	case verr == nil && !exists:
		return nil, errors.NewLifecycleError("no plan exists for unit", errors.ErrPlanNotFound).
			WithSuffix(suffix)
	case override:
		o.logger.WithUnit(suffix).Warn("plan verification inconclusive, proceeding on override",
			"error", verr)
	default:
		return nil, errors.Wrap(verr, "plan verification inconclusive (use override to proceed)")
	}

	builder, err := o.agents.Spawn(ctx, agent.Spec{
		Role:    agent.RoleBuilder,
		Suffix:  suffix,
		WorkDir: unit.WorkspacePath,
		Prompt:  fmt.Sprintf("Implement the approved plan for issue %d.", unit.IssueID),
	})
	if err != nil {
		return nil, err
	}

	unit.Phase = PhaseBuilding
	unit.Builder = builder
	unit.UpdatedAt = time.Now()
	if err := o.store.Put(unit); err != nil {
		return nil, err
	}

	o.logger.WithUnit(suffix).Info("plan approved, building")
	return unit, nil
}

// ReportPRCreated records the builder's "pull request open" report and the
// PR URL. Like every report it is informational: the unit sits in Review
// until the issue is explicitly approved.
func (o *Orchestrator) ReportPRCreated(suffix, url string) (*Unit, error) {
	unit, err := o.store.Get(suffix)
	if err != nil {
		return nil, err
	}

	switch unit.Phase {
	case PhaseBuilding:
		unit.Phase = PhaseReview
		unit.PRURL = url
		unit.UpdatedAt = time.Now()
		if err := o.store.Put(unit); err != nil {
			return nil, err
		}
		o.logger.WithUnit(suffix).Info("pull request reported, awaiting review", "url", url)
	case PhaseReview:
		// Repeated report; keep the freshest URL.
		if url != "" && url != unit.PRURL {
			unit.PRURL = url
			unit.UpdatedAt = time.Now()
			if err := o.store.Put(unit); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.NewLifecycleError("pull request report is only meaningful while building", errors.ErrInvalidTransition).
			WithSuffix(suffix).
			WithPhase(unit.Phase.String())
	}
	return unit, nil
}

// ApproveIssue is the explicit Review→Cleanup→Done command. The transition
// is refused entirely unless the PR is open, mergeable, and passing checks;
// a refusal leaves workspace, plan, and agents untouched. Once the merge
// lands, teardown proceeds step by step, logging rather than aborting on
// non-fatal failures, and frees the suffix.
func (o *Orchestrator) ApproveIssue(ctx context.Context, suffix string) (*Unit, error) {
	unit, err := o.store.Get(suffix)
	if err != nil {
		return nil, err
	}
	if unit.Phase != PhaseReview {
		return nil, errors.NewLifecycleError("unit is not in review", errors.ErrInvalidTransition).
			WithSuffix(suffix).
			WithPhase(unit.Phase.String())
	}

	status, err := o.checkpoint.Status(ctx, unit.Branch)
	if err != nil {
		return nil, err
	}
	if !status.Ready() {
		return nil, errors.NewLifecycleError(
			fmt.Sprintf("pull request not ready: state=%s mergeable=%t checks=%t",
				status.State, status.Mergeable, status.ChecksPassing),
			errors.ErrNotMergeable).
			WithSuffix(suffix).
			WithPhase(unit.Phase.String())
	}

	log := o.logger.WithUnit(suffix)

	// Project-specific cleanup runs before the merge. Its failure is
	// logged; a brittle hook must not strand the unit.
	if result, herr := o.hooks.Run(ctx, hooks.HookCleanup, unit.WorkspacePath); herr != nil {
		attrs := []any{"error", herr}
		if result != nil {
			attrs = append(attrs, "exit_code", result.ExitCode, "stderr", result.Stderr)
		}
		log.Warn("cleanup hook failed, continuing teardown", attrs...)
	}

	// The merge is the one teardown step that must succeed: a failure
	// here leaves the unit in Review with nothing torn down.
	if err := o.checkpoint.MergeSquash(ctx, unit.Branch); err != nil {
		return nil, err
	}

	unit.Phase = PhaseCleanup
	unit.UpdatedAt = time.Now()
	if err := o.store.Put(unit); err != nil {
		return nil, err
	}

	o.disposeAgent(ctx, log, unit.Builder)
	unit.Builder = nil
	o.disposeAgent(ctx, log, unit.Planner)
	unit.Planner = nil

	if _, err := o.plans.Delete(suffix); err != nil {
		log.Warn("plan delete failed, continuing teardown", "error", err)
	}

	// The PR is merged; whatever is left in the worktree is disposable.
	if _, err := o.workspaces.Remove(suffix, true); err != nil {
		if !errors.Is(err, errors.ErrWorkspaceNotFound) {
			log.Warn("workspace removal failed, continuing teardown", "error", err)
		}
	}
	// The branch landed upstream via the squash; drop the local copy so
	// the suffix really is free for reuse.
	if err := o.workspaces.DeleteBranch(unit.Branch); err != nil {
		log.Warn("branch deletion failed, continuing teardown",
			"branch", unit.Branch, "error", err)
	}

	unit.Phase = PhaseDone
	unit.UpdatedAt = time.Now()
	if err := o.store.Put(unit); err != nil {
		return nil, err
	}

	log.Info("issue complete, suffix freed")
	return unit, nil
}

// disposeAgent disposes one agent, treating absence as satisfied and any
// other failure as log-and-continue.
func (o *Orchestrator) disposeAgent(ctx context.Context, log *logging.Logger, handle *agent.Handle) {
	if handle == nil {
		return
	}
	archive, err := o.agents.Dispose(ctx, handle)
	if err != nil {
		log.Warn("agent dispose failed, continuing teardown",
			"session", handle.Session, "error", err)
		return
	}
	if archive.WasRunning {
		log.Info("agent disposed", "session", handle.Session, "archive", archive.Path)
	} else {
		log.Debug("agent already gone", "session", handle.Session)
	}
}

// List returns every known unit, active and done, ordered by suffix.
func (o *Orchestrator) List() ([]*Unit, error) {
	return o.store.List()
}

// Status returns one unit.
func (o *Orchestrator) Status(suffix string) (*Unit, error) {
	return o.store.Get(suffix)
}
