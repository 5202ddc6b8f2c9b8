package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/agent"
	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/gitcmd"
	"github.com/drover-sh/drover/internal/hooks"
	"github.com/drover-sh/drover/internal/lifecycle"
	"github.com/drover-sh/drover/internal/planstore"
	"github.com/drover-sh/drover/internal/pr"
	"github.com/drover-sh/drover/internal/workspace"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Drive a work unit through its lifecycle",
	Long: `The issue commands move a work unit through plan, build, review, and
cleanup. Agent reports (plan-posted, pr-created) record status and never
advance past their marker; only the explicit approve commands cross a gate.`,
}

var issueStartCmd = &cobra.Command{
	Use:   "start <issue-id>",
	Short: "Create a unit's workspace and spawn its planner",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueStart,
}

var issuePlanPostedCmd = &cobra.Command{
	Use:   "plan-posted <suffix>",
	Short: "Record the planner's plan-written report",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuePlanPosted,
}

var issueApprovePlanCmd = &cobra.Command{
	Use:   "approve-plan <suffix>",
	Short: "Approve the plan and spawn the builder",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueApprovePlan,
}

var issuePRCreatedCmd = &cobra.Command{
	Use:   "pr-created <suffix>",
	Short: "Record the builder's pull-request report",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuePRCreated,
}

var issueApproveCmd = &cobra.Command{
	Use:   "approve <suffix>",
	Short: "Merge the pull request and tear the unit down",
	Long: `Approve verifies the pull request is open, mergeable, and passing
checks; anything less refuses the approval and changes nothing. After the
squash merge lands, the unit's agents, plan, workspace, and branch are torn
down and the suffix is freed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIssueApprove,
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work units",
	Args:  cobra.NoArgs,
	RunE:  runIssueList,
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <suffix>",
	Short: "Show one work unit",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueStatus,
}

var issuePortCmd = &cobra.Command{
	Use:   "port <issue-id>",
	Short: "Print the unit's deterministic dev-server port",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuePort,
}

var issueWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the plans directory and record plan-posted reports",
	Long: `Watch observes the plans directory and records a plan-posted report
for every plan file a planner writes, so planners do not need to invoke
plan-posted themselves. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runIssueWatch,
}

func init() {
	issueStartCmd.Flags().String("stage", "", "optional stage label appended to the suffix")
	issueStartCmd.Flags().String("type", "", "work type branch prefix (default from config)")
	issueStartCmd.Flags().String("prompt", "", "planner prompt override")
	issueApprovePlanCmd.Flags().Bool("override", false, "proceed even when plan verification is inconclusive")
	issuePRCreatedCmd.Flags().String("url", "", "pull request URL")
	_ = issuePRCreatedCmd.MarkFlagRequired("url")

	issueCmd.AddCommand(issueStartCmd)
	issueCmd.AddCommand(issuePlanPostedCmd)
	issueCmd.AddCommand(issueApprovePlanCmd)
	issueCmd.AddCommand(issuePRCreatedCmd)
	issueCmd.AddCommand(issueApproveCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issuePortCmd)
	issueCmd.AddCommand(issueWatchCmd)
	rootCmd.AddCommand(issueCmd)
}

// newOrchestrator assembles the lifecycle orchestrator and all of its
// collaborators for the repository the command targets.
func newOrchestrator(cmd *cobra.Command, cfg *config.Config) (*lifecycle.Orchestrator, func(), error) {
	root, err := repoRoot(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)

	manager, err := workspace.New(root, cfg.WorktreeDir(root), cfg.Git.Remote, logger)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	plans := planstore.NewFileStore(cfg.PlansDir(), logger)

	spawner := agent.NewTmuxSpawner(agent.TmuxOptions{
		Program:      cfg.Agent.Program,
		ProgramArgs:  cfg.Agent.ProgramArgs,
		Width:        cfg.Agent.TmuxWidth,
		Height:       cfg.Agent.TmuxHeight,
		HistoryLimit: cfg.Agent.TmuxHistoryLimit,
		ArchiveDir:   filepath.Join(cfg.StateDir(), "archive"),
	}, logger)

	orch := lifecycle.New(
		lifecycle.NewStore(cfg.StateDir()),
		manager,
		plans,
		spawner,
		hooks.Resolve(root, logger),
		pr.NewGHCheckpoint(root, logger),
		logger,
	)
	return orch, func() { logger.Close() }, nil
}

func parseIssueID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("issue id must be a positive integer").
			WithField("issue-id").
			WithValue(arg)
	}
	return id, nil
}

func printUnit(cmd *cobra.Command, unit *lifecycle.Unit) {
	out := cmd.OutOrStdout()
	printKV(out, "suffix", unit.Suffix)
	printKV(out, "issue", unit.IssueID)
	printKV(out, "phase", unit.Phase)
	if unit.Stage != "" {
		printKV(out, "stage", unit.Stage)
	}
	if unit.Branch != "" {
		printKV(out, "branch", unit.Branch)
	}
	if unit.WorkspacePath != "" {
		printKV(out, "workspace", unit.WorkspacePath)
	}
	if unit.PRURL != "" {
		printKV(out, "pr_url", unit.PRURL)
	}
	if unit.Planner != nil {
		printKV(out, "planner_session", unit.Planner.Session)
	}
	if unit.Builder != nil {
		printKV(out, "builder_session", unit.Builder.Session)
	}
}

func runIssueStart(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}

	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	stage, _ := cmd.Flags().GetString("stage")
	workType, _ := cmd.Flags().GetString("type")
	if workType == "" {
		workType = cfg.Branch.DefaultType
	}
	if !config.IsValidWorkType(workType) {
		return errors.NewValidationError("unknown work type").
			WithField("type").
			WithValue(workType)
	}
	prompt, _ := cmd.Flags().GetString("prompt")

	unit, err := orch.StartPlanning(cmd.Context(), id, lifecycle.StartOptions{
		Stage:    stage,
		WorkType: workType,
		Prompt:   prompt,
	})
	if err != nil {
		return err
	}
	printUnit(cmd, unit)
	return nil
}

func runIssuePlanPosted(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	unit, err := orch.ReportPlanPosted(args[0])
	if err != nil {
		return err
	}
	printUnit(cmd, unit)
	return nil
}

func runIssueApprovePlan(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	override, _ := cmd.Flags().GetBool("override")
	unit, err := orch.ApprovePlan(cmd.Context(), args[0], override)
	if err != nil {
		return err
	}
	printUnit(cmd, unit)
	return nil
}

func runIssuePRCreated(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	url, _ := cmd.Flags().GetString("url")
	unit, err := orch.ReportPRCreated(args[0], url)
	if err != nil {
		return err
	}
	printUnit(cmd, unit)
	suggestReviewers(cmd, cfg, unit)
	return nil
}

// suggestReviewers prints the reviewer and label suggestions for the unit's
// change set. Suggestions are advisory output, never a gate: any failure
// computing them is silent.
func suggestReviewers(cmd *cobra.Command, cfg *config.Config, unit *lifecycle.Unit) {
	if len(cfg.PR.Reviewers.Default) == 0 &&
		len(cfg.PR.Reviewers.ByPath) == 0 && len(cfg.PR.Labels) == 0 {
		return
	}
	rules, err := pr.NewReviewers(cfg.PR.Reviewers.Default, cfg.PR.Reviewers.ByPath, cfg.PR.Labels)
	if err != nil {
		return
	}

	root, err := repoRoot(cmd)
	if err != nil {
		return
	}
	git, err := gitcmd.New(root)
	if err != nil {
		return
	}
	base := git.SymbolicRemoteHead(cfg.Git.Remote)
	if base == "" {
		base = git.QueryRemoteHead(cfg.Git.Remote)
	}
	if base == "" {
		return
	}
	files, err := git.ChangedFiles(cfg.Git.Remote+"/"+base, unit.Branch)
	if err != nil {
		return
	}

	out := cmd.OutOrStdout()
	for _, reviewer := range rules.ForFiles(files) {
		printKV(out, "reviewer", reviewer)
	}
	for _, label := range rules.LabelsForFiles(files) {
		printKV(out, "label", label)
	}
}

func runIssueApprove(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	unit, err := orch.ApproveIssue(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printUnit(cmd, unit)
	return nil
}

func runIssueList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	units, err := orch.List()
	if err != nil {
		return err
	}
	printKV(out, "count", len(units))
	for _, unit := range units {
		printKV(out, "unit", unit.Suffix+" phase="+unit.Phase.String())
	}
	return nil
}

func runIssueStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	unit, err := orch.Status(args[0])
	if err != nil {
		return err
	}
	printUnit(cmd, unit)
	return nil
}

func runIssueWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, done, err := newOrchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	if err := os.MkdirAll(cfg.PlansDir(), 0755); err != nil {
		return errors.Wrap(err, "failed to create plans directory")
	}
	logger := newLogger(cfg)
	defer logger.Close()
	watcher, err := planstore.NewWatcher(cfg.PlansDir(), logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printKV(cmd.OutOrStdout(), "watching", cfg.PlansDir())
	return orch.WatchPlanEvents(ctx, watcher.Events())
}

func runIssuePort(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}
	printKV(cmd.OutOrStdout(), "port", lifecycle.Port(id, cfg.Ports.Base, cfg.Ports.Range))
	return nil
}
