package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage issue workspaces (isolated git worktrees)",
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <suffix>",
	Short: "Create a workspace for a suffix",
	Long: `Create provisions an isolated worktree at <worktree-dir>/issue-<suffix> on
a fresh branch <type>/issue-<suffix> rooted at the remote's default branch.

Exit codes: 0 success, 1 already exists, 2 no default branch, 3 fetch
failed, 4 create failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspaceCreate,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed workspaces",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceList,
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "remove <suffix>",
	Short: "Remove a workspace",
	Long: `Remove tears down a workspace's worktree. A dirty tree blocks removal
unless --force is set, and nothing is changed.

Exit codes: 0 success, 1 not found, 3 uncommitted changes, 4 remove failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspaceRemove,
}

func init() {
	workspaceCreateCmd.Flags().String("type", "", "work type branch prefix (feature, fix, chore, docs, refactor, test)")
	workspaceCreateCmd.Flags().String("base", "", "base branch override (default is the remote HEAD)")
	workspaceRemoveCmd.Flags().Bool("force", false, "remove even with uncommitted changes")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceRemoveCmd)
	rootCmd.AddCommand(workspaceCmd)
}

// newWorkspaceManager builds the manager for the repository the command
// targets.
func newWorkspaceManager(cmd *cobra.Command, cfg *config.Config) (*workspace.Manager, func(), error) {
	root, err := repoRoot(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	m, err := workspace.New(root, cfg.WorktreeDir(root), cfg.Git.Remote, logger)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}
	return m, func() { logger.Close() }, nil
}

func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	m, done, err := newWorkspaceManager(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	workType, _ := cmd.Flags().GetString("type")
	if workType == "" {
		workType = cfg.Branch.DefaultType
	}
	if !config.IsValidWorkType(workType) {
		return errors.NewValidationError("unknown work type").
			WithField("type").
			WithValue(workType)
	}
	base, _ := cmd.Flags().GetString("base")

	created, code, cerr := m.Create(args[0], workspace.CreateOptions{
		WorkType:   workType,
		BaseBranch: base,
	})
	printKV(out, "result", code)
	if cerr != nil {
		return exit(int(code), cerr)
	}

	printKV(out, "suffix", created.Suffix)
	printKV(out, "path", created.Path)
	printKV(out, "branch", created.Branch)
	printKV(out, "base_branch", created.BaseBranch)
	return nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	m, done, err := newWorkspaceManager(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	infos, err := m.List()
	if err != nil {
		return err
	}

	printKV(out, "count", len(infos))
	for _, info := range infos {
		printKV(out, "workspace", formatWorkspace(info))
	}
	return nil
}

// formatWorkspace renders one listing record as space-separated key=value
// pairs.
func formatWorkspace(info workspace.Info) string {
	fields := []string{
		"suffix=" + info.Suffix,
		"branch=" + info.Branch,
		"path=" + info.Path,
		"clean=" + strconv.FormatBool(info.Clean),
		"modified=" + strconv.Itoa(info.Modified),
		"last_commit=" + info.LastCommit,
		"ahead=" + strconv.Itoa(info.Ahead),
	}
	return strings.Join(fields, " ")
}

func runWorkspaceRemove(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	m, done, err := newWorkspaceManager(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	force, _ := cmd.Flags().GetBool("force")

	code, rerr := m.Remove(args[0], force)
	printKV(out, "result", code)
	if rerr != nil {
		var wsErr *errors.WorkspaceError
		if errors.As(rerr, &wsErr) {
			for _, f := range wsErr.DirtyFiles {
				printKV(out, "dirty_file", f)
			}
		}
		return exit(int(code), rerr)
	}
	return nil
}
