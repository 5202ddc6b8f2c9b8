package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/repostate"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report the repository's working-copy state",
	Long: `Inspect reports a read-only snapshot of the repository: current branch,
staged/unstaged/untracked counts, conflicted files, and divergence from the
upstream tracking branch.

Exit codes: 0 clean, 1 dirty, 2 conflicted, 3 not a repository.`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("fsck", false, "also run a deep integrity check (slow)")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	root, err := repoRoot(cmd)
	if err != nil {
		printKV(out, "result", repostate.CodeNotARepo)
		return exit(int(repostate.CodeNotARepo), err)
	}

	state, code, err := repostate.Inspect(root)
	printKV(out, "result", code)
	printKV(out, "is_repo", state.IsRepo)
	if err != nil {
		return exit(int(code), err)
	}

	printKV(out, "branch", state.Branch)
	printKV(out, "detached", state.Detached)
	printKV(out, "clean", state.Clean)
	printKV(out, "staged", state.Staged)
	printKV(out, "unstaged", state.Unstaged)
	printKV(out, "untracked", state.Untracked)
	printKV(out, "conflicts", state.Conflicts)
	if len(state.ConflictedFiles) > 0 {
		printKV(out, "conflicted_files", strings.Join(state.ConflictedFiles, ","))
	}
	printKV(out, "ahead", state.Ahead)
	printKV(out, "behind", state.Behind)

	if fsck, _ := cmd.Flags().GetBool("fsck"); fsck {
		_, healthy, ferr := repostate.Fsck(root)
		if ferr != nil {
			return exit(int(code), ferr)
		}
		printKV(out, "fsck_healthy", healthy)
	}

	if code != repostate.CodeClean {
		return exit(int(code), errors.New("working copy is "+code.String()))
	}
	return nil
}
