package cmd

import (
	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fast-forward the integration branch from the remote",
	Long: `Sync fetches the remote's default branch and fast-forwards the local copy.
It never merges, rebases, or discards commits: a diverged branch is reported
with both commit lists and suggested remedies, leaving the repository
untouched.

Exit codes: 0 success, 1 uncommitted changes, 2 no default branch,
3 diverged, 4 fetch failed.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("remote", "", "remote to sync from (default from config)")
	syncCmd.Flags().String("branch", "", "integration branch override (default is the remote HEAD)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}

	remote, _ := cmd.Flags().GetString("remote")
	if remote == "" {
		remote = cfg.Git.Remote
	}

	s, err := syncer.New(root, remote, logger)
	if err != nil {
		return err
	}
	if branch, _ := cmd.Flags().GetString("branch"); branch != "" {
		s.DefaultBranch = branch
	} else if cfg.Git.DefaultBranch != "" {
		s.DefaultBranch = cfg.Git.DefaultBranch
	}

	result, code, serr := s.Sync()
	printKV(out, "result", code)
	if result.DefaultBranch != "" {
		printKV(out, "default_branch", result.DefaultBranch)
	}
	if result.OriginalBranch != "" {
		printKV(out, "original_branch", result.OriginalBranch)
	}

	if serr != nil {
		if code == syncer.CodeDiverged {
			printKV(out, "local_only", len(result.LocalCommits))
			printKV(out, "remote_only", len(result.RemoteCommits))
			for _, c := range result.LocalCommits {
				printKV(out, "local_commit", c)
			}
			for _, c := range result.RemoteCommits {
				printKV(out, "remote_commit", c)
			}
			for _, remedy := range syncer.DivergenceRemedies(remote, result.DefaultBranch) {
				printKV(out, "remedy", remedy)
			}
		}
		return exit(int(code), serr)
	}

	printKV(out, "commits_pulled", result.CommitsPulled)
	if result.LatestCommit != "" {
		printKV(out, "latest_commit", result.LatestCommit)
	}
	return nil
}
