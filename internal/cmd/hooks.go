package cmd

import (
	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/hooks"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage project lifecycle hooks",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the hooks installed under " + hooks.HooksDir,
	Args:  cobra.NoArgs,
	RunE:  runHooksList,
}

var hooksRunCmd = &cobra.Command{
	Use:   "run <hook>",
	Short: "Run one hook in the repository root",
	Args:  cobra.ExactArgs(1),
	RunE:  runHooksRun,
}

func init() {
	hooksCmd.AddCommand(hooksListCmd)
	hooksCmd.AddCommand(hooksRunCmd)
	rootCmd.AddCommand(hooksCmd)
}

func runHooksList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}

	installed := hooks.Resolve(root, logger).Installed()
	printKV(out, "count", len(installed))
	for _, hook := range installed {
		printKV(out, "hook", hook)
	}
	return nil
}

func runHooksRun(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}

	result, err := hooks.Resolve(root, logger).Run(cmd.Context(), hooks.Hook(args[0]), root)
	if result != nil {
		printKV(out, "skipped", result.Skipped)
		printKV(out, "exit_code", result.ExitCode)
		if result.Stdout != "" {
			cmd.OutOrStdout().Write([]byte(result.Stdout))
		}
		if result.Stderr != "" {
			cmd.ErrOrStderr().Write([]byte(result.Stderr))
		}
	}
	if err != nil {
		code := 1
		if result != nil && result.ExitCode > 0 {
			code = result.ExitCode
		}
		return exit(code, err)
	}
	return nil
}
