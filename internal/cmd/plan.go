package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/planstore"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage per-unit plan documents",
}

var planWriteCmd = &cobra.Command{
	Use:   "write <suffix>",
	Short: "Write a unit's plan atomically",
	Long: `Write stores the plan document for a suffix. The content comes from
--file, or from stdin when --file is omitted. Writes are atomic: readers
never observe a partial plan.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanWrite,
}

var planReadCmd = &cobra.Command{
	Use:   "read <suffix>",
	Short: "Print a unit's plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanRead,
}

var planVerifyCmd = &cobra.Command{
	Use:   "verify <suffix>",
	Short: "Check whether a plan exists",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanVerify,
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <suffix>",
	Short: "Delete a unit's plan (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanDelete,
}

func init() {
	planWriteCmd.Flags().String("file", "", "read plan content from this file instead of stdin")

	planCmd.AddCommand(planWriteCmd)
	planCmd.AddCommand(planReadCmd)
	planCmd.AddCommand(planVerifyCmd)
	planCmd.AddCommand(planDeleteCmd)
	rootCmd.AddCommand(planCmd)
}

func newPlanStore(cfg *config.Config) (*planstore.FileStore, func()) {
	logger := newLogger(cfg)
	return planstore.NewFileStore(cfg.PlansDir(), logger), func() { logger.Close() }
}

func runPlanWrite(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	store, done := newPlanStore(cfg)
	defer done()

	var content []byte
	var err error
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		content, err = os.ReadFile(file)
	} else {
		content, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return errors.Wrap(err, "failed to read plan content")
	}

	if err := store.Write(args[0], content); err != nil {
		return err
	}
	printKV(out, "result", "success")
	printKV(out, "path", store.PlanPath(args[0]))
	return nil
}

func runPlanRead(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	store, done := newPlanStore(cfg)
	defer done()

	content, err := store.Read(args[0])
	if err != nil {
		if errors.Is(err, errors.ErrPlanNotFound) {
			return exit(int(planstore.CodeNotFound), err)
		}
		return err
	}
	_, err = cmd.OutOrStdout().Write(content)
	return err
}

func runPlanVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	store, done := newPlanStore(cfg)
	defer done()

	exists, err := store.Verify(args[0])
	if err != nil {
		return err
	}
	printKV(out, "exists", exists)
	if !exists {
		return exit(int(planstore.CodeNotFound),
			errors.NewNotFoundError("plan", args[0]).WithCause(errors.ErrPlanNotFound))
	}
	printKV(out, "path", store.PlanPath(args[0]))
	return nil
}

func runPlanDelete(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	store, done := newPlanStore(cfg)
	defer done()

	code, err := store.Delete(args[0])
	printKV(out, "result", code)
	if err != nil {
		return exit(int(code), err)
	}
	return nil
}
