// Package cmd implements the drover command tree.
//
// Every command prints its result as flat key=value lines on stdout and
// exits with the operation's numeric result code, so calling scripts and
// worker agents can parse outcomes without scraping free text.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/gitcmd"
	"github.com/drover-sh/drover/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Workspace and lifecycle orchestration for issue work",
	Long: `Drover coordinates work on issues through isolated git worktrees:
each work unit gets its own workspace, branch, plan file, and worker-agent
sessions, progressing plan -> build -> review -> cleanup under explicit
operator approval at every gate.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var coded *exitError
		if errors.As(err, &coded) {
			return coded.code
		}
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/drover/config.yaml)")
	rootCmd.PersistentFlags().String("repo", "", "repository directory (default is the current directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DROVER")
	// Replace dots with underscores for nested keys in env vars,
	// e.g. DROVER_GIT_REMOTE for git.remote.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// exitError carries an operation's numeric result code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exit pairs an operation failure with its result code.
func exit(code int, err error) error {
	return &exitError{code: code, err: err}
}

// printKV writes one result field as a key=value line.
func printKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s=%v\n", key, value)
}

// repoRoot resolves the repository root from --repo or the working
// directory.
func repoRoot(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("repo")
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve working directory")
		}
	}
	return gitcmd.FindGitRoot(dir)
}

// newLogger builds the configured logger. Logging failures never block an
// operation; they degrade to a no-op logger.
func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(cfg.StateDir(), cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: logging disabled:", err)
		return logging.NopLogger()
	}
	return logger
}
