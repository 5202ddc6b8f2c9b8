package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete drover configuration
type Config struct {
	Git     GitConfig     `mapstructure:"git"`
	Branch  BranchConfig  `mapstructure:"branch"`
	Agent   AgentConfig   `mapstructure:"agent"`
	PR      PRConfig      `mapstructure:"pr"`
	Ports   PortsConfig   `mapstructure:"ports"`
	Logging LoggingConfig `mapstructure:"logging"`
	Paths   PathsConfig   `mapstructure:"paths"`
}

// GitConfig controls repository-level behavior
type GitConfig struct {
	// Remote is the name of the remote the integration branch tracks (default: "origin")
	Remote string `mapstructure:"remote"`
	// DefaultBranch overrides default-branch resolution when set.
	// When empty (default), the remote HEAD is queried.
	DefaultBranch string `mapstructure:"default_branch"`
}

// BranchConfig controls branch naming conventions
type BranchConfig struct {
	// DefaultType is the work-type prefix used when none is given on the
	// command line (default: "feature")
	// Options: "feature", "fix", "chore", "docs", "refactor", "test"
	DefaultType string `mapstructure:"default_type"`
}

// AgentConfig controls worker-agent sessions
type AgentConfig struct {
	// Program is the worker agent executable launched in each tmux session (default: "claude")
	Program string `mapstructure:"program"`
	// ProgramArgs are extra arguments passed to the agent program
	ProgramArgs []string `mapstructure:"program_args"`
	// TmuxWidth is the width of the tmux pane
	TmuxWidth int `mapstructure:"tmux_width"`
	// TmuxHeight is the height of the tmux pane
	TmuxHeight int `mapstructure:"tmux_height"`
	// TmuxHistoryLimit is the number of lines of scrollback to keep in tmux (default: 50000)
	TmuxHistoryLimit int `mapstructure:"tmux_history_limit"`
}

// PRConfig controls pull-request checkpoint behavior
type PRConfig struct {
	// Reviewers configuration for automatic reviewer assignment
	Reviewers ReviewerConfig `mapstructure:"reviewers"`
	// Labels maps file path patterns to labels (glob patterns supported)
	Labels map[string][]string `mapstructure:"labels"`
}

// ReviewerConfig controls automatic reviewer assignment
type ReviewerConfig struct {
	// Default reviewers to always assign
	Default []string `mapstructure:"default"`
	// ByPath maps file path patterns to reviewers (glob patterns supported)
	ByPath map[string][]string `mapstructure:"by_path"`
}

// PortsConfig controls deterministic port derivation for downstream tooling.
// The derived port is base + issueID mod range; issue ids that coincide
// modulo the range collide, which is a documented limitation.
type PortsConfig struct {
	// Base is the first port in the derived range (default: 3000)
	Base int `mapstructure:"base"`
	// Range is the modulus applied to the issue id (default: 1000)
	Range int `mapstructure:"range"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// PathsConfig controls where drover stores data
type PathsConfig struct {
	// WorktreeDir is the directory where workspaces (git worktrees) are
	// created, one per work-unit suffix. If empty, defaults to "worktrees"
	// relative to the repository root. Can be absolute to store workspaces
	// outside the repository. Supports ~ for home directory expansion.
	WorktreeDir string `mapstructure:"worktree_dir"`

	// PlansDir is the directory where plan files are stored, one per
	// suffix. Defaults to {stateDir}/plans.
	PlansDir string `mapstructure:"plans_dir"`

	// StateDir is where drover keeps its own state (unit registry, logs,
	// agent archives). Defaults to ~/.drover.
	StateDir string `mapstructure:"state_dir"`

	// HooksDir is the project-relative directory searched for the optional
	// hook executables (default: ".drover/hooks").
	HooksDir string `mapstructure:"hooks_dir"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Git: GitConfig{
			Remote: "origin",
		},
		Branch: BranchConfig{
			DefaultType: "feature",
		},
		Agent: AgentConfig{
			Program:          "claude",
			TmuxWidth:        200,
			TmuxHeight:       50,
			TmuxHistoryLimit: 50000,
		},
		PR: PRConfig{},
		Ports: PortsConfig{
			Base:  3000,
			Range: 1000,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{
			WorktreeDir: "",
			PlansDir:    "",
			StateDir:    "",
			HooksDir:    ".drover/hooks",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("git.remote", defaults.Git.Remote)
	viper.SetDefault("git.default_branch", defaults.Git.DefaultBranch)

	viper.SetDefault("branch.default_type", defaults.Branch.DefaultType)

	viper.SetDefault("agent.program", defaults.Agent.Program)
	viper.SetDefault("agent.program_args", defaults.Agent.ProgramArgs)
	viper.SetDefault("agent.tmux_width", defaults.Agent.TmuxWidth)
	viper.SetDefault("agent.tmux_height", defaults.Agent.TmuxHeight)
	viper.SetDefault("agent.tmux_history_limit", defaults.Agent.TmuxHistoryLimit)

	viper.SetDefault("pr.reviewers.default", defaults.PR.Reviewers.Default)
	viper.SetDefault("pr.reviewers.by_path", defaults.PR.Reviewers.ByPath)
	viper.SetDefault("pr.labels", defaults.PR.Labels)

	viper.SetDefault("ports.base", defaults.Ports.Base)
	viper.SetDefault("ports.range", defaults.Ports.Range)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
	viper.SetDefault("paths.plans_dir", defaults.Paths.PlansDir)
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.hooks_dir", defaults.Paths.HooksDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "drover")
	}
	// Fall back to ~/.config/drover
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drover"
	}
	return filepath.Join(home, ".config", "drover")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory where drover keeps its own state.
// Honors paths.state_dir when set, otherwise ~/.drover.
func (c *Config) StateDir() string {
	if c.Paths.StateDir != "" {
		return expandHome(c.Paths.StateDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drover"
	}
	return filepath.Join(home, ".drover")
}

// PlansDir returns the plan store root.
// Honors paths.plans_dir when set, otherwise {stateDir}/plans.
func (c *Config) PlansDir() string {
	if c.Paths.PlansDir != "" {
		return expandHome(c.Paths.PlansDir)
	}
	return filepath.Join(c.StateDir(), "plans")
}

// WorktreeDir returns the workspace root for the given repository.
// Honors paths.worktree_dir when set (absolute or repo-relative),
// otherwise "worktrees" under the repository root.
func (c *Config) WorktreeDir(repoRoot string) string {
	dir := c.Paths.WorktreeDir
	if dir == "" {
		return filepath.Join(repoRoot, "worktrees")
	}
	dir = expandHome(dir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoRoot, dir)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(home, path[2:])
	}
	return path
}

// ValidWorkTypes returns the list of valid work-type branch prefixes
func ValidWorkTypes() []string {
	return []string{"feature", "fix", "chore", "docs", "refactor", "test"}
}

// IsValidWorkType checks if the given work type is valid
func IsValidWorkType(workType string) bool {
	for _, valid := range ValidWorkTypes() {
		if workType == valid {
			return true
		}
	}
	return false
}
