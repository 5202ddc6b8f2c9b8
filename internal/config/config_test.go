package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default() config should validate, got: %v", ValidationErrors(errs))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty remote",
			mutate:    func(c *Config) { c.Git.Remote = "" },
			wantField: "git.remote",
		},
		{
			name:      "unknown work type",
			mutate:    func(c *Config) { c.Branch.DefaultType = "epic" },
			wantField: "branch.default_type",
		},
		{
			name:      "empty agent program",
			mutate:    func(c *Config) { c.Agent.Program = "" },
			wantField: "agent.program",
		},
		{
			name:      "zero tmux width",
			mutate:    func(c *Config) { c.Agent.TmuxWidth = 0 },
			wantField: "agent.tmux_width",
		},
		{
			name:      "bad reviewer glob",
			mutate:    func(c *Config) { c.PR.Reviewers.ByPath = map[string][]string{"[": {"alice"}} },
			wantField: "pr.reviewers.by_path",
		},
		{
			name:      "privileged port base",
			mutate:    func(c *Config) { c.Ports.Base = 80 },
			wantField: "ports.base",
		},
		{
			name:      "zero port range",
			mutate:    func(c *Config) { c.Ports.Range = 0 },
			wantField: "ports.range",
		},
		{
			name:      "port range overflow",
			mutate:    func(c *Config) { c.Ports.Base = 65000; c.Ports.Range = 1000 },
			wantField: "ports.range",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}

			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %s, got: %v", tt.wantField, ValidationErrors(errs))
			}
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("expected count prefix, got: %s", msg)
	}
}

func TestWorktreeDir(t *testing.T) {
	repo := "/repo"

	cfg := Default()
	if got := cfg.WorktreeDir(repo); got != filepath.Join(repo, "worktrees") {
		t.Errorf("WorktreeDir() = %s, want %s", got, filepath.Join(repo, "worktrees"))
	}

	cfg.Paths.WorktreeDir = "/mnt/fast/worktrees"
	if got := cfg.WorktreeDir(repo); got != "/mnt/fast/worktrees" {
		t.Errorf("WorktreeDir() = %s, want absolute override", got)
	}

	cfg.Paths.WorktreeDir = ".drover/worktrees"
	if got := cfg.WorktreeDir(repo); got != filepath.Join(repo, ".drover", "worktrees") {
		t.Errorf("WorktreeDir() = %s, want repo-relative override", got)
	}
}

func TestPlansDirDefaultsUnderStateDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.StateDir = "/var/lib/drover"
	if got := cfg.PlansDir(); got != "/var/lib/drover/plans" {
		t.Errorf("PlansDir() = %s, want /var/lib/drover/plans", got)
	}

	cfg.Paths.PlansDir = "/srv/plans"
	if got := cfg.PlansDir(); got != "/srv/plans" {
		t.Errorf("PlansDir() = %s, want override", got)
	}
}

func TestIsValidWorkType(t *testing.T) {
	for _, wt := range ValidWorkTypes() {
		if !IsValidWorkType(wt) {
			t.Errorf("IsValidWorkType(%q) = false, want true", wt)
		}
	}
	if IsValidWorkType("epic") {
		t.Error("IsValidWorkType(\"epic\") = true, want false")
	}
}
