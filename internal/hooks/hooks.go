// Package hooks runs the optional per-project lifecycle hooks.
//
// A project opts into behavior by placing executables under
// .drover/hooks/<name>. Six hook names are recognized; every absent hook is
// a no-op. Hooks are resolved once at startup, so adding a hook mid-run
// takes effect on the next invocation.
package hooks

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/logging"
)

// Hook names a lifecycle extension point.
type Hook string

const (
	// HookIssues lists or selects issues to work on.
	HookIssues Hook = "issues"
	// HookSetup prepares a fresh workspace (deps, env files, services).
	HookSetup Hook = "setup"
	// HookBuild builds the project.
	HookBuild Hook = "build"
	// HookLint lints the project.
	HookLint Hook = "lint"
	// HookTest runs the project's tests.
	HookTest Hook = "test"
	// HookCleanup runs before workspace teardown. A failure here is
	// logged; generic teardown proceeds regardless.
	HookCleanup Hook = "cleanup"
)

// All lists every recognized hook in lifecycle order.
var All = []Hook{HookIssues, HookSetup, HookBuild, HookLint, HookTest, HookCleanup}

// HooksDir is the project-relative directory hooks live in.
const HooksDir = ".drover/hooks"

// Result describes one hook invocation.
type Result struct {
	Hook    Hook
	Skipped bool // No executable installed for this hook
	Stdout  string
	Stderr  string
	// ExitCode is meaningful only when Skipped is false and Err is nil
	// or an exec.ExitError.
	ExitCode int
}

// Runner executes hooks in a working directory.
type Runner interface {
	// Run executes the named hook with workDir as its working directory.
	// An uninstalled hook returns a skipped result and no error.
	Run(ctx context.Context, hook Hook, workDir string) (*Result, error)

	// Installed reports the hooks that resolved to executables.
	Installed() []Hook
}

// ExecRunner runs hooks as external executables resolved at construction.
type ExecRunner struct {
	paths  map[Hook]string
	logger *logging.Logger
}

// Resolve scans <projectDir>/.drover/hooks once and binds each recognized
// hook name to its executable. Non-executable files are ignored.
func Resolve(projectDir string, logger *logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NopLogger()
	}

	paths := make(map[Hook]string)
	dir := filepath.Join(projectDir, HooksDir)
	for _, hook := range All {
		path := filepath.Join(dir, string(hook))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0111 == 0 {
			logger.Warn("hook file is not executable, ignoring", "hook", string(hook), "path", path)
			continue
		}
		paths[hook] = path
	}

	return &ExecRunner{paths: paths, logger: logger}
}

// Installed returns the resolved hooks in lifecycle order.
func (r *ExecRunner) Installed() []Hook {
	var installed []Hook
	for _, hook := range All {
		if _, ok := r.paths[hook]; ok {
			installed = append(installed, hook)
		}
	}
	return installed
}

// Run executes the hook, capturing stdout and stderr. A non-zero exit is
// returned as an error alongside the captured output.
func (r *ExecRunner) Run(ctx context.Context, hook Hook, workDir string) (*Result, error) {
	path, ok := r.paths[hook]
	if !ok {
		return &Result{Hook: hook, Skipped: true}, nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Hook:   hook,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		r.logger.Warn("hook failed",
			"hook", string(hook), "workdir", workDir,
			"exit_code", result.ExitCode, "stderr", result.Stderr)
		return result, errors.Wrapf(err, "hook %s failed", hook)
	}

	r.logger.Debug("hook completed", "hook", string(hook), "workdir", workDir)
	return result, nil
}

// NopRunner skips every hook. Used when no project directory is involved.
type NopRunner struct{}

// Run reports the hook as skipped.
func (NopRunner) Run(_ context.Context, hook Hook, _ string) (*Result, error) {
	return &Result{Hook: hook, Skipped: true}, nil
}

// Installed returns nil.
func (NopRunner) Installed() []Hook { return nil }
