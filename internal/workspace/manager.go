// Package workspace manages isolated git worktrees for issue work.
//
// Every active issue gets exactly one workspace: a worktree at
// <worktreesDir>/issue-<suffix> on a fresh branch <workType>/issue-<suffix>
// rooted at the remote's default branch. The manager owns creation, listing,
// and removal; it never commits, merges, or pushes.
package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/gitcmd"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/repostate"
)

// CreateCode classifies a create outcome for script consumption.
type CreateCode int

const (
	// CreateOK means the workspace was provisioned.
	CreateOK CreateCode = 0
	// CreateAlreadyExists means a workspace for the suffix already exists.
	CreateAlreadyExists CreateCode = 1
	// CreateNoDefaultBranch means no base branch could be resolved.
	CreateNoDefaultBranch CreateCode = 2
	// CreateFetchFailed means the base branch could not be fetched.
	CreateFetchFailed CreateCode = 3
	// CreateFailed means worktree creation failed, most commonly a branch
	// name collision.
	CreateFailed CreateCode = 4
)

// String returns the script-facing name of the code.
func (c CreateCode) String() string {
	switch c {
	case CreateOK:
		return "success"
	case CreateAlreadyExists:
		return "already_exists"
	case CreateNoDefaultBranch:
		return "no_default_branch"
	case CreateFetchFailed:
		return "fetch_failed"
	case CreateFailed:
		return "create_failed"
	default:
		return "unknown"
	}
}

// RemoveCode classifies a remove outcome for script consumption.
type RemoveCode int

const (
	// RemoveOK means the workspace was removed and verified absent.
	RemoveOK RemoveCode = 0
	// RemoveNotFound means no workspace exists for the suffix.
	RemoveNotFound RemoveCode = 1
	// RemoveUncommittedChanges means a dirty tree blocked a non-forced
	// removal. Nothing was changed.
	RemoveUncommittedChanges RemoveCode = 3
	// RemoveFailed means the worktree could not be removed or is still
	// present after removal.
	RemoveFailed RemoveCode = 4
)

// String returns the script-facing name of the code.
func (c RemoveCode) String() string {
	switch c {
	case RemoveOK:
		return "success"
	case RemoveNotFound:
		return "not_found"
	case RemoveUncommittedChanges:
		return "uncommitted_changes"
	case RemoveFailed:
		return "remove_failed"
	default:
		return "unknown"
	}
}

var suffixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidSuffix reports whether s is usable as a workspace suffix.
func ValidSuffix(s string) bool {
	return suffixPattern.MatchString(s)
}

// Info describes one managed workspace.
type Info struct {
	Suffix     string
	Path       string
	Branch     string
	Clean      bool
	Modified   int
	LastCommit string
	Ahead      int
}

// CreateOptions control workspace creation.
type CreateOptions struct {
	// WorkType is the branch prefix: feature, fix, chore, docs, refactor,
	// or test. Empty means feature.
	WorkType string
	// BaseBranch overrides default-branch resolution when non-empty.
	BaseBranch string
}

// Created describes a freshly created workspace.
type Created struct {
	Suffix     string
	Path       string
	Branch     string
	BaseBranch string
}

// Manager creates, lists, and removes issue workspaces for one repository.
type Manager struct {
	git          *gitcmd.Git
	worktreesDir string
	remote       string

	logger *logging.Logger
}

// New creates a Manager for the repository containing dir. Worktrees are
// placed under worktreesDir.
func New(dir, worktreesDir, remote string, logger *logging.Logger) (*Manager, error) {
	git, err := gitcmd.New(dir)
	if err != nil {
		return nil, err
	}
	return NewWithGit(git, worktreesDir, remote, logger), nil
}

// NewWithGit creates a Manager over an existing git runner.
func NewWithGit(git *gitcmd.Git, worktreesDir, remote string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{git: git, worktreesDir: worktreesDir, remote: remote, logger: logger}
}

// Path returns the worktree path for a suffix.
func (m *Manager) Path(suffix string) string {
	return filepath.Join(m.worktreesDir, "issue-"+suffix)
}

// BranchName returns the branch name for a suffix and work type.
func BranchName(workType, suffix string) string {
	if workType == "" {
		workType = "feature"
	}
	return workType + "/issue-" + suffix
}

// Exists reports whether a workspace for the suffix is registered.
func (m *Manager) Exists(suffix string) (bool, error) {
	entries, err := m.git.WorktreeList()
	if err != nil {
		return false, err
	}
	path := m.Path(suffix)
	for _, e := range entries {
		if e.Path == path {
			return true, nil
		}
	}
	return false, nil
}

// Create provisions a workspace for the suffix: a new worktree on a new
// branch rooted at the remote's default branch (or opts.BaseBranch). An
// existing workspace for the same suffix is an error with no side effects.
func (m *Manager) Create(suffix string, opts CreateOptions) (*Created, CreateCode, error) {
	if !ValidSuffix(suffix) {
		return nil, CreateFailed,
			errors.NewValidationError("suffix must match [a-z0-9-] and start alphanumeric").
				WithField("suffix").
				WithValue(suffix)
	}

	exists, err := m.Exists(suffix)
	if err != nil {
		return nil, CreateFailed, err
	}
	if exists {
		return nil, CreateAlreadyExists,
			errors.NewWorkspaceError("workspace already exists", errors.ErrWorkspaceExists).
				WithSuffix(suffix).
				WithPath(m.Path(suffix))
	}

	base := opts.BaseBranch
	if base == "" {
		base = m.git.SymbolicRemoteHead(m.remote)
		if base == "" {
			base = m.git.QueryRemoteHead(m.remote)
		}
		if base == "" {
			return nil, CreateNoDefaultBranch,
				errors.NewWorkspaceError("could not resolve base branch", errors.ErrNoDefaultBranch).
					WithSuffix(suffix)
		}
	}

	if err := m.git.Fetch(m.remote, base); err != nil {
		return nil, CreateFetchFailed, err
	}

	branch := BranchName(opts.WorkType, suffix)
	path := m.Path(suffix)
	startRef := m.remote + "/" + base

	if err := os.MkdirAll(m.worktreesDir, 0755); err != nil {
		return nil, CreateFailed, errors.Wrap(err, "failed to create worktrees directory")
	}

	if err := m.git.WorktreeAdd(path, branch, startRef); err != nil {
		if errors.Is(err, errors.ErrBranchExists) {
			return nil, CreateFailed,
				errors.NewWorkspaceError("branch already exists: "+branch, err).
					WithSuffix(suffix)
		}
		return nil, CreateFailed, err
	}

	m.logger.Info("workspace created",
		"suffix", suffix, "branch", branch, "path", path, "base", base)

	return &Created{
		Suffix:     suffix,
		Path:       path,
		Branch:     branch,
		BaseBranch: base,
	}, CreateOK, nil
}

// List returns all managed workspaces, excluding the primary checkout.
// Worktrees outside worktreesDir are not drover's and are not listed.
func (m *Manager) List() ([]Info, error) {
	entries, err := m.git.WorktreeList()
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, e := range entries {
		if e.Path == m.git.Dir() {
			continue
		}
		rel, err := filepath.Rel(m.worktreesDir, e.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if !strings.HasPrefix(rel, "issue-") {
			continue
		}

		info := Info{
			Suffix: strings.TrimPrefix(rel, "issue-"),
			Path:   e.Path,
			Branch: e.Branch,
		}

		wt := m.git.At(e.Path)
		if state, _, err := repostate.InspectWith(wt); err == nil {
			// Clean must agree with the removal gate: any porcelain
			// entry, untracked files included, blocks a non-forced
			// remove, so it marks the workspace dirty here too.
			info.Modified = state.Staged + state.Unstaged + state.Untracked + state.Conflicts
			info.Clean = info.Modified == 0
			info.Ahead = state.Ahead
		}
		info.LastCommit, _ = wt.LastCommit()

		infos = append(infos, info)
	}
	return infos, nil
}

// Get returns the workspace for a suffix.
func (m *Manager) Get(suffix string) (*Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Suffix == suffix {
			return &infos[i], nil
		}
	}
	return nil, errors.NewWorkspaceError("workspace not found", errors.ErrWorkspaceNotFound).
		WithSuffix(suffix).
		WithPath(m.Path(suffix))
}

// Remove tears a workspace down. A dirty tree blocks removal unless force
// is set; the blocked error carries the dirty file list and nothing is
// changed. After removal the worktree's absence is verified.
func (m *Manager) Remove(suffix string, force bool) (RemoveCode, error) {
	exists, err := m.Exists(suffix)
	if err != nil {
		return RemoveFailed, err
	}
	if !exists {
		return RemoveNotFound,
			errors.NewWorkspaceError("workspace not found", errors.ErrWorkspaceNotFound).
				WithSuffix(suffix).
				WithPath(m.Path(suffix))
	}

	path := m.Path(suffix)

	if !force {
		lines, err := m.git.At(path).StatusPorcelain()
		if err != nil {
			return RemoveFailed, err
		}
		if len(lines) > 0 {
			files := make([]string, 0, len(lines))
			for _, line := range lines {
				if len(line) > 3 {
					files = append(files, strings.TrimSpace(line[3:]))
				}
			}
			return RemoveUncommittedChanges,
				errors.NewWorkspaceError("workspace has uncommitted changes", errors.ErrDirtyWorkspace).
					WithSuffix(suffix).
					WithPath(path).
					WithDirtyFiles(files)
		}
	}

	if err := m.git.WorktreeRemove(path, force); err != nil {
		return RemoveFailed, err
	}
	if err := m.git.WorktreePrune(); err != nil {
		m.logger.Warn("worktree prune failed", "suffix", suffix, "error", err)
	}

	// Verify the worktree is actually gone.
	still, err := m.Exists(suffix)
	if err != nil {
		return RemoveFailed, err
	}
	if still {
		return RemoveFailed,
			errors.NewWorkspaceError("workspace still present after removal", nil).
				WithSuffix(suffix).
				WithPath(path)
	}

	m.logger.Info("workspace removed", "suffix", suffix, "path", path, "force", force)
	return RemoveOK, nil
}

// DeleteBranch removes a workspace's local branch. Used during lifecycle
// teardown after the squash merge has landed.
func (m *Manager) DeleteBranch(branch string) error {
	return m.git.DeleteBranch(branch)
}
