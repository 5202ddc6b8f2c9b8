// Package gitcmd wraps the git CLI behind a small executor abstraction.
//
// Every higher-level component (state inspection, synchronization, workspace
// management) builds on the Git type defined here. The Executor interface
// allows tests to substitute command execution without a git binary.
package gitcmd

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/drover-sh/drover/internal/errors"
)

// Executor abstracts command execution for testability.
type Executor interface {
	// Run executes a command and returns combined stdout+stderr.
	Run(dir string, name string, args ...string) ([]byte, error)

	// Output executes a command and returns stdout only.
	Output(dir string, name string, args ...string) ([]byte, error)
}

// CLIExecutor executes commands using os/exec.
type CLIExecutor struct{}

// NewCLIExecutor creates a new CLI executor.
func NewCLIExecutor() *CLIExecutor {
	return &CLIExecutor{}
}

// Run executes a command and returns combined output.
func (e *CLIExecutor) Run(dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Output executes a command and returns stdout only.
func (e *CLIExecutor) Output(dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

// FindGitRoot finds the root of the git repository by traversing up from
// startDir. It returns the directory containing .git (either a directory or
// a file for worktrees). Returns ErrNotGitRepository if none is found.
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			// .git can be a directory (normal repo) or a file (worktree)
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git
			return "", errors.NewGitError("no repository found from "+startDir, errors.ErrNotGitRepository)
		}
		dir = parent
	}
}

// Git runs git commands rooted at a repository directory.
type Git struct {
	dir      string
	executor Executor
}

// New creates a Git runner for the repository containing dir.
func New(dir string) (*Git, error) {
	root, err := FindGitRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Git{dir: root, executor: NewCLIExecutor()}, nil
}

// NewWithExecutor creates a Git runner with a custom executor.
// The directory is used as-is; primarily useful for testing.
func NewWithExecutor(dir string, executor Executor) *Git {
	return &Git{dir: dir, executor: executor}
}

// Dir returns the repository root this runner operates on.
func (g *Git) Dir() string {
	return g.dir
}

// At returns a runner for the same executor rooted at a different directory.
// Used to run commands inside a specific worktree.
func (g *Git) At(dir string) *Git {
	return &Git{dir: dir, executor: g.executor}
}

// Run executes git with the given arguments and returns combined output.
func (g *Git) Run(args ...string) ([]byte, error) {
	return g.executor.Run(g.dir, "git", args...)
}

// Output executes git with the given arguments and returns stdout only.
func (g *Git) Output(args ...string) ([]byte, error) {
	return g.executor.Output(g.dir, "git", args...)
}

// CurrentBranch returns the current branch name, or "HEAD" when detached.
func (g *Git) CurrentBranch() (string, error) {
	output, err := g.Output("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", errors.NewGitError("failed to get current branch", err).WithPath(g.dir)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsDetached reports whether HEAD is detached.
func (g *Git) IsDetached() (bool, error) {
	branch, err := g.CurrentBranch()
	if err != nil {
		return false, err
	}
	return branch == "HEAD", nil
}

// Head returns the commit hash of HEAD.
func (g *Git) Head() (string, error) {
	output, err := g.Output("rev-parse", "HEAD")
	if err != nil {
		return "", errors.NewGitError("failed to resolve HEAD", err).WithPath(g.dir)
	}
	return strings.TrimSpace(string(output)), nil
}

// RevParse resolves a ref to a commit hash.
func (g *Git) RevParse(ref string) (string, error) {
	output, err := g.Output("rev-parse", "--verify", ref)
	if err != nil {
		return "", errors.NewGitError("failed to resolve ref", err).WithBranch(ref).WithPath(g.dir)
	}
	return strings.TrimSpace(string(output)), nil
}

// BranchExists reports whether a local branch exists.
func (g *Git) BranchExists(branch string) bool {
	_, err := g.Output("rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// StatusPorcelain returns the raw porcelain status lines for the work tree.
func (g *Git) StatusPorcelain() ([]string, error) {
	output, err := g.Output("status", "--porcelain")
	if err != nil {
		return nil, errors.NewGitError("failed to get status", err).WithPath(g.dir)
	}
	trimmed := strings.TrimRight(string(output), "\n")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// Checkout switches to the given branch.
func (g *Git) Checkout(branch string) error {
	output, err := g.Run("checkout", branch)
	if err != nil {
		return errors.NewGitError("failed to checkout branch", err).
			WithBranch(branch).
			WithPath(g.dir).
			WithGitOutput(string(output))
	}
	return nil
}

// Fetch fetches the given refspecs from a remote.
func (g *Git) Fetch(remote string, refspecs ...string) error {
	args := append([]string{"fetch", remote}, refspecs...)
	output, err := g.Run(args...)
	if err != nil {
		return errors.NewGitError("failed to fetch from "+remote, errors.ErrFetchFailed).
			WithPath(g.dir).
			WithGitOutput(string(output))
	}
	return nil
}

// MergeFFOnly fast-forwards the current branch to the given ref.
// It never creates a merge commit.
func (g *Git) MergeFFOnly(ref string) error {
	output, err := g.Run("merge", "--ff-only", ref)
	if err != nil {
		return errors.NewGitError("failed to fast-forward", err).
			WithBranch(ref).
			WithPath(g.dir).
			WithGitOutput(string(output))
	}
	return nil
}

// RevList returns the commit subjects in the given range, newest first.
// Each entry is "hash subject".
func (g *Git) RevList(revRange string) ([]string, error) {
	output, err := g.Output("log", "--format=%h %s", revRange)
	if err != nil {
		return nil, errors.NewGitError("failed to list commits", err).
			WithBranch(revRange).
			WithPath(g.dir)
	}
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// ChangedFiles returns the paths changed between base and head, using the
// merge-base form (base...head).
func (g *Git) ChangedFiles(base, head string) ([]string, error) {
	output, err := g.Output("diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, errors.NewGitError("failed to diff changed files", err).
			WithBranch(head).
			WithPath(g.dir)
	}
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// CountCommits returns the number of commits in the given range.
func (g *Git) CountCommits(revRange string) (int, error) {
	output, err := g.Output("rev-list", "--count", revRange)
	if err != nil {
		return 0, errors.NewGitError("failed to count commits", err).
			WithBranch(revRange).
			WithPath(g.dir)
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, errors.NewGitError("failed to parse commit count", err).WithPath(g.dir)
	}
	return count, nil
}

// AheadBehind returns how many commits HEAD is ahead of and behind the
// given upstream ref. A missing upstream yields (0, 0, nil).
func (g *Git) AheadBehind(upstream string) (ahead, behind int, err error) {
	// Absence of an upstream is an expected state, not an error.
	if _, err := g.Output("rev-parse", "--verify", upstream); err != nil {
		return 0, 0, nil
	}

	output, err := g.Output("rev-list", "--left-right", "--count", upstream+"...HEAD")
	if err != nil {
		return 0, 0, errors.NewGitError("failed to compute ahead/behind", err).
			WithBranch(upstream).
			WithPath(g.dir)
	}

	fields := strings.Fields(strings.TrimSpace(string(output)))
	if len(fields) != 2 {
		return 0, 0, errors.NewGitError("unexpected rev-list output", nil).
			WithPath(g.dir).
			WithGitOutput(string(output))
	}
	behind, _ = strconv.Atoi(fields[0])
	ahead, _ = strconv.Atoi(fields[1])
	return ahead, behind, nil
}

// LastCommit returns "hash subject" for the most recent commit.
func (g *Git) LastCommit() (string, error) {
	output, err := g.Output("log", "-1", "--format=%h %s")
	if err != nil {
		return "", errors.NewGitError("failed to get last commit", err).WithPath(g.dir)
	}
	return strings.TrimSpace(string(output)), nil
}

// SymbolicRemoteHead returns the branch the remote HEAD pointer refers to,
// e.g. "main" for refs/remotes/origin/HEAD -> refs/remotes/origin/main.
// Returns an empty string when the pointer is not recorded locally.
func (g *Git) SymbolicRemoteHead(remote string) string {
	output, err := g.Output("symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return ""
	}
	ref := strings.TrimSpace(string(output))
	return strings.TrimPrefix(ref, remote+"/")
}

// QueryRemoteHead asks the remote directly for its HEAD branch.
// Returns an empty string when the remote cannot be reached or has no HEAD.
func (g *Git) QueryRemoteHead(remote string) string {
	output, err := g.Output("ls-remote", "--symref", remote, "HEAD")
	if err != nil {
		return ""
	}
	// First line: "ref: refs/heads/main\tHEAD"
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, "ref:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			return strings.TrimPrefix(fields[1], "refs/heads/")
		}
	}
	return ""
}

// WorktreeAdd creates a worktree at path on a new branch rooted at startRef.
func (g *Git) WorktreeAdd(path, branch, startRef string) error {
	output, err := g.Run("worktree", "add", "-b", branch, path, startRef)
	if err != nil {
		cause := error(nil)
		if strings.Contains(string(output), "already exists") {
			cause = errors.ErrBranchExists
		}
		return errors.NewGitError("failed to create worktree", cause).
			WithBranch(branch).
			WithPath(path).
			WithGitOutput(string(output))
	}
	return nil
}

// WorktreeRemove removes a worktree. With force, uncommitted changes are
// discarded.
func (g *Git) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	output, err := g.Run(args...)
	if err != nil {
		return errors.NewGitError("failed to remove worktree", err).
			WithPath(path).
			WithGitOutput(string(output))
	}
	return nil
}

// WorktreePrune prunes stale worktree bookkeeping.
func (g *Git) WorktreePrune() error {
	output, err := g.Run("worktree", "prune")
	if err != nil {
		return errors.NewGitError("failed to prune worktrees", err).
			WithPath(g.dir).
			WithGitOutput(string(output))
	}
	return nil
}

// WorktreeEntry describes one entry from `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path   string
	Head   string
	Branch string // Empty when detached
}

// WorktreeList returns all worktrees known to the repository, including the
// primary checkout (always first).
func (g *Git) WorktreeList() ([]WorktreeEntry, error) {
	output, err := g.Output("worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.NewGitError("failed to list worktrees", err).WithPath(g.dir)
	}

	var entries []WorktreeEntry
	var current *WorktreeEntry
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				entries = append(entries, *current)
			}
			current = &WorktreeEntry{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD ") && current != nil:
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch ") && current != nil:
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}

	return entries, nil
}

// DeleteBranch force-deletes a local branch.
func (g *Git) DeleteBranch(branch string) error {
	output, err := g.Run("branch", "-D", branch)
	if err != nil {
		return errors.NewGitError("failed to delete branch", err).
			WithBranch(branch).
			WithPath(g.dir).
			WithGitOutput(string(output))
	}
	return nil
}

// Fsck runs a deep integrity check. The output is informational; a non-nil
// error means the repository has integrity problems, never that the caller
// must stop.
func (g *Git) Fsck() (string, error) {
	output, err := g.Run("fsck", "--no-progress")
	return strings.TrimSpace(string(output)), err
}
