// Package testutil provides testing utilities for drover tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// SkipIfNoGit skips the test if no git binary is available.
func SkipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// SkipIfNoTmux skips the test if no tmux binary is available.
func SkipIfNoTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not available")
	}
}

// SetupTestRepo creates a temporary git repository for testing.
// Returns the path to the repository. The repository is automatically
// cleaned up when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	// Pin the initial branch so fixtures never depend on the operator's
	// init.defaultBranch.
	if err := runGit(dir, "-c", "init.defaultBranch=main", "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	// Configure git user for commits
	if err := runGit(dir, "config", "user.email", "test@drover.dev"); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}
	if err := runGit(dir, "config", "user.name", "Drover Test"); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}

	// Create initial commit (git worktree requires at least one commit)
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to create README: %v", err)
	}
	if err := runGit(dir, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, "commit", "-m", "Initial commit"); err != nil {
		t.Fatalf("failed to create initial commit: %v", err)
	}

	// Normalize the branch name (some systems default to master)
	if err := runGit(dir, "branch", "-M", "main"); err != nil {
		t.Fatalf("failed to rename branch to main: %v", err)
	}

	return dir
}

// SetupTestRepoWithRemote creates a test repository with a bare remote
// named origin, with main pushed and the remote HEAD pointer recorded.
func SetupTestRepoWithRemote(t *testing.T) (repoDir, remoteDir string) {
	t.Helper()

	remoteDir = t.TempDir()
	if err := runGit(remoteDir, "init", "--bare"); err != nil {
		t.Fatalf("failed to init bare repo: %v", err)
	}
	// Point the remote's own HEAD at main, so clones check out main
	// regardless of the bare repo's init.defaultBranch.
	if err := runGit(remoteDir, "symbolic-ref", "HEAD", "refs/heads/main"); err != nil {
		t.Fatalf("failed to set remote HEAD: %v", err)
	}

	repoDir = SetupTestRepo(t)

	if err := runGit(repoDir, "remote", "add", "origin", remoteDir); err != nil {
		t.Fatalf("failed to add remote: %v", err)
	}
	if err := runGit(repoDir, "push", "-u", "origin", "main"); err != nil {
		t.Fatalf("failed to push to remote: %v", err)
	}
	// Record the remote HEAD pointer the way `git clone` would
	if err := runGit(repoDir, "remote", "set-head", "origin", "main"); err != nil {
		t.Fatalf("failed to set remote head: %v", err)
	}

	return repoDir, remoteDir
}

// CloneRepo clones remoteDir into a fresh temporary directory and
// configures a git user. Useful for simulating a second contributor.
func CloneRepo(t *testing.T, remoteDir string) string {
	t.Helper()

	dir := t.TempDir()
	if err := runGit(dir, "clone", remoteDir, "."); err != nil {
		t.Fatalf("failed to clone remote: %v", err)
	}
	if err := runGit(dir, "config", "user.email", "other@drover.dev"); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}
	if err := runGit(dir, "config", "user.name", "Other Contributor"); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}
	return dir
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	fullPath := filepath.Join(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	if err := runGit(repoDir, "add", path); err != nil {
		t.Fatalf("failed to stage file %s: %v", path, err)
	}
	if err := runGit(repoDir, "commit", "-m", message); err != nil {
		t.Fatalf("failed to commit file %s: %v", path, err)
	}
}

// WriteFile writes a file without committing it.
func WriteFile(t *testing.T, repoDir, path, content string) {
	t.Helper()

	fullPath := filepath.Join(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// StageFile stages a file without committing it.
func StageFile(t *testing.T, repoDir, path string) {
	t.Helper()

	if err := runGit(repoDir, "add", path); err != nil {
		t.Fatalf("failed to stage file %s: %v", path, err)
	}
}

// Push pushes the current branch of repoDir to origin.
func Push(t *testing.T, repoDir string) {
	t.Helper()

	if err := runGit(repoDir, "push", "origin", "HEAD"); err != nil {
		t.Fatalf("failed to push: %v", err)
	}
}

// CreateBranch creates a new branch in the repository.
func CreateBranch(t *testing.T, repoDir, branch string) {
	t.Helper()

	if err := runGit(repoDir, "branch", branch); err != nil {
		t.Fatalf("failed to create branch %s: %v", branch, err)
	}
}

// CheckoutBranch switches to a branch.
func CheckoutBranch(t *testing.T, repoDir, branch string) {
	t.Helper()

	if err := runGit(repoDir, "checkout", branch); err != nil {
		t.Fatalf("failed to checkout branch %s: %v", branch, err)
	}
}

// GetCurrentBranch returns the current branch name.
func GetCurrentBranch(t *testing.T, repoDir string) string {
	t.Helper()

	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to get current branch: %v", err)
	}
	return strings.TrimSpace(string(output))
}

// GetHead returns the commit hash of HEAD.
func GetHead(t *testing.T, repoDir string) string {
	t.Helper()

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to resolve HEAD: %v", err)
	}
	return strings.TrimSpace(string(output))
}

// GetCommitCount returns the number of commits in the repository.
func GetCommitCount(t *testing.T, repoDir string) int {
	t.Helper()

	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to count commits: %v", err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		t.Fatalf("failed to parse commit count: %v", err)
	}
	return count
}

// MergeConflictingFile creates an unmerged (conflicted) path in repoDir by
// merging a branch that edits the same file differently.
func MergeConflictingFile(t *testing.T, repoDir, path string) {
	t.Helper()

	base := GetCurrentBranch(t, repoDir)

	CommitFile(t, repoDir, path, "base content\n", "base version of "+path)
	CreateBranch(t, repoDir, "conflict-side")
	CommitFile(t, repoDir, path, "our content\n", "our version of "+path)
	CheckoutBranch(t, repoDir, "conflict-side")
	CommitFile(t, repoDir, path, "their content\n", "their version of "+path)
	CheckoutBranch(t, repoDir, base)

	// The merge is expected to fail with a conflict
	cmd := exec.Command("git", "merge", "conflict-side")
	cmd.Dir = repoDir
	_ = cmd.Run()
}

// ListWorktrees returns the paths of all worktrees in the repository.
func ListWorktrees(t *testing.T, repoDir string) []string {
	t.Helper()

	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to list worktrees: %v", err)
	}

	var worktrees []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			worktrees = append(worktrees, strings.TrimPrefix(line, "worktree "))
		}
	}
	return worktrees
}

// runGit runs a git command in the given directory.
func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	return cmd.Run()
}
