package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/testutil"
)

func newTestManager(t *testing.T, repo string) *Manager {
	t.Helper()
	m, err := New(repo, filepath.Join(repo, "worktrees"), "origin", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestValidSuffix(t *testing.T) {
	tests := []struct {
		suffix string
		want   bool
	}{
		{"123", true},
		{"123-api", true},
		{"fix-login", true},
		{"", false},
		{"-leading", false},
		{"UPPER", false},
		{"has space", false},
		{"has_underscore", false},
	}

	for _, tt := range tests {
		if got := ValidSuffix(tt.suffix); got != tt.want {
			t.Errorf("ValidSuffix(%q) = %v, want %v", tt.suffix, got, tt.want)
		}
	}
}

func TestBranchName(t *testing.T) {
	if got := BranchName("fix", "42"); got != "fix/issue-42" {
		t.Errorf("BranchName = %s, want fix/issue-42", got)
	}
	if got := BranchName("", "42"); got != "feature/issue-42" {
		t.Errorf("BranchName with empty type = %s, want feature/issue-42", got)
	}
}

func TestCreateWorkspace(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	created, code, err := m.Create("42", CreateOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if code != CreateOK {
		t.Errorf("code = %v, want CreateOK", code)
	}
	if created.Branch != "feature/issue-42" {
		t.Errorf("Branch = %s, want feature/issue-42", created.Branch)
	}
	if created.BaseBranch != "main" {
		t.Errorf("BaseBranch = %s, want main", created.BaseBranch)
	}
	if _, err := os.Stat(created.Path); err != nil {
		t.Errorf("worktree path missing: %v", err)
	}
	if got := testutil.GetCurrentBranch(t, created.Path); got != "feature/issue-42" {
		t.Errorf("worktree branch = %s, want feature/issue-42", got)
	}
}

func TestCreateDuplicateSuffix(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	if _, _, err := m.Create("42", CreateOptions{}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	before := testutil.ListWorktrees(t, repo)

	_, code, err := m.Create("42", CreateOptions{WorkType: "fix"})
	if code != CreateAlreadyExists {
		t.Errorf("code = %v, want CreateAlreadyExists", code)
	}
	if !errors.Is(err, errors.ErrWorkspaceExists) {
		t.Errorf("error = %v, want ErrWorkspaceExists", err)
	}

	// The duplicate attempt must not mutate anything.
	after := testutil.ListWorktrees(t, repo)
	if len(after) != len(before) {
		t.Errorf("worktree count changed: %d -> %d", len(before), len(after))
	}
}

func TestCreateBranchCollision(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	testutil.CreateBranch(t, repo, "feature/issue-42")

	_, code, err := m.Create("42", CreateOptions{})
	if code != CreateFailed {
		t.Errorf("code = %v, want CreateFailed", code)
	}
	if !errors.Is(err, errors.ErrBranchExists) {
		t.Errorf("error = %v, want ErrBranchExists", err)
	}
}

func TestCreateInvalidSuffix(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	_, code, err := m.Create("Bad Suffix", CreateOptions{})
	if code != CreateFailed {
		t.Errorf("code = %v, want CreateFailed", code)
	}
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestListExcludesPrimaryCheckout(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	if _, _, err := m.Create("42", CreateOptions{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, _, err := m.Create("43-api", CreateOptions{WorkType: "fix"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	infos, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d workspaces, want 2", len(infos))
	}
	for _, info := range infos {
		if info.Path == repo {
			t.Error("primary checkout leaked into the listing")
		}
		if !info.Clean {
			t.Errorf("fresh workspace %s not clean", info.Suffix)
		}
		if info.LastCommit == "" {
			t.Errorf("workspace %s has no last commit", info.Suffix)
		}
	}
}

func TestListReportsModifications(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	created, _, err := m.Create("42", CreateOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	testutil.WriteFile(t, created.Path, "work.txt", "in progress\n")

	info, err := m.Get("42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Clean {
		t.Error("Clean = true for a modified workspace")
	}
	if info.Modified != 1 {
		t.Errorf("Modified = %d, want 1", info.Modified)
	}

	// The listing and the removal gate must agree: a workspace the list
	// reports dirty is one a non-forced remove refuses.
	code, err := m.Remove("42", false)
	if code != RemoveUncommittedChanges || !errors.Is(err, errors.ErrDirtyWorkspace) {
		t.Errorf("Remove() = %v, %v, want RemoveUncommittedChanges, ErrDirtyWorkspace", code, err)
	}
}

func TestRemoveNotFound(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	code, err := m.Remove("404", false)
	if code != RemoveNotFound {
		t.Errorf("code = %v, want RemoveNotFound", code)
	}
	if !errors.Is(err, errors.ErrWorkspaceNotFound) {
		t.Errorf("error = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestRemoveDirtyBlockedWithoutForce(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	created, _, err := m.Create("42", CreateOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	testutil.WriteFile(t, created.Path, "work.txt", "unsaved\n")

	code, err := m.Remove("42", false)
	if code != RemoveUncommittedChanges {
		t.Errorf("code = %v, want RemoveUncommittedChanges", code)
	}
	if !errors.Is(err, errors.ErrDirtyWorkspace) {
		t.Errorf("error = %v, want ErrDirtyWorkspace", err)
	}

	var wsErr *errors.WorkspaceError
	if !errors.As(err, &wsErr) {
		t.Fatalf("error is not a WorkspaceError: %v", err)
	}
	if len(wsErr.DirtyFiles) != 1 || wsErr.DirtyFiles[0] != "work.txt" {
		t.Errorf("DirtyFiles = %v, want [work.txt]", wsErr.DirtyFiles)
	}

	// Blocked removal must leave the workspace intact.
	if _, err := os.Stat(created.Path); err != nil {
		t.Errorf("workspace removed despite blocked removal: %v", err)
	}
}

func TestRemoveDirtyWithForce(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	created, _, err := m.Create("42", CreateOptions{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	testutil.WriteFile(t, created.Path, "work.txt", "unsaved\n")

	code, err := m.Remove("42", true)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if code != RemoveOK {
		t.Errorf("code = %v, want RemoveOK", code)
	}
	if _, err := os.Stat(created.Path); !os.IsNotExist(err) {
		t.Error("workspace directory still present after forced removal")
	}
}

func TestCreateRemoveRoundTrip(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, _ := testutil.SetupTestRepoWithRemote(t)
	m := newTestManager(t, repo)

	if _, _, err := m.Create("42", CreateOptions{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if code, err := m.Remove("42", false); err != nil || code != RemoveOK {
		t.Fatalf("Remove() = %v, %v", code, err)
	}

	infos, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("got %d workspaces after removal, want 0", len(infos))
	}

	// The suffix is free again.
	if _, code, err := m.Create("42", CreateOptions{WorkType: "fix"}); err != nil || code != CreateOK {
		t.Fatalf("re-Create() = %v, %v", code, err)
	}
}
