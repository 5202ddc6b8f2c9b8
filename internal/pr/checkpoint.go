// Package pr gates the lifecycle's Review phase on pull-request state.
//
// The checkpoint answers one question: is the unit's PR open, mergeable,
// and passing checks? Issue approval refuses entirely until all three hold.
// PR creation itself belongs to the builder agent; drover only observes and
// performs the final squash merge.
package pr

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/logging"
)

// Status describes a pull request at a point in time.
type Status struct {
	URL           string
	State         string // OPEN, CLOSED, MERGED
	Mergeable     bool
	ChecksPassing bool
}

// Ready reports whether the PR clears the approval gate.
func (s *Status) Ready() bool {
	return s.State == "OPEN" && s.Mergeable && s.ChecksPassing
}

// Checkpoint observes and merges pull requests.
type Checkpoint interface {
	// Status returns the PR state for a branch. A branch with no PR
	// wraps errors.ErrNotMergeable.
	Status(ctx context.Context, branch string) (*Status, error)

	// MergeSquash squash-merges the branch's PR.
	MergeSquash(ctx context.Context, branch string) error
}

// GHCheckpoint implements Checkpoint with the gh CLI.
type GHCheckpoint struct {
	// Dir is the repository directory gh runs in.
	Dir    string
	logger *logging.Logger
}

// NewGHCheckpoint creates a GHCheckpoint running in dir.
func NewGHCheckpoint(dir string, logger *logging.Logger) *GHCheckpoint {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &GHCheckpoint{Dir: dir, logger: logger}
}

// ghView mirrors the fields requested from `gh pr view --json`.
type ghView struct {
	URL               string `json:"url"`
	State             string `json:"state"`
	Mergeable         string `json:"mergeable"` // MERGEABLE, CONFLICTING, UNKNOWN
	StatusCheckRollup []struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	} `json:"statusCheckRollup"`
}

// Status queries the PR for a branch.
func (c *GHCheckpoint) Status(ctx context.Context, branch string) (*Status, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "view", branch,
		"--json", "url,state,mergeable,statusCheckRollup")
	cmd.Dir = c.Dir

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(string(exitErr.Stderr), "no pull requests found") {
			return nil, errors.NewLifecycleError("no pull request for branch "+branch, errors.ErrNotMergeable)
		}
		return nil, errors.Wrapf(err, "failed to query pull request for %s", branch)
	}

	var view ghView
	if err := json.Unmarshal(output, &view); err != nil {
		return nil, errors.Wrap(err, "failed to parse gh pr view output")
	}

	status := &Status{
		URL:           view.URL,
		State:         view.State,
		Mergeable:     view.Mergeable == "MERGEABLE",
		ChecksPassing: checksPassing(view),
	}

	c.logger.Debug("pull request status",
		"branch", branch, "state", status.State,
		"mergeable", status.Mergeable, "checks", status.ChecksPassing)
	return status, nil
}

// checksPassing is true when every completed check succeeded and nothing is
// still running. No checks at all counts as passing.
func checksPassing(view ghView) bool {
	for _, check := range view.StatusCheckRollup {
		if check.Status != "COMPLETED" {
			return false
		}
		switch check.Conclusion {
		case "SUCCESS", "NEUTRAL", "SKIPPED":
		default:
			return false
		}
	}
	return true
}

// MergeSquash squash-merges the branch's PR, deleting the remote branch.
func (c *GHCheckpoint) MergeSquash(ctx context.Context, branch string) error {
	cmd := exec.CommandContext(ctx, "gh", "pr", "merge", branch, "--squash", "--delete-branch")
	cmd.Dir = c.Dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.NewLifecycleError(
			"failed to squash-merge pull request: "+strings.TrimSpace(string(output)),
			errors.ErrNotMergeable)
	}

	c.logger.Info("pull request squash-merged", "branch", branch)
	return nil
}

// FakeCheckpoint serves canned statuses for tests.
type FakeCheckpoint struct {
	Statuses map[string]*Status
	Merged   []string
	MergeErr error
}

// NewFakeCheckpoint creates an empty FakeCheckpoint.
func NewFakeCheckpoint() *FakeCheckpoint {
	return &FakeCheckpoint{Statuses: make(map[string]*Status)}
}

// Status returns the canned status for a branch.
func (f *FakeCheckpoint) Status(_ context.Context, branch string) (*Status, error) {
	status, ok := f.Statuses[branch]
	if !ok {
		return nil, errors.NewLifecycleError("no pull request for branch "+branch, errors.ErrNotMergeable)
	}
	return status, nil
}

// MergeSquash records the merge.
func (f *FakeCheckpoint) MergeSquash(_ context.Context, branch string) error {
	if f.MergeErr != nil {
		return f.MergeErr
	}
	f.Merged = append(f.Merged, branch)
	return nil
}
