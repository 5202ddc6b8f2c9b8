// Package repostate produces read-only snapshots of a repository's
// working-copy cleanliness and conflict state.
//
// A snapshot is recomputed on demand and never persisted. Everything short
// of "not a repository" is informational: the caller decides whether a
// dirty or conflicted tree blocks its operation.
package repostate

import (
	"strings"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/gitcmd"
)

// Code classifies a snapshot for script consumption.
type Code int

const (
	// CodeClean means no staged, unstaged, or conflicted entries.
	CodeClean Code = 0
	// CodeDirty means staged or unstaged entries exist but no conflicts.
	CodeDirty Code = 1
	// CodeConflicted means at least one unmerged entry exists.
	CodeConflicted Code = 2
	// CodeNotARepo means the path is not inside a git repository.
	CodeNotARepo Code = 3
)

// String returns the script-facing name of the code.
func (c Code) String() string {
	switch c {
	case CodeClean:
		return "clean"
	case CodeDirty:
		return "dirty"
	case CodeConflicted:
		return "conflicted"
	case CodeNotARepo:
		return "not_a_repo"
	default:
		return "unknown"
	}
}

// State is a snapshot of a repository's working copy.
type State struct {
	IsRepo          bool
	Branch          string
	Detached        bool
	Clean           bool
	Staged          int
	Unstaged        int
	Untracked       int
	Conflicts       int
	ConflictedFiles []string
	Ahead           int
	Behind          int
}

// Inspect produces a snapshot of the repository at repoRoot.
//
// When the path is not a repository, the returned state carries only
// IsRepo=false and the code is CodeNotARepo; the error wraps
// errors.ErrNotGitRepository. Any other condition is reported in the state
// and the code, with a nil error.
func Inspect(repoRoot string) (*State, Code, error) {
	git, err := gitcmd.New(repoRoot)
	if err != nil {
		return &State{IsRepo: false}, CodeNotARepo, err
	}
	return inspect(git)
}

// InspectWith inspects using a pre-built git runner. Used by components
// that already hold one (workspace cleanliness checks).
func InspectWith(git *gitcmd.Git) (*State, Code, error) {
	return inspect(git)
}

func inspect(git *gitcmd.Git) (*State, Code, error) {
	state := &State{IsRepo: true}

	branch, err := git.CurrentBranch()
	if err != nil {
		return state, CodeNotARepo, errors.Wrap(err, "failed to inspect repository")
	}
	state.Branch = branch
	state.Detached = branch == "HEAD"

	lines, err := git.StatusPorcelain()
	if err != nil {
		return state, CodeNotARepo, errors.Wrap(err, "failed to inspect repository")
	}

	for _, line := range lines {
		if len(line) < 3 {
			continue
		}
		x, y := line[0], line[1]
		path := strings.TrimSpace(line[3:])

		switch {
		case isConflict(x, y):
			state.Conflicts++
			state.ConflictedFiles = append(state.ConflictedFiles, path)
		case x == '?' && y == '?':
			state.Untracked++
		default:
			if x != ' ' {
				state.Staged++
			}
			if y != ' ' {
				state.Unstaged++
			}
		}
	}

	state.Clean = state.Staged == 0 && state.Unstaged == 0 && state.Conflicts == 0

	// Divergence is computed only against an upstream tracking ref;
	// its absence is a normal state, not an error.
	ahead, behind, err := git.AheadBehind("@{upstream}")
	if err == nil {
		state.Ahead = ahead
		state.Behind = behind
	}

	code := CodeClean
	switch {
	case state.Conflicts > 0:
		code = CodeConflicted
	case !state.Clean:
		code = CodeDirty
	}

	return state, code, nil
}

// isConflict classifies a porcelain XY pair as an unmerged entry.
// Unmerged combinations: DD, AA, UU, and any pairing involving U.
func isConflict(x, y byte) bool {
	if x == 'U' || y == 'U' {
		return true
	}
	return (x == 'D' && y == 'D') || (x == 'A' && y == 'A')
}

// Fsck runs the opt-in deep integrity check. It is slower than Inspect and
// its result is reported, never blocking.
func Fsck(repoRoot string) (output string, healthy bool, err error) {
	git, err := gitcmd.New(repoRoot)
	if err != nil {
		return "", false, err
	}
	output, fsckErr := git.Fsck()
	return output, fsckErr == nil, nil
}
