// Package syncer brings a local integration branch into fast-forward
// agreement with its remote counterpart.
//
// The synchronizer never merges, rebases, resets, or force-pushes. When the
// local branch has commits the remote lacks, it reports the divergence with
// both commit lists and leaves every pointer untouched; choosing a remedy
// (reset to remote, preserve as a new branch, manual resolution) is a human
// decision.
package syncer

import (
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/gitcmd"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/repostate"
)

// Code classifies a synchronization outcome for script consumption.
type Code int

const (
	// CodeSuccess means the branch is up to date (possibly after a
	// fast-forward).
	CodeSuccess Code = 0
	// CodeUncommittedChanges means the working copy was dirty; nothing
	// was changed.
	CodeUncommittedChanges Code = 1
	// CodeNoDefaultBranch means no integration branch could be resolved.
	CodeNoDefaultBranch Code = 2
	// CodeDiverged means local and remote both have commits the other
	// lacks; nothing was changed.
	CodeDiverged Code = 3
	// CodeFetchFailed means the remote could not be fetched; nothing was
	// changed.
	CodeFetchFailed Code = 4
)

// String returns the script-facing name of the code.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeUncommittedChanges:
		return "uncommitted_changes"
	case CodeNoDefaultBranch:
		return "no_default_branch"
	case CodeDiverged:
		return "diverged"
	case CodeFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// Result describes a synchronization attempt.
type Result struct {
	DefaultBranch  string
	OriginalBranch string // Empty when HEAD was detached at entry
	CommitsPulled  int
	LatestCommit   string
	// Populated only on divergence
	LocalCommits  []string
	RemoteCommits []string
}

// Syncer synchronizes the integration branch of one repository.
type Syncer struct {
	git    *gitcmd.Git
	remote string
	// DefaultBranch overrides remote-HEAD resolution when non-empty.
	DefaultBranch string

	logger *logging.Logger
}

// New creates a Syncer for the repository containing dir.
func New(dir, remote string, logger *logging.Logger) (*Syncer, error) {
	git, err := gitcmd.New(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Syncer{git: git, remote: remote, logger: logger}, nil
}

// NewWithGit creates a Syncer over an existing git runner.
func NewWithGit(git *gitcmd.Git, remote string, logger *logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Syncer{git: git, remote: remote, logger: logger}
}

// ResolveDefaultBranch resolves the integration branch name: a configured
// override first, then the locally recorded remote-HEAD pointer, then a
// direct query of the remote.
func (s *Syncer) ResolveDefaultBranch() (string, error) {
	if s.DefaultBranch != "" {
		return s.DefaultBranch, nil
	}
	if branch := s.git.SymbolicRemoteHead(s.remote); branch != "" {
		return branch, nil
	}
	if branch := s.git.QueryRemoteHead(s.remote); branch != "" {
		return branch, nil
	}
	return "", errors.NewSyncError("could not resolve the integration branch", errors.ErrNoDefaultBranch)
}

// Sync brings the integration branch up to date with its remote
// counterpart. On any outcome other than success the repository is left as
// it was found, and the original branch is restored unless HEAD was
// detached at entry.
func (s *Syncer) Sync() (*Result, Code, error) {
	result := &Result{}

	defaultBranch, err := s.ResolveDefaultBranch()
	if err != nil {
		return result, CodeNoDefaultBranch, err
	}
	result.DefaultBranch = defaultBranch

	detached, err := s.git.IsDetached()
	if err != nil {
		return result, CodeNoDefaultBranch, err
	}
	if !detached {
		branch, err := s.git.CurrentBranch()
		if err != nil {
			return result, CodeNoDefaultBranch, err
		}
		result.OriginalBranch = branch
	}

	// A dirty tree blocks the sync before any branch switching happens.
	state, _, err := repostate.InspectWith(s.git)
	if err != nil {
		return result, CodeNoDefaultBranch, err
	}
	if !state.Clean {
		return result, CodeUncommittedChanges,
			errors.NewSyncError("working copy has uncommitted changes", errors.ErrDirtyWorkspace).
				WithBranch(defaultBranch)
	}

	switched := false
	if result.OriginalBranch != defaultBranch {
		if err := s.git.Checkout(defaultBranch); err != nil {
			return result, CodeNoDefaultBranch, err
		}
		switched = true
	}

	// A detached entry state is ambiguous; it is not restored.
	restore := func() {
		if switched && result.OriginalBranch != "" {
			if err := s.git.Checkout(result.OriginalBranch); err != nil {
				s.logger.Warn("failed to restore original branch",
					"branch", result.OriginalBranch, "error", err)
			}
		}
	}

	if err := s.git.Fetch(s.remote, defaultBranch); err != nil {
		restore()
		return result, CodeFetchFailed, err
	}

	remoteRef := s.remote + "/" + defaultBranch

	localTip, err := s.git.RevParse("refs/heads/" + defaultBranch)
	if err != nil {
		restore()
		return result, CodeNoDefaultBranch, err
	}
	remoteTip, err := s.git.RevParse("refs/remotes/" + remoteRef)
	if err != nil {
		restore()
		return result, CodeNoDefaultBranch, err
	}

	if localTip == remoteTip {
		result.LatestCommit, _ = s.git.LastCommit()
		restore()
		s.logger.Debug("integration branch already up to date", "branch", defaultBranch)
		return result, CodeSuccess, nil
	}

	localOnly, err := s.git.RevList(remoteRef + ".." + defaultBranch)
	if err != nil {
		restore()
		return result, CodeNoDefaultBranch, err
	}

	if len(localOnly) > 0 {
		remoteOnly, err := s.git.RevList(defaultBranch + ".." + remoteRef)
		if err != nil {
			restore()
			return result, CodeNoDefaultBranch, err
		}
		result.LocalCommits = localOnly
		result.RemoteCommits = remoteOnly
		restore()
		s.logger.Warn("integration branch has diverged from the remote",
			"branch", defaultBranch,
			"local_only", len(localOnly),
			"remote_only", len(remoteOnly))
		return result, CodeDiverged,
			errors.NewSyncError("cannot fast-forward", errors.ErrDiverged).
				WithBranch(defaultBranch).
				WithDivergence(localOnly, remoteOnly)
	}

	// Strictly behind: fast-forward only.
	pulled, err := s.git.CountCommits(defaultBranch + ".." + remoteRef)
	if err != nil {
		restore()
		return result, CodeNoDefaultBranch, err
	}
	if err := s.git.MergeFFOnly(remoteRef); err != nil {
		restore()
		return result, CodeNoDefaultBranch, err
	}
	result.CommitsPulled = pulled
	result.LatestCommit, _ = s.git.LastCommit()

	restore()
	s.logger.Info("integration branch synchronized",
		"branch", defaultBranch, "commits_pulled", pulled)
	return result, CodeSuccess, nil
}

// DivergenceRemedies returns the three remedial commands for a divergence,
// in no preferred order. The synchronizer presents them; it never runs them.
func DivergenceRemedies(remote, branch string) []string {
	return []string{
		"git reset --hard " + remote + "/" + branch,
		"git branch backup-" + branch + " && git reset --hard " + remote + "/" + branch,
		"git rebase " + remote + "/" + branch,
	}
}
