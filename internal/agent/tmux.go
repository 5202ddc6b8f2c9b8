package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/logging"
)

// SocketName is the tmux socket all drover agent sessions live on. A
// dedicated socket keeps drover's sessions out of the operator's own tmux
// server.
const SocketName = "drover"

// TmuxOptions tune the agent sessions.
type TmuxOptions struct {
	// Program is the agent executable, default "claude".
	Program string
	// ProgramArgs are passed before the prompt.
	ProgramArgs []string
	// Width and Height size the detached session.
	Width  int
	Height int
	// HistoryLimit is the scrollback depth preserved for the archive.
	HistoryLimit int
	// ArchiveDir receives scrollback files on dispose.
	ArchiveDir string
}

// TmuxSpawner runs agents in detached tmux sessions.
type TmuxSpawner struct {
	opts   TmuxOptions
	logger *logging.Logger
}

// NewTmuxSpawner creates a TmuxSpawner. Zero option fields get defaults.
func NewTmuxSpawner(opts TmuxOptions, logger *logging.Logger) *TmuxSpawner {
	if opts.Program == "" {
		opts.Program = "claude"
	}
	if opts.Width == 0 {
		opts.Width = 200
	}
	if opts.Height == 0 {
		opts.Height = 50
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = 50000
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &TmuxSpawner{opts: opts, logger: logger}
}

// SessionName returns the tmux session name for a suffix and role.
func SessionName(suffix string, role Role) string {
	return "drover-" + suffix + "-" + string(role)
}

func tmuxCmd(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"-L", SocketName}, args...)
	return exec.CommandContext(ctx, "tmux", full...)
}

// Spawn starts the agent program inside a fresh detached session rooted at
// the workspace directory.
func (s *TmuxSpawner) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	session := SessionName(spec.Suffix, spec.Role)

	if s.sessionExists(ctx, session) {
		return nil, errors.NewLifecycleError("agent session already exists", errors.ErrUnitExists).
			WithSuffix(spec.Suffix)
	}

	create := tmuxCmd(ctx, "new-session", "-d",
		"-s", session,
		"-c", spec.WorkDir,
		"-x", strconv.Itoa(s.opts.Width),
		"-y", strconv.Itoa(s.opts.Height))
	create.Env = append(os.Environ(), "TERM=xterm-256color")
	if output, err := create.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(err, "failed to create agent session %s: %s", session, strings.TrimSpace(string(output)))
	}

	limit := tmuxCmd(ctx, "set-option", "-t", session,
		"history-limit", strconv.Itoa(s.opts.HistoryLimit))
	if err := limit.Run(); err != nil {
		s.logger.Warn("failed to set history limit", "session", session, "error", err)
	}

	launch := s.opts.Program
	for _, arg := range s.opts.ProgramArgs {
		launch += " " + arg
	}
	launch += " " + shellQuote(spec.Prompt)

	send := tmuxCmd(ctx, "send-keys", "-t", session, launch, "Enter")
	if output, err := send.CombinedOutput(); err != nil {
		// The session exists but the agent never started; tear it down.
		_ = tmuxCmd(ctx, "kill-session", "-t", session).Run()
		return nil, errors.Wrapf(err, "failed to start agent in %s: %s", session, strings.TrimSpace(string(output)))
	}

	s.logger.Info("agent spawned",
		"session", session, "role", string(spec.Role),
		"suffix", spec.Suffix, "workdir", spec.WorkDir)

	return &Handle{
		Role:      spec.Role,
		Suffix:    spec.Suffix,
		Session:   session,
		SpawnedAt: time.Now(),
	}, nil
}

// Dispose archives the session scrollback and kills the session. A session
// that no longer exists is a satisfied dispose.
func (s *TmuxSpawner) Dispose(ctx context.Context, handle *Handle) (*Archive, error) {
	if handle == nil {
		return &Archive{}, nil
	}

	if !s.sessionExists(ctx, handle.Session) {
		s.logger.Debug("agent session already gone", "session", handle.Session)
		return &Archive{WasRunning: false}, nil
	}

	archive := &Archive{WasRunning: true}

	capture := tmuxCmd(ctx, "capture-pane", "-p", "-e",
		"-t", handle.Session, "-S", "-", "-E", "-")
	scrollback, err := capture.Output()
	if err != nil {
		// Findings are best effort; the session must still die.
		s.logger.Warn("failed to capture agent scrollback",
			"session", handle.Session, "error", err)
	} else if s.opts.ArchiveDir != "" {
		path, werr := s.writeArchive(handle.Session, scrollback)
		if werr != nil {
			s.logger.Warn("failed to archive agent scrollback",
				"session", handle.Session, "error", werr)
		} else {
			archive.Path = path
		}
	}

	kill := tmuxCmd(ctx, "kill-session", "-t", handle.Session)
	if output, err := kill.CombinedOutput(); err != nil {
		// Verify: the kill may have raced with the session exiting.
		if s.sessionExists(ctx, handle.Session) {
			return archive, errors.Wrapf(err, "failed to kill agent session %s: %s",
				handle.Session, strings.TrimSpace(string(output)))
		}
	}

	s.logger.Info("agent disposed", "session", handle.Session, "archive", archive.Path)
	return archive, nil
}

func (s *TmuxSpawner) writeArchive(session string, scrollback []byte) (string, error) {
	if err := os.MkdirAll(s.opts.ArchiveDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.opts.ArchiveDir,
		fmt.Sprintf("%s-%s.log", session, time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, scrollback, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *TmuxSpawner) sessionExists(ctx context.Context, session string) bool {
	return tmuxCmd(ctx, "has-session", "-t", session).Run() == nil
}

// shellQuote single-quotes a string for send-keys.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
