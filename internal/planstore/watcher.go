package planstore

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/logging"
)

// EventOp describes what happened to a plan file.
type EventOp int

const (
	// OpWritten means a plan file was created or rewritten.
	OpWritten EventOp = iota
	// OpRemoved means a plan file disappeared.
	OpRemoved
)

// PlanEvent reports a change to one plan, identified by suffix.
type PlanEvent struct {
	Suffix string
	Op     EventOp
}

// Watcher observes a plans directory and reports plan file changes. The
// orchestrator uses it to surface the informational "plan posted" report
// when a planner drops its plan file.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan PlanEvent
	logger *logging.Logger
}

// NewWatcher watches dir for plan file changes. The directory must exist.
func NewWatcher(dir string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create plan watcher")
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.Wrap(err, "failed to watch plans directory")
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan PlanEvent, 16),
		logger: logger,
	}
	go w.loop()
	return w, nil
}

// Events delivers plan changes. The channel is closed when the watcher is
// closed.
func (w *Watcher) Events() <-chan PlanEvent {
	return w.events
}

// Close stops the watcher and closes the event channel.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			suffix, isPlan := suffixFromPath(ev.Name)
			if !isPlan {
				continue
			}
			switch {
			// Atomic writes land as a create of the plan name (the
			// rename target); the temp source never matches.
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.logger.Debug("plan file observed", "suffix", suffix, "op", ev.Op.String())
				w.events <- PlanEvent{Suffix: suffix, Op: OpWritten}
			// A rename of the plan file itself means it moved away.
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.events <- PlanEvent{Suffix: suffix, Op: OpRemoved}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("plan watcher error", "error", err)
		}
	}
}

// suffixFromPath extracts the suffix from a plan file path. Temp files from
// atomic writes and unrelated files are ignored.
func suffixFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "issue-") || !strings.HasSuffix(name, ".md") {
		return "", false
	}
	suffix := strings.TrimSuffix(strings.TrimPrefix(name, "issue-"), ".md")
	if suffix == "" || strings.Contains(suffix, ".") {
		return "", false
	}
	return suffix, true
}
