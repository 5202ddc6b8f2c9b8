// Package planstore persists implementation plans, one markdown file per
// issue suffix.
//
// Plans live outside the repositories they describe so workspace teardown
// never touches them; deleting a plan is an explicit lifecycle step.
package planstore

import (
	"os"
	"path/filepath"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/logging"
)

// Code classifies a plan operation outcome for script consumption.
type Code int

const (
	// CodeSuccess means the operation completed.
	CodeSuccess Code = 0
	// CodeNotFound means no plan exists for the suffix.
	CodeNotFound Code = 1
	// CodeAlreadyAbsent means a delete found nothing to remove. Treated as
	// success by callers.
	CodeAlreadyAbsent Code = 2
	// CodeWriteFailed means the plan could not be persisted.
	CodeWriteFailed Code = 3
)

// String returns the script-facing name of the code.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeNotFound:
		return "not_found"
	case CodeAlreadyAbsent:
		return "already_absent"
	case CodeWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Store persists plans keyed by issue suffix.
type Store interface {
	// Write persists the plan content for a suffix, replacing any
	// previous plan.
	Write(suffix string, content []byte) error

	// Read returns the plan content. A missing plan wraps
	// errors.ErrPlanNotFound.
	Read(suffix string) ([]byte, error)

	// Verify reports whether a plan exists without reading it.
	Verify(suffix string) (bool, error)

	// Delete removes the plan. Deleting an absent plan is not an error;
	// the returned code distinguishes CodeSuccess from CodeAlreadyAbsent.
	Delete(suffix string) (Code, error)
}

// Catalog is notified after a plan is written so an external artifact
// browser can index it. A nil catalog is a no-op.
type Catalog interface {
	PlanWritten(suffix, path string) error
}

// FileStore stores plans as issue-<suffix>.md files under a single
// directory.
type FileStore struct {
	dir     string
	catalog Catalog
	logger  *logging.Logger
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// lazily on first write.
func NewFileStore(dir string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &FileStore{dir: dir, logger: logger}
}

// WithCatalog sets the post-write catalog hook.
func (s *FileStore) WithCatalog(c Catalog) *FileStore {
	s.catalog = c
	return s
}

// Dir returns the directory plans are stored under.
func (s *FileStore) Dir() string {
	return s.dir
}

// PlanPath returns the file path for a suffix.
func (s *FileStore) PlanPath(suffix string) string {
	return filepath.Join(s.dir, "issue-"+suffix+".md")
}

// Write persists the plan atomically: the content lands in a temp file in
// the same directory, then renames over the destination. A reader never
// observes a partial plan.
func (s *FileStore) Write(suffix string, content []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create plans directory")
	}

	path := s.PlanPath(suffix)
	tmp, err := os.CreateTemp(s.dir, "issue-"+suffix+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp plan file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write plan")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close plan file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to finalize plan")
	}

	s.logger.Debug("plan written", "suffix", suffix, "path", path, "bytes", len(content))

	if s.catalog != nil {
		if err := s.catalog.PlanWritten(suffix, path); err != nil {
			// Indexing is best effort; the plan itself is persisted.
			s.logger.Warn("plan catalog notification failed", "suffix", suffix, "error", err)
		}
	}
	return nil
}

// Read returns the plan content for a suffix.
func (s *FileStore) Read(suffix string) ([]byte, error) {
	content, err := os.ReadFile(s.PlanPath(suffix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("plan", suffix).WithCause(errors.ErrPlanNotFound)
		}
		return nil, errors.Wrap(err, "failed to read plan")
	}
	return content, nil
}

// Verify reports whether a plan exists for a suffix.
func (s *FileStore) Verify(suffix string) (bool, error) {
	_, err := os.Stat(s.PlanPath(suffix))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "failed to verify plan")
}

// Delete removes the plan for a suffix. Absence is reported, not failed.
func (s *FileStore) Delete(suffix string) (Code, error) {
	err := os.Remove(s.PlanPath(suffix))
	if err == nil {
		s.logger.Debug("plan deleted", "suffix", suffix)
		return CodeSuccess, nil
	}
	if os.IsNotExist(err) {
		return CodeAlreadyAbsent, nil
	}
	return CodeWriteFailed, errors.Wrap(err, "failed to delete plan")
}
