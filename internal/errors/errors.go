// Package errors provides centralized error definitions and error handling
// utilities for the drover codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and
// classification helpers.
//
// Domain-specific errors represent failures from specific subsystems:
//   - GitError: errors from git plumbing (status, fetch, worktrees, branches)
//   - WorkspaceError: errors from workspace creation/removal
//   - SyncError: errors from integration-branch synchronization
//   - LifecycleError: errors from work-unit phase transitions
//
// Semantic errors represent common conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//
// Every error carries enough structured context (branch, path, suffix,
// captured git output) that a caller can pick a remedy without re-deriving
// it. Destructive remedies are never implied by an error; they are always a
// separate, explicit request.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Git-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorkspaceNotFound indicates that a workspace could not be found.
	ErrWorkspaceNotFound = New("workspace not found")
	// ErrWorkspaceExists indicates that a workspace already exists.
	ErrWorkspaceExists = New("workspace already exists")
	// ErrBranchExists indicates that a branch already exists.
	ErrBranchExists = New("branch already exists")
	// ErrDirtyWorkspace indicates that the workspace has uncommitted changes.
	ErrDirtyWorkspace = New("workspace has uncommitted changes")
	// ErrNoDefaultBranch indicates that no default branch could be resolved.
	ErrNoDefaultBranch = New("no default branch")
	// ErrFetchFailed indicates a fetch from the remote failed.
	ErrFetchFailed = New("fetch failed")
	// ErrDiverged indicates the local and remote branches have diverged.
	ErrDiverged = New("branches have diverged")
)

// Lifecycle-related sentinel errors
var (
	// ErrPlanNotFound indicates that a plan could not be found.
	ErrPlanNotFound = New("plan not found")
	// ErrUnitNotFound indicates that a work unit could not be found.
	ErrUnitNotFound = New("work unit not found")
	// ErrUnitExists indicates that a work unit already exists.
	ErrUnitExists = New("work unit already exists")
	// ErrInvalidTransition indicates a phase transition that the state
	// machine does not permit from the unit's current phase.
	ErrInvalidTransition = New("invalid phase transition")
	// ErrNotMergeable indicates the unit's PR cannot be merged yet.
	ErrNotMergeable = New("pull request is not mergeable")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GitError represents errors from git plumbing operations.
//
// Example:
//
//	err := errors.NewGitError("failed to create worktree", errors.ErrBranchExists)
//	err = err.WithBranch("feature/issue-42").WithPath("/repo/worktrees/issue-42")
type GitError struct {
	Branch    string
	Path      string
	GitOutput string // Captured git command output

	message string
	cause   error
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{message: message, cause: cause}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithPath adds a repository or worktree path to the error context.
func (e *GitError) WithPath(path string) *GitError {
	e.Path = path
	return e
}

// WithGitOutput adds captured git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying error.
func (e *GitError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// WorkspaceError represents errors from workspace management.
type WorkspaceError struct {
	Suffix     string
	Path       string
	DirtyFiles []string // Populated when uncommitted changes block removal

	message string
	cause   error
}

// NewWorkspaceError creates a new WorkspaceError.
func NewWorkspaceError(message string, cause error) *WorkspaceError {
	return &WorkspaceError{message: message, cause: cause}
}

// WithSuffix adds a work-unit suffix to the error context.
func (e *WorkspaceError) WithSuffix(suffix string) *WorkspaceError {
	e.Suffix = suffix
	return e
}

// WithPath adds the workspace path to the error context.
func (e *WorkspaceError) WithPath(path string) *WorkspaceError {
	e.Path = path
	return e
}

// WithDirtyFiles records the files blocking a non-forced removal.
func (e *WorkspaceError) WithDirtyFiles(files []string) *WorkspaceError {
	e.DirtyFiles = files
	return e
}

// Error returns the formatted error message.
func (e *WorkspaceError) Error() string {
	var parts []string
	if e.Suffix != "" {
		parts = append(parts, fmt.Sprintf("suffix=%s", e.Suffix))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "workspace error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("workspace error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if len(e.DirtyFiles) > 0 {
		msg = fmt.Sprintf("%s\ndirty files: %s", msg, strings.Join(e.DirtyFiles, ", "))
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying error.
func (e *WorkspaceError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *WorkspaceError) Is(target error) bool {
	if _, ok := target.(*WorkspaceError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// SyncError represents errors from integration-branch synchronization.
// For divergence it carries both commit lists so a human can choose a
// remedy without re-running anything.
type SyncError struct {
	Branch        string
	LocalCommits  []string // Commits the remote lacks
	RemoteCommits []string // Commits the local branch lacks

	message string
	cause   error
}

// NewSyncError creates a new SyncError.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{message: message, cause: cause}
}

// WithBranch adds the integration branch name to the error context.
func (e *SyncError) WithBranch(branch string) *SyncError {
	e.Branch = branch
	return e
}

// WithDivergence records the commits on each side of a divergence.
func (e *SyncError) WithDivergence(local, remote []string) *SyncError {
	e.LocalCommits = local
	e.RemoteCommits = remote
	return e
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	prefix := "sync error"
	if e.Branch != "" {
		prefix = fmt.Sprintf("sync error [branch=%s]", e.Branch)
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if len(e.LocalCommits) > 0 || len(e.RemoteCommits) > 0 {
		msg = fmt.Sprintf("%s (%d local-only, %d remote-only commits)",
			msg, len(e.LocalCommits), len(e.RemoteCommits))
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *SyncError) Is(target error) bool {
	if _, ok := target.(*SyncError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// LifecycleError represents errors from work-unit phase transitions.
type LifecycleError struct {
	Suffix string
	Phase  string

	message string
	cause   error
}

// NewLifecycleError creates a new LifecycleError.
func NewLifecycleError(message string, cause error) *LifecycleError {
	return &LifecycleError{message: message, cause: cause}
}

// WithSuffix adds a work-unit suffix to the error context.
func (e *LifecycleError) WithSuffix(suffix string) *LifecycleError {
	e.Suffix = suffix
	return e
}

// WithPhase adds the unit's current phase to the error context.
func (e *LifecycleError) WithPhase(phase string) *LifecycleError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *LifecycleError) Error() string {
	var parts []string
	if e.Suffix != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.Suffix))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}

	prefix := "lifecycle error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("lifecycle error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying error.
func (e *LifecycleError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *LifecycleError) Is(target error) bool {
	if _, ok := target.(*LifecycleError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("plan", "42-api")
//	fmt.Println(err) // "plan '42-api' not found"
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Unwrap returns the underlying error.
func (e *AlreadyExistsError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	Field string
	Value any

	message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{message: message}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with an additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
