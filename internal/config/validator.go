package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "ports.range")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateBranch()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validatePR()...)
	errors = append(errors, c.validatePorts()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateGit validates the GitConfig
func (c *Config) validateGit() []ValidationError {
	var errors []ValidationError

	if c.Git.Remote == "" {
		errors = append(errors, ValidationError{
			Field:   "git.remote",
			Value:   c.Git.Remote,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateBranch validates the BranchConfig
func (c *Config) validateBranch() []ValidationError {
	var errors []ValidationError

	if c.Branch.DefaultType != "" && !IsValidWorkType(c.Branch.DefaultType) {
		errors = append(errors, ValidationError{
			Field:   "branch.default_type",
			Value:   c.Branch.DefaultType,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidWorkTypes(), ", ")),
		})
	}

	return errors
}

// validateAgent validates the AgentConfig
func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if c.Agent.Program == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.program",
			Value:   c.Agent.Program,
			Message: "must not be empty",
		})
	}
	if c.Agent.TmuxWidth <= 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.tmux_width",
			Value:   c.Agent.TmuxWidth,
			Message: "must be positive",
		})
	}
	if c.Agent.TmuxHeight <= 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.tmux_height",
			Value:   c.Agent.TmuxHeight,
			Message: "must be positive",
		})
	}
	if c.Agent.TmuxHistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.tmux_history_limit",
			Value:   c.Agent.TmuxHistoryLimit,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePR validates the PRConfig, including that every reviewer and
// label path pattern compiles as a glob.
func (c *Config) validatePR() []ValidationError {
	var errors []ValidationError

	for pattern := range c.PR.Reviewers.ByPath {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "pr.reviewers.by_path",
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}
	for pattern := range c.PR.Labels {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "pr.labels",
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

// validatePorts validates the PortsConfig
func (c *Config) validatePorts() []ValidationError {
	var errors []ValidationError

	if c.Ports.Base < 1024 || c.Ports.Base > 65535 {
		errors = append(errors, ValidationError{
			Field:   "ports.base",
			Value:   c.Ports.Base,
			Message: "must be between 1024 and 65535",
		})
	}
	if c.Ports.Range <= 0 {
		errors = append(errors, ValidationError{
			Field:   "ports.range",
			Value:   c.Ports.Range,
			Message: "must be positive",
		})
	}
	if c.Ports.Range > 0 && c.Ports.Base+c.Ports.Range-1 > 65535 {
		errors = append(errors, ValidationError{
			Field:   "ports.range",
			Value:   c.Ports.Range,
			Message: "base + range exceeds the maximum port number",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
