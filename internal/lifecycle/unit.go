// Package lifecycle drives work units through the issue lifecycle.
//
// Each unit progresses Created → Planning → PlanPosted → Building → Review
// → Cleanup → Done, isolated from every other unit by its own workspace,
// branch, plan file, and agent sessions. Agent reports are status markers;
// only explicit approval commands advance a unit past a gate.
package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/agent"
	"github.com/drover-sh/drover/internal/errors"
)

// Phase is a work unit's position in the lifecycle.
type Phase int

const (
	// PhaseCreated is a unit that exists but has no workspace yet.
	PhaseCreated Phase = iota
	// PhasePlanning has a workspace and a live planner agent.
	PhasePlanning
	// PhasePlanPosted marks that the planner reported a written plan.
	// Informational: the unit does not advance until the plan is approved.
	PhasePlanPosted
	// PhaseBuilding has a live builder agent implementing the plan.
	PhaseBuilding
	// PhaseReview marks that the builder reported an open pull request.
	PhaseReview
	// PhaseCleanup is mid-teardown after issue approval.
	PhaseCleanup
	// PhaseDone is fully torn down; the suffix is free for reuse.
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseCreated:    "created",
	PhasePlanning:   "planning",
	PhasePlanPosted: "plan_posted",
	PhaseBuilding:   "building",
	PhaseReview:     "review",
	PhaseCleanup:    "cleanup",
	PhaseDone:       "done",
}

// String returns the script-facing phase name.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParsePhase converts a phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return 0, errors.NewValidationError("unknown phase").WithField("phase").WithValue(s)
}

// MarshalText implements encoding.TextMarshaler so units persist phases by
// name, not by ordinal.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Unit is one issue (or issue stage) moving through the lifecycle.
type Unit struct {
	Suffix        string        `json:"suffix"`
	IssueID       int           `json:"issue_id"`
	Stage         string        `json:"stage,omitempty"`
	Phase         Phase         `json:"phase"`
	WorkType      string        `json:"work_type"`
	WorkspacePath string        `json:"workspace_path,omitempty"`
	Branch        string        `json:"branch,omitempty"`
	PRURL         string        `json:"pr_url,omitempty"`
	Planner       *agent.Handle `json:"planner,omitempty"`
	Builder       *agent.Handle `json:"builder,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Active reports whether the unit still holds resources. Done units have
// released their suffix.
func (u *Unit) Active() bool {
	return u.Phase != PhaseDone
}

// Suffix derives the canonical work-unit identity from an issue id and an
// optional stage. The stage is sanitized to lowercase alphanumerics and
// hyphens with runs collapsed; a stage that sanitizes to nothing is
// rejected rather than silently dropped.
func Suffix(issueID int, stage string) (string, error) {
	if issueID <= 0 {
		return "", errors.NewValidationError("issue id must be positive").
			WithField("issue_id").
			WithValue(issueID)
	}
	if stage == "" {
		return strconv.Itoa(issueID), nil
	}

	sanitized := sanitizeStage(stage)
	if sanitized == "" {
		return "", errors.NewValidationError("stage has no usable characters").
			WithField("stage").
			WithValue(stage)
	}
	return fmt.Sprintf("%d-%s", issueID, sanitized), nil
}

func sanitizeStage(stage string) string {
	var b strings.Builder
	lastHyphen := true // Suppress a leading hyphen
	for _, r := range strings.ToLower(stage) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
