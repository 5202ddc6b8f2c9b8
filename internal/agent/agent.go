// Package agent spawns and disposes worker agents for lifecycle phases.
//
// An agent is an external interactive program (by default `claude`) running
// inside an isolated tmux session, one session per workspace per role. The
// orchestrator never reads agent output while the agent runs; it only
// spawns, and later disposes, preserving the session scrollback as the
// agent's findings.
package agent

import (
	"context"
	"time"
)

// Role names what an agent is for within a lifecycle unit.
type Role string

const (
	// RolePlanner explores the issue and writes the plan.
	RolePlanner Role = "planner"
	// RoleBuilder implements the approved plan.
	RoleBuilder Role = "builder"
)

// Spec describes the agent to spawn.
type Spec struct {
	Role   Role
	Suffix string
	// WorkDir is the workspace path the agent runs in.
	WorkDir string
	// Prompt is the initial task text handed to the agent program.
	Prompt string
}

// Handle identifies a running agent so it can be disposed later. Handles
// are persisted in the unit registry, so they carry no live resources.
type Handle struct {
	Role      Role      `json:"role"`
	Suffix    string    `json:"suffix"`
	Session   string    `json:"session"`
	SpawnedAt time.Time `json:"spawned_at"`
}

// Archive describes where a disposed agent's findings were preserved.
type Archive struct {
	// Path is the archived scrollback file. Empty when the session was
	// already gone.
	Path string
	// WasRunning reports whether the session existed at dispose time.
	WasRunning bool
}

// Spawner manages agent processes. Implementations must make Dispose
// idempotent: disposing an agent whose session no longer exists is a
// satisfied outcome, not an error.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (*Handle, error)
	Dispose(ctx context.Context, handle *Handle) (*Archive, error)
}
