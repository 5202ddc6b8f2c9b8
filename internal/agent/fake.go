package agent

import (
	"context"
	"sync"
	"time"
)

// FakeSpawner records spawn and dispose calls for tests. Sessions are
// tracked in memory so Dispose reports WasRunning faithfully.
type FakeSpawner struct {
	mu       sync.Mutex
	Spawned  []Spec
	Disposed []string // session names

	// SpawnErr, when set, fails the next Spawn.
	SpawnErr error
	// DisposeErr, when set, fails the next Dispose of a live session.
	DisposeErr error

	live map[string]bool
}

// NewFakeSpawner creates an empty FakeSpawner.
func NewFakeSpawner() *FakeSpawner {
	return &FakeSpawner{live: make(map[string]bool)}
}

// Spawn records the spec and marks the session live.
func (f *FakeSpawner) Spawn(_ context.Context, spec Spec) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SpawnErr != nil {
		err := f.SpawnErr
		f.SpawnErr = nil
		return nil, err
	}

	session := SessionName(spec.Suffix, spec.Role)
	f.Spawned = append(f.Spawned, spec)
	f.live[session] = true

	return &Handle{
		Role:      spec.Role,
		Suffix:    spec.Suffix,
		Session:   session,
		SpawnedAt: time.Now(),
	}, nil
}

// Dispose records the session and marks it gone. Disposing an unknown
// session reports WasRunning=false with no error.
func (f *FakeSpawner) Dispose(_ context.Context, handle *Handle) (*Archive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if handle == nil {
		return &Archive{}, nil
	}
	f.Disposed = append(f.Disposed, handle.Session)

	if !f.live[handle.Session] {
		return &Archive{WasRunning: false}, nil
	}
	if f.DisposeErr != nil {
		err := f.DisposeErr
		f.DisposeErr = nil
		return nil, err
	}
	delete(f.live, handle.Session)
	return &Archive{WasRunning: true, Path: "/dev/null"}, nil
}

// Live reports whether a session is currently live.
func (f *FakeSpawner) Live(session string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[session]
}
