package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLockLockUnlock(t *testing.T) {
	dir := t.TempDir()
	fl := NewFileLock(dir)

	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}

	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestFileLockUnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(t.TempDir())

	// Unlock without Lock is a no-op
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock without Lock should not error: %v", err)
	}
}

func TestFileLockCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "nested")
	fl := NewFileLock(dir)

	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer fl.Unlock()

	if _, err := os.Stat(filepath.Join(dir, lockFileName)); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}
}

func TestFileLockTryLock(t *testing.T) {
	dir := t.TempDir()
	fl := NewFileLock(dir)

	acquired, err := fl.TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !acquired {
		t.Error("TryLock should succeed when lock is available")
	}

	// flock is per-fd on some systems, so a second handle from the same
	// process may also succeed; cross-process exclusion is the real use
	// case. Just verify no error.
	fl2 := NewFileLock(dir)
	acquired2, err := fl2.TryLock()
	if err != nil {
		t.Fatalf("TryLock2: %v", err)
	}
	if acquired2 {
		_ = fl2.Unlock()
	}

	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestFileLockReusableAfterUnlock(t *testing.T) {
	fl := NewFileLock(t.TempDir())

	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock 1: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock 1: %v", err)
	}
	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock 2: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock 2: %v", err)
	}
}
