package lifecycle

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/drover-sh/drover/internal/errors"
)

const lockFileName = "units.lock"

// FileLock provides cross-process mutual exclusion using flock(2).
// It protects the unit registry when several drover invocations touch the
// same state directory, typically one per worker-agent report.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock for the given state directory. The lock
// file is created inside dir as "units.lock". Call Lock/Unlock to acquire
// and release.
func NewFileLock(dir string) *FileLock {
	return &FileLock{
		path: filepath.Join(dir, lockFileName),
	}
}

// Lock acquires an exclusive file lock, blocking until available.
// The lock file is created if it does not exist.
func (fl *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open lock file")
	}
	fl.file = f

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		fl.file = nil
		return errors.Wrap(err, "failed to lock unit registry")
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking. Returns true if
// the lock was acquired, false if another process holds it.
func (fl *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return false, errors.Wrap(err, "failed to create state directory")
	}
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, errors.Wrap(err, "failed to open lock file")
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to lock unit registry")
	}

	fl.file = f
	return true, nil
}

// Unlock releases the file lock and closes the lock file.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return errors.Wrap(err, "failed to unlock unit registry")
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}
