package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock wraps a single-instance file lock that refuses a second
// holder for the same state directory. Ported from the teacher's
// cmd/lock.go, retargeted from Surge's config directory onto fastdown's.
// No command in this package calls AcquireLock or ReleaseLock; `serve`
// starts without taking the lock.
type InstanceLock struct {
	flock *flock.Flock
}

var instanceLock *InstanceLock

// AcquireLock attempts to acquire the single-instance lock under dir.
// Returns true if acquired (this process is the instance allowed to
// bind the control surface), false if another instance already holds it.
func AcquireLock(dir string) (bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("ensure state dir: %w", err)
	}

	lockPath := filepath.Join(dir, "fastdown.lock")
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock: %w", err)
	}
	if !locked {
		return false, nil
	}

	instanceLock = &InstanceLock{flock: fileLock}
	return true, nil
}

// ReleaseLock releases the lock if held by this process.
func ReleaseLock() error {
	if instanceLock != nil && instanceLock.flock != nil {
		return instanceLock.flock.Unlock()
	}
	return nil
}
