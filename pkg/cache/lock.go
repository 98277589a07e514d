package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	lockSuffix   = ".lock"
	pollBusy     = 200 * time.Millisecond
	pollUnstable = 100 * time.Millisecond
)

// LockPath returns the lock file used for target.
func LockPath(target string) string {
	return target + lockSuffix
}

// Lock takes an exclusive lock on target (a file about to be written) by
// creating a lock file next to it holding a timestamp and the owner pid.
// A lock held by a live process is waited for; a lock left behind by a dead
// process is removed. The returned function releases the lock.
func Lock(target string) (func() error, error) {
	lockFile := LockPath(target)

	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir for lock: %w", err)
	}

	for {
		acquired, err := tryLock(lockFile)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() error {
				return os.Remove(lockFile)
			}, nil
		}

		pid, err := lockOwner(lockFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// released in between, retry right away
		case err != nil:
			time.Sleep(pollUnstable)
		case pid == 0:
			// unreadable content, nobody can release it
			os.Remove(lockFile)
		case isPidAlive(pid):
			time.Sleep(pollBusy)
		default:
			os.Remove(lockFile)
		}
	}
}

func tryLock(lockFile string) (bool, error) {
	f, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	content := fmt.Sprintf("%s %d", time.Now().Format(time.RFC3339), os.Getpid())
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(lockFile)
		return false, fmt.Errorf("failed to write to lock file: %w", err)
	}
	return true, f.Close()
}

// lockOwner returns the pid stored in lockFile, 0 if the content is
// malformed.
func lockOwner(lockFile string) (int, error) {
	content, err := os.ReadFile(lockFile)
	if err != nil {
		return 0, err
	}

	parts := strings.Fields(string(content))
	if len(parts) < 2 {
		return 0, nil
	}
	pid, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, nil
	}
	return pid, nil
}

func isPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}
	// EPERM: the process exists but belongs to someone else
	return true
}
