package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// lockInfo identifies the process holding the shell lock.
type lockInfo struct {
	PID       int    `yaml:"pid"`
	StartedAt string `yaml:"started_at"`
}

// ErrAlreadyRunning indicates another interactive shell owns the audio device.
var ErrAlreadyRunning = errors.New("another tunevault shell is already running")

// LockFilePath returns the path to the shell lock file.
func LockFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tunevault.lock"), nil
}

// AcquireLock claims the shell lock. Only one interactive shell may run per
// user: the playback backend owns the audio device exclusively. A lock left
// by a dead process is reclaimed.
func AcquireLock() error {
	lockPath, err := LockFilePath()
	if err != nil {
		return err
	}

	if info, err := readLockFile(lockPath); err == nil {
		if isProcessRunning(info.PID) {
			return fmt.Errorf("%w (PID: %d)", ErrAlreadyRunning, info.PID)
		}
		os.Remove(lockPath)
	}

	return writeLockFile(lockPath)
}

// ReleaseLock removes the lock if this process owns it.
func ReleaseLock() error {
	lockPath, err := LockFilePath()
	if err != nil {
		return err
	}

	if info, err := readLockFile(lockPath); err == nil {
		if info.PID == os.Getpid() {
			return os.Remove(lockPath)
		}
	}
	return nil
}

func readLockFile(path string) (*lockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info lockInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeLockFile(path string) error {
	info := lockInfo{
		PID:       os.Getpid(),
		StartedAt: time.Now().Format(time.RFC3339),
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}
