package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Local state lives under ~/.docent. The current thread file is the
// deep-link analog: it is written on every thread switch and read on
// startup so a new session reopens the same conversation.
const (
	stateDir          = ".docent"
	currentThreadFile = "current_thread"
	userIDFile        = "user_id"

	lockTimeout = 10 * time.Second
	lockRetry   = 100 * time.Millisecond
)

// statePath returns the full path of a state file, creating ~/.docent if
// needed.
func statePath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, stateDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// readState reads one state file under a shared lock. A missing file
// returns ("", nil).
func readState(name string) (string, error) {
	path, err := statePath(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return "", fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("timeout waiting for state file lock")
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read state file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeState writes one state file atomically: exclusive lock, temp file,
// rename.
func writeState(name, value string, perm os.FileMode) error {
	path, err := statePath(name)
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return fmt.Errorf("timeout waiting for state file lock")
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value+"\n"), perm); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// LoadCurrentThreadID returns the persisted current thread id, or "" when
// no thread is current. A corrupt file is an error, not an empty result.
func LoadCurrentThreadID() (string, error) {
	raw, err := readState(currentThreadFile)
	if err != nil || raw == "" {
		return "", err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid thread id in state file: %w", err)
	}
	return id.String(), nil
}

// SaveCurrentThreadID persists the current thread id.
func SaveCurrentThreadID(threadID string) error {
	id, err := uuid.Parse(threadID)
	if err != nil {
		return fmt.Errorf("invalid thread id: %w", err)
	}
	return writeState(currentThreadFile, id.String(), 0644)
}

// ClearCurrentThreadID removes the persisted current thread. Clearing when
// none is set is not an error.
func ClearCurrentThreadID() error {
	path, err := statePath(currentThreadFile)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

// EnsureUserID returns the persisted user identity, generating and saving
// a fresh one on first use.
func EnsureUserID() (string, error) {
	raw, err := readState(userIDFile)
	if err != nil {
		return "", err
	}
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid user id in state file: %w", err)
		}
		return id.String(), nil
	}

	id := uuid.NewString()
	if err := writeState(userIDFile, id, 0600); err != nil {
		return "", err
	}
	return id, nil
}
