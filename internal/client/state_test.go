package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestCurrentThreadID_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	id := uuid.NewString()
	if err := SaveCurrentThreadID(id); err != nil {
		t.Fatalf("SaveCurrentThreadID() error: %v", err)
	}

	got, err := LoadCurrentThreadID()
	if err != nil {
		t.Fatalf("LoadCurrentThreadID() error: %v", err)
	}
	if got != id {
		t.Errorf("LoadCurrentThreadID() = %q, want %q", got, id)
	}
}

func TestLoadCurrentThreadID_Absent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got, err := LoadCurrentThreadID()
	if err != nil {
		t.Fatalf("LoadCurrentThreadID() error: %v", err)
	}
	if got != "" {
		t.Errorf("LoadCurrentThreadID() = %q, want empty when no state exists", got)
	}
}

func TestLoadCurrentThreadID_Corrupt(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, stateDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, currentThreadFile), []byte("not-a-uuid\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCurrentThreadID(); err == nil {
		t.Fatal("LoadCurrentThreadID(corrupt) expected error")
	}
}

func TestSaveCurrentThreadID_RejectsInvalidID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := SaveCurrentThreadID("definitely-not-a-uuid"); err == nil {
		t.Fatal("SaveCurrentThreadID(invalid) expected error")
	}
}

func TestClearCurrentThreadID_Idempotent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := ClearCurrentThreadID(); err != nil {
		t.Fatalf("ClearCurrentThreadID() with no state: %v", err)
	}

	id := uuid.NewString()
	if err := SaveCurrentThreadID(id); err != nil {
		t.Fatal(err)
	}
	if err := ClearCurrentThreadID(); err != nil {
		t.Fatalf("ClearCurrentThreadID() error: %v", err)
	}
	if got, _ := LoadCurrentThreadID(); got != "" {
		t.Errorf("thread id = %q after clear, want empty", got)
	}
}

func TestEnsureUserID_StableAcrossCalls(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	first, err := EnsureUserID()
	if err != nil {
		t.Fatalf("EnsureUserID() error: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("EnsureUserID() = %q, not a UUID", first)
	}

	second, err := EnsureUserID()
	if err != nil {
		t.Fatalf("EnsureUserID() second call error: %v", err)
	}
	if second != first {
		t.Errorf("EnsureUserID() changed between calls: %q then %q", first, second)
	}
}
