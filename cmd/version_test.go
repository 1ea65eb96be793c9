package cmd

import (
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	originalVersion := Version
	originalBuildTime := BuildTime
	originalGitCommit := GitCommit
	defer func() {
		Version = originalVersion
		BuildTime = originalBuildTime
		GitCommit = originalGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2026-01-02T15:04:05Z"
	GitCommit = "abc1234"
	t.Setenv("GEMINI_API_KEY", "")

	output := captureStdout(t, runVersion)

	for _, expected := range []string{
		"Docent 1.2.3",
		"Build Time: 2026-01-02T15:04:05Z",
		"Git Commit: abc1234",
		"GEMINI_API_KEY: Not set",
		"Hint:",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("version output missing %q\nGot: %s", expected, output)
		}
	}
}

func TestRunVersion_KeyMasking(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "long key shows edges only",
			key:      "AIzaSyExample123456",
			expected: "AIza...3456 (configured)",
		},
		{
			name:     "short key hidden entirely",
			key:      "abc",
			expected: "GEMINI_API_KEY: (configured)",
		},
		{
			name:     "missing key hints setup",
			key:      "",
			expected: "GEMINI_API_KEY: Not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", tt.key)

			output := captureStdout(t, runVersion)
			if !strings.Contains(output, tt.expected) {
				t.Errorf("expected output to contain %q\nGot: %s", tt.expected, output)
			}
			if len(tt.key) >= 8 && strings.Contains(output, tt.key) {
				t.Errorf("output leaked the full key\nGot: %s", output)
			}
		})
	}
}
