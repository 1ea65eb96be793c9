package mcp

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the package. Sessions are
// closed in test cleanup, so nothing should outlive the run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
