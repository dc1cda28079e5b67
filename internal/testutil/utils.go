package testutil

import (
	"log"
	"os"
	"testing"
	"time"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// Eventually polls cond until it returns true or the deadline passes.
func Eventually(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
