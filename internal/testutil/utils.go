package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns the logger handed to chat and api components under
// test, prefixed so interleaved pump output is attributable.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[onda-chat-test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
