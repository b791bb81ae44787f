package logging

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestRaise(t *testing.T) {
	if got := Raise(log.InfoLevel, 0); got != log.InfoLevel {
		t.Errorf("Expected info, got %s", got)
	}
	if got := Raise(log.InfoLevel, 1); got != log.DebugLevel {
		t.Errorf("Expected debug, got %s", got)
	}
	if got := Raise(log.InfoLevel, 5); got != log.TraceLevel {
		t.Errorf("Expected trace cap, got %s", got)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", 0); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}
	logger.Trace("hidden")
	logger.Debug("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Unexpected output %q", buf.String())
	}
	if logger == log.StandardLogger() {
		t.Error("New must not return the standard logger")
	}
}
