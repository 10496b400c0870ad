package id

import (
	"strings"
	"testing"
)

func TestGenerateUniqueness(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		s := gen.GenerateString()
		if seen[s] {
			t.Fatalf("duplicate ULID generated: %s", s)
		}
		seen[s] = true
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	s := Default().GenerateWithPrefix("exec")
	if !strings.HasPrefix(s, "exec_") {
		t.Errorf("expected exec_ prefix, got %s", s)
	}
}

func TestTypedIDs(t *testing.T) {
	execID := NewExecutionID()
	if !strings.HasPrefix(string(execID), ExecutionPrefix+"_") {
		t.Errorf("execution ID missing prefix: %s", execID)
	}

	reqID := NewRequestID()
	if !strings.HasPrefix(string(reqID), RequestPrefix+"_") {
		t.Errorf("request ID missing prefix: %s", reqID)
	}
}

func TestSortability(t *testing.T) {
	a := Default().GenerateString()
	b := Default().GenerateString()

	// ULIDs from the same or later millisecond sort >= earlier ones
	if b < a {
		t.Errorf("expected %s >= %s", b, a)
	}
}
