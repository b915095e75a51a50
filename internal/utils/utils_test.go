package utils

import (
	"context"
	"strings"
	"testing"
)

func TestSafeCommandCapturesStderr(t *testing.T) {
	if err := RequireBinary("sh"); err != nil {
		t.Skip(err)
	}

	cmd := NewSafeCommand(context.Background(), "sh", "-c", "echo out; echo boom >&2; exit 3")
	out, err := cmd.Output()
	if err == nil {
		t.Fatal("Expected non-zero exit error, got nil")
	}

	// Stdout must stay clean of diagnostics
	if strings.TrimSpace(string(out)) != "out" {
		t.Errorf("Expected stdout 'out', got %q", out)
	}
	if got := cmd.Tail(64); got != "boom" {
		t.Errorf("Expected stderr tail 'boom', got %q", got)
	}
}

func TestSafeCommandTail(t *testing.T) {
	cmd := NewSafeCommand(context.Background(), "true")
	cmd.Stderr.WriteString("0123456789")

	if got := cmd.Tail(4); got != "6789" {
		t.Errorf("Tail(4) = %q, want %q", got, "6789")
	}
	if got := cmd.Tail(100); got != "0123456789" {
		t.Errorf("Tail(100) = %q, want full buffer", got)
	}
}

func TestRequireBinary(t *testing.T) {
	if err := RequireBinary("definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("Expected error for missing binary")
	}
}
