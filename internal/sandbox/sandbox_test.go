package sandbox

import (
	"context"
	"testing"
)

func TestNewLocalRejectsMissingRoot(t *testing.T) {
	if _, err := NewLocal("/nonexistent/path/for/sandbox/test"); err == nil {
		t.Fatal("expected error for missing sandbox root")
	}
}

func TestLocalRunExecutesCommand(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer sb.Close()

	status, err := sb.Run(context.Background(), Command{Argv: []string{"echo", "hello"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Code != 0 {
		t.Fatalf("expected exit code 0, got %d", status.Code)
	}
	if status.Stdout != "hello\n" {
		t.Fatalf("expected stdout %q, got %q", "hello\n", status.Stdout)
	}
}

func TestLocalRunCapturesNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer sb.Close()

	status, err := sb.Run(context.Background(), Command{Argv: []string{"sh", "-c", "exit 7"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Code != 7 {
		t.Fatalf("expected exit code 7, got %d", status.Code)
	}
}

func TestLocalRunRejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer sb.Close()

	if _, err := sb.Run(context.Background(), Command{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLocalRoot(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if sb.Root() != dir {
		t.Fatalf("expected root %s, got %s", dir, sb.Root())
	}
}
