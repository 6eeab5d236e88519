package encoder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

func stubCommand(t *testing.T, script string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	t.Cleanup(func() { commandContext = original })
}

func TestStartRejectsEmptyInput(t *testing.T) {
	cli := NewCLI(t.TempDir())
	if _, err := cli.Start(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty input path")
	}
}

func TestWaitSuccess(t *testing.T) {
	stubCommand(t, "exit 0")
	cli := NewCLI(t.TempDir())
	proc, err := cli.Start(context.Background(), "show.mp4")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if proc.InputPath() != "show.mp4" {
		t.Fatalf("unexpected input path %q", proc.InputPath())
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}

func TestWaitReportsFailure(t *testing.T) {
	stubCommand(t, "exit 3")
	cli := NewCLI(t.TempDir())
	proc, err := cli.Start(context.Background(), "show.mp4")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	err = proc.Wait()
	if err == nil {
		t.Fatal("expected failure for nonzero exit")
	}
	if errors.Is(err, ErrSkipped) {
		t.Fatal("plain failure must not report as skipped")
	}
}

func TestSkipTerminatesEncode(t *testing.T) {
	stubCommand(t, "sleep 30")
	cli := NewCLI(t.TempDir())
	proc, err := cli.Start(context.Background(), "show.mp4")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	proc.Skip(time.Second)
	select {
	case err := <-done:
		if !errors.Is(err, ErrSkipped) {
			t.Fatalf("expected ErrSkipped, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("wait did not unblock after skip")
	}
}

func TestSkipAfterExitLeavesPIDAlone(t *testing.T) {
	stubCommand(t, "exit 0")
	cli := NewCLI(t.TempDir())
	proc, err := cli.Start(context.Background(), "show.mp4")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	proc.Skip(time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// Wait already reaped the child, so the handle must refuse further
	// signals instead of reaching whatever now owns the PID.
	if err := proc.(*process).cmd.Process.Kill(); !errors.Is(err, os.ErrProcessDone) {
		t.Fatalf("expected ErrProcessDone after reap, got %v", err)
	}
}

func TestSkipIsIdempotent(t *testing.T) {
	stubCommand(t, "sleep 30")
	cli := NewCLI(t.TempDir())
	proc, err := cli.Start(context.Background(), "show.mp4")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	proc.Skip(time.Second)
	proc.Skip(time.Second)
	if err := proc.Wait(); !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
}
