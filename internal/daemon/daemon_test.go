package daemon_test

import (
	"context"
	"testing"
	"time"

	"rerun/internal/daemon"
	"rerun/internal/logging"
	"rerun/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PlaylistPath != cfg.Paths.PlaylistPath {
		t.Fatalf("unexpected playlist path: %q", status.PlaylistPath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { first.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { second.Close() })
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestDaemonDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	deps := d.Dependencies()
	if len(deps) == 0 {
		t.Fatal("expected dependency report")
	}
	names := make(map[string]bool, len(deps))
	for _, dep := range deps {
		names[dep.Name] = true
	}
	for _, want := range []string{"encoder", "ffprobe", "renderer"} {
		if !names[want] {
			t.Fatalf("missing dependency entry %q", want)
		}
	}
}
