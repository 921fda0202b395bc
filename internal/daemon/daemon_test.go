package daemon_test

import (
	"context"
	"testing"

	"vidpress/internal/daemon"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/stage"
	"vidpress/internal/testsupport"
	"vidpress/internal/workflow"
)

type idleHandler struct{}

func (idleHandler) Prepare(context.Context, *queue.Job) error { return nil }
func (idleHandler) Execute(context.Context, *queue.Job) error { return nil }
func (idleHandler) HealthCheck(context.Context) stage.Health  { return stage.Healthy("idle") }

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	manager := workflow.NewManagerWithNotifier(cfg, store, logger, nil)
	manager.RegisterStage(queue.StepCreate, idleHandler{})

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartStop(t *testing.T) {
	d := newDaemon(t)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected running status")
	}
	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected stopped status")
	}
}

func TestSecondStartRejected(t *testing.T) {
	d := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
}

func TestQueueAccessors(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	health, err := d.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Total != 0 {
		t.Fatalf("total = %d", health.Total)
	}

	jobs, err := d.ListQueue(ctx, nil)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("jobs = %d", len(jobs))
	}
}
