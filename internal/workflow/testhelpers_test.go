package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"devlens/internal/config"
	"devlens/internal/notifications"
	"devlens/internal/pipeline"
	"devlens/internal/session"
	"devlens/internal/testsupport"
	"devlens/internal/workflow"
)

type runnerFunc func(ctx context.Context, job pipeline.Job, report pipeline.ProgressFunc) (pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, job pipeline.Job, report pipeline.ProgressFunc) (pipeline.Result, error) {
	return f(ctx, job, report)
}

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

type harness struct {
	cfg      *config.Config
	sessions *session.Controller
	manager  *workflow.Manager
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts ...workflow.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	sessions := session.NewController()
	notifier := &recordingNotifier{}
	opts = append([]workflow.Option{workflow.WithNotifier(notifier), workflow.WithSweepInterval(time.Hour)}, opts...)
	manager, err := workflow.NewManager(cfg, sessions, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(manager.Stop)
	return &harness{cfg: cfg, sessions: sessions, manager: manager, notifier: notifier}
}

func (h *harness) create(t *testing.T, id, title string) {
	t.Helper()
	if _, err := h.sessions.Create(context.Background(), id, session.Metadata{Title: title}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}
