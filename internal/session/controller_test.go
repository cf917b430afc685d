package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"devlens/internal/calendar"
	"devlens/internal/progress"
	"devlens/internal/services"
	"devlens/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newController(t *testing.T, opts ...session.Option) (*session.Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch}
	opts = append([]session.Option{session.WithClock(clock.Now)}, opts...)
	return session.NewController(opts...), clock
}

type staticNamer map[string]string

func (n staticNamer) DisplayName(mode string) string { return n[mode] }

func TestCreateDefaults(t *testing.T) {
	ctrl, _ := newController(t, session.WithModeNamer(staticNamer{"bug_report": "Bug Report"}))
	ctx := context.Background()

	proj, err := ctrl.Create(ctx, "s1", session.Metadata{ProjectName: "Checkout", Mode: "bug_report"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if proj.Status != string(session.StatusDraft) || proj.Progress != 0 || proj.Stage != "" {
		t.Fatalf("unexpected initial projection %+v", proj)
	}
	if proj.Title != "Checkout" {
		t.Fatalf("expected title from project name, got %q", proj.Title)
	}
	if proj.ModeName != "Bug Report" {
		t.Fatalf("expected mode name from catalog, got %q", proj.ModeName)
	}
	if !proj.CreatedAt.Equal(epoch) || !proj.LastUpdated.Equal(epoch) {
		t.Fatalf("unexpected timestamps %+v", proj)
	}

	untitled, err := ctrl.Create(ctx, "s2", session.Metadata{StartImmediately: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if untitled.Title != "Untitled Session" || untitled.Status != string(session.StatusProcessing) {
		t.Fatalf("unexpected projection %+v", untitled)
	}

	generated, err := ctrl.Create(ctx, "", session.Metadata{Title: "Generated"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if generated.SessionID == "" {
		t.Fatal("expected generated session id")
	}
}

func TestCreateConflictLeavesRecordUntouched(t *testing.T) {
	ctrl, _ := newController(t)
	ctx := context.Background()
	if _, err := ctrl.Create(ctx, "s1", session.Metadata{Title: "Original"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := ctrl.Create(ctx, "s1", session.Metadata{Title: "Replacement"})
	if !errors.Is(err, session.ErrSessionExists) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	proj, ok := ctrl.GetStatus(ctx, "s1")
	if !ok || proj.Title != "Original" {
		t.Fatalf("record was modified by conflicting create: %+v", proj)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	ctrl, clock := newController(t)
	ctx := context.Background()
	if _, err := ctrl.Create(ctx, "s1", session.Metadata{Title: "Demo"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(time.Second)
	if !ctrl.StartProcessing(ctx, "s1") {
		t.Fatal("StartProcessing returned false")
	}
	proj, _ := ctrl.GetStatus(ctx, "s1")
	if proj.Status != "processing" || proj.Stage != session.StageInitializing || proj.Progress != 0 {
		t.Fatalf("unexpected projection after start %+v", proj)
	}
	if ctrl.StartProcessing(ctx, "s1") {
		t.Fatal("StartProcessing should be a no-op outside draft")
	}

	clock.Advance(time.Second)
	ctrl.UpdateProgress(ctx, "s1", "transcribing", 150)
	proj, _ = ctrl.GetStatus(ctx, "s1")
	if proj.Progress != 100 || proj.Stage != "transcribing" {
		t.Fatalf("progress not clamped: %+v", proj)
	}
	if proj.StageProgress != (progress.Stages{}) {
		t.Fatalf("UpdateProgress must not touch the breakdown: %+v", proj.StageProgress)
	}

	ctrl.UpdateProgressDetailed(ctx, "s1", "analyzing_frames", 50, progress.Stages{STT: 100, Frames: 60, Doc: -4})
	proj, _ = ctrl.GetStatus(ctx, "s1")
	if proj.StageProgress != (progress.Stages{STT: 100, Frames: 60, Doc: 0}) {
		t.Fatalf("unexpected breakdown %+v", proj.StageProgress)
	}

	clock.Advance(time.Second)
	if !ctrl.Complete(ctx, "s1", "/artifacts/s1/documentation.md", "3 segments") {
		t.Fatal("Complete returned false")
	}
	proj, _ = ctrl.GetStatus(ctx, "s1")
	if proj.Status != "completed" || proj.Progress != 100 || proj.Stage != "completed" || proj.ResultPath == "" {
		t.Fatalf("unexpected completed projection %+v", proj)
	}
	if !proj.LastUpdated.Equal(epoch.Add(3 * time.Second)) {
		t.Fatalf("LastUpdated not advanced: %v", proj.LastUpdated)
	}
}

func TestTerminalRecordsAreFrozen(t *testing.T) {
	ctrl, clock := newController(t)
	ctx := context.Background()
	ctrl.Create(ctx, "s1", session.Metadata{StartImmediately: true})
	ctrl.UpdateProgress(ctx, "s1", "generating_docs", 40)
	if !ctrl.Fail(ctx, "s1", "llm unavailable") {
		t.Fatal("Fail returned false")
	}
	failed, _ := ctrl.GetStatus(ctx, "s1")
	if failed.Progress != 40 || failed.Error != "llm unavailable" {
		t.Fatalf("fail should keep progress and record error: %+v", failed)
	}

	clock.Advance(time.Minute)
	if ctrl.UpdateProgress(ctx, "s1", "late", 90) {
		t.Fatal("UpdateProgress mutated a terminal record")
	}
	if ctrl.Complete(ctx, "s1", "x", "y") || ctrl.Cancel(ctx, "s1") || ctrl.Fail(ctx, "s1", "again") {
		t.Fatal("terminal record accepted a transition")
	}
	after, _ := ctrl.GetStatus(ctx, "s1")
	if after != failed {
		t.Fatalf("terminal record changed:\nbefore %+v\nafter  %+v", failed, after)
	}
}

func TestCancel(t *testing.T) {
	ctrl, _ := newController(t)
	ctx := context.Background()
	ctrl.Create(ctx, "draft", session.Metadata{})
	ctrl.Create(ctx, "running", session.Metadata{StartImmediately: true})

	if !ctrl.Cancel(ctx, "draft") || !ctrl.Cancel(ctx, "running") {
		t.Fatal("expected cancel from non-terminal states")
	}
	if ctrl.Cancel(ctx, "running") {
		t.Fatal("expected false for an already cancelled session")
	}
	if ctrl.Cancel(ctx, "unknown") {
		t.Fatal("expected false for an unknown id")
	}
	if !ctrl.IsCancelled("running") {
		t.Fatal("IsCancelled should report true")
	}
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	ctrl, _ := newController(t)
	ctx := context.Background()
	if ctrl.StartProcessing(ctx, "nope") || ctrl.UpdateProgress(ctx, "nope", "x", 1) ||
		ctrl.Complete(ctx, "nope", "", "") || ctrl.Fail(ctx, "nope", "") {
		t.Fatal("expected unknown ids to report false")
	}
	if _, ok := ctrl.GetStatus(ctx, "nope"); ok {
		t.Fatal("expected no projection")
	}
	if ctrl.Count() != 0 {
		t.Fatal("unknown-id calls must not create records")
	}
}

func TestLastUpdatedNeverMovesBackwards(t *testing.T) {
	ctrl, clock := newController(t)
	ctx := context.Background()
	ctrl.Create(ctx, "s1", session.Metadata{StartImmediately: true})
	clock.Advance(time.Minute)
	ctrl.UpdateProgress(ctx, "s1", "transcribing", 10)
	clock.Advance(-30 * time.Second)
	ctrl.UpdateProgress(ctx, "s1", "transcribing", 12)

	rec, _ := ctrl.Record("s1")
	if !rec.LastUpdated.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("LastUpdated regressed to %v", rec.LastUpdated)
	}
}

func TestZombieRemediation(t *testing.T) {
	ctrl, clock := newController(t)
	ctx := context.Background()
	ctrl.Create(ctx, "stale", session.Metadata{StartImmediately: true})
	ctrl.UpdateProgress(ctx, "stale", "generating_docs", 75)
	ctrl.Create(ctx, "draft", session.Metadata{})

	clock.Advance(10 * time.Minute)
	if proj, ok := ctrl.GetStatus(ctx, "stale"); !ok || proj.Status != "processing" {
		t.Fatalf("600s exactly is not stale: %+v", proj)
	}

	clock.Advance(time.Second)
	proj, ok := ctrl.GetStatus(ctx, "stale")
	if !ok || proj.Status != "failed" {
		t.Fatalf("expected zombie to be failed, got %+v", proj)
	}
	if !strings.HasPrefix(proj.Error, "Zombie session:") || !session.IsZombieError(proj.Error) {
		t.Fatalf("unexpected zombie error %q", proj.Error)
	}
	if proj.Progress != 75 {
		t.Fatalf("zombie should keep progress, got %d", proj.Progress)
	}
	if d, _ := ctrl.GetStatus(ctx, "draft"); d.Status != "draft" {
		t.Fatalf("drafts are never reaped: %+v", d)
	}
	if _, ok := ctrl.GetActiveSession(ctx); ok {
		t.Fatal("a zombie must not be surfaced as active")
	}
}

func TestWithStaleThreshold(t *testing.T) {
	ctrl, clock := newController(t, session.WithStaleThreshold(30*time.Second))
	ctx := context.Background()
	ctrl.Create(ctx, "s1", session.Metadata{StartImmediately: true})
	clock.Advance(31 * time.Second)
	if n := ctrl.ReapStale(ctx); n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if n := ctrl.ReapStale(ctx); n != 0 {
		t.Fatalf("reaping must be idempotent, got %d", n)
	}
}

func TestGetActiveSessionPrefersMostRecentlyUpdated(t *testing.T) {
	ctrl, clock := newController(t)
	ctx := context.Background()
	ctrl.Create(ctx, "a", session.Metadata{StartImmediately: true})
	clock.Advance(time.Second)
	ctrl.Create(ctx, "b", session.Metadata{StartImmediately: true})
	clock.Advance(time.Second)
	ctrl.UpdateProgress(ctx, "a", "transcribing", 5)

	proj, ok := ctrl.GetActiveSession(ctx)
	if !ok || proj.SessionID != "a" {
		t.Fatalf("expected most recently updated session a, got %+v", proj)
	}
	if proj.Source != session.SourceSession {
		t.Fatalf("unexpected source %q", proj.Source)
	}
}

type draftSource struct {
	drafts []calendar.DraftSession
}

func (d draftSource) ListDrafts(_ context.Context, statuses ...calendar.DraftStatus) []calendar.DraftSession {
	var out []calendar.DraftSession
	for _, draft := range d.drafts {
		for _, s := range statuses {
			if draft.Status == s {
				out = append(out, draft)
			}
		}
	}
	return out
}

func (d draftSource) GetDraft(_ context.Context, id string) (calendar.DraftSession, bool) {
	for _, draft := range d.drafts {
		if draft.SessionID == id {
			return draft, true
		}
	}
	return calendar.DraftSession{}, false
}

func TestGetActiveSessionCalendarFallback(t *testing.T) {
	src := draftSource{drafts: []calendar.DraftSession{
		{SessionID: "cal_old", Status: calendar.StatusProcessing, Title: "Old", CreatedAt: epoch.Add(-2 * time.Hour)},
		{SessionID: "cal_new", Status: calendar.StatusDownloading, Title: "New", SuggestedMode: "bug_report", CreatedAt: epoch.Add(-time.Hour)},
		{SessionID: "cal_wait", Status: calendar.StatusWaitingForUpload, CreatedAt: epoch},
	}}
	ctrl, _ := newController(t,
		session.WithDraftSource(src),
		session.WithModeNamer(staticNamer{"bug_report": "Bug Report"}),
	)
	ctx := context.Background()

	proj, ok := ctrl.GetActiveSession(ctx)
	if !ok {
		t.Fatal("expected calendar fallback")
	}
	if proj.SessionID != "cal_new" || proj.Status != "downloading_from_drive" || proj.Progress != 30 {
		t.Fatalf("unexpected fallback projection %+v", proj)
	}
	if proj.Source != session.SourceCalendar || proj.ModeName != "Bug Report" {
		t.Fatalf("unexpected fallback metadata %+v", proj)
	}
	if proj.StageProgress != progress.Breakdown(30) {
		t.Fatalf("unexpected breakdown %+v", proj.StageProgress)
	}
}

func newLinkedDraft(t *testing.T, clock *fakeClock, eventID string) (*calendar.Watcher, string) {
	t.Helper()
	watcher := calendar.NewWatcher(calendar.NewMockSource(epoch), calendar.WithClock(clock.Now))
	draft := watcher.CreateDraft(calendar.Event{
		ID:    eventID,
		Title: "Calendar Meeting",
		Start: epoch.Add(-time.Hour),
		End:   epoch.Add(-30 * time.Minute),
	})
	if _, ok := watcher.UpdateStatus(context.Background(), draft.SessionID, calendar.StatusProcessing, nil); !ok {
		t.Fatalf("draft %s not updated", draft.SessionID)
	}
	return watcher, draft.SessionID
}

func TestGetActiveSessionIgnoresDraftsOfSettledRecords(t *testing.T) {
	tests := []struct {
		name   string
		settle func(ctx context.Context, ctrl *session.Controller, clock *fakeClock, id string)
		status session.Status
	}{
		{
			name: "zombie",
			settle: func(ctx context.Context, ctrl *session.Controller, clock *fakeClock, id string) {
				ctrl.StartProcessing(ctx, id)
				ctrl.UpdateProgress(ctx, id, "generating", 80)
				clock.Advance(11 * time.Minute)
			},
			status: session.StatusFailed,
		},
		{
			name: "cancelled",
			settle: func(ctx context.Context, ctrl *session.Controller, _ *fakeClock, id string) {
				ctrl.StartProcessing(ctx, id)
				ctrl.Cancel(ctx, id)
			},
			status: session.StatusCancelled,
		},
		{
			name:   "not yet submitted",
			settle: func(context.Context, *session.Controller, *fakeClock, string) {},
			status: session.StatusDraft,
		},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := &fakeClock{now: epoch}
			watcher, id := newLinkedDraft(t, clock, fmt.Sprintf("e%d", i))
			ctrl := session.NewController(session.WithClock(clock.Now), session.WithDraftSource(watcher))
			ctx := context.Background()
			if _, err := ctrl.Create(ctx, id, session.Metadata{}); err != nil {
				t.Fatalf("Create: %v", err)
			}
			tc.settle(ctx, ctrl, clock, id)

			if proj, ok := ctrl.GetActiveSession(ctx); ok {
				t.Fatalf("expected no active session, got %+v", proj)
			}
			if rec, _ := ctrl.Record(id); rec.Status != tc.status {
				t.Fatalf("record status %q, want %q", rec.Status, tc.status)
			}
		})
	}
}

func TestSettledRecordsFailTheirDraft(t *testing.T) {
	ctx := context.Background()

	clock := &fakeClock{now: epoch}
	watcher, id := newLinkedDraft(t, clock, "zombie")
	ctrl := session.NewController(session.WithClock(clock.Now), session.WithDraftSource(watcher))
	ctrl.Create(ctx, id, session.Metadata{StartImmediately: true})
	clock.Advance(11 * time.Minute)
	if n := ctrl.ReapStale(ctx); n != 1 {
		t.Fatalf("expected one zombie, got %d", n)
	}
	draft, _ := watcher.GetDraft(ctx, id)
	if draft.Status != calendar.StatusFailed || !session.IsZombieError(fmt.Sprint(draft.Metadata["error"])) {
		t.Fatalf("expected zombie draft failed, got %+v", draft)
	}

	watcher, id = newLinkedDraft(t, clock, "cancel")
	ctrl = session.NewController(session.WithClock(clock.Now), session.WithDraftSource(watcher))
	ctrl.Create(ctx, id, session.Metadata{StartImmediately: true})
	ctrl.Cancel(ctx, id)
	draft, _ = watcher.GetDraft(ctx, id)
	if draft.Status != calendar.StatusFailed || draft.Metadata["error"] != "session cancelled" {
		t.Fatalf("expected cancelled draft failed, got %+v", draft)
	}
}

func TestGetActiveSessionPrefersProcessingRecordOverDraft(t *testing.T) {
	clock := &fakeClock{now: epoch}
	watcher, id := newLinkedDraft(t, clock, "live")
	ctrl := session.NewController(session.WithClock(clock.Now), session.WithDraftSource(watcher))
	ctx := context.Background()
	ctrl.Create(ctx, id, session.Metadata{StartImmediately: true})
	ctrl.UpdateProgress(ctx, id, "generating", 60)

	proj, ok := ctrl.GetActiveSession(ctx)
	if !ok || proj.SessionID != id || proj.Progress != 60 || proj.Source != session.SourceSession {
		t.Fatalf("unexpected projection %+v", proj)
	}
}

func TestGetActiveSessionNone(t *testing.T) {
	ctrl, _ := newController(t, session.WithDraftSource(draftSource{}))
	if _, ok := ctrl.GetActiveSession(context.Background()); ok {
		t.Fatal("expected no active session")
	}
}

func TestStatusOrDraft(t *testing.T) {
	src := draftSource{drafts: []calendar.DraftSession{
		{SessionID: "cal_123", Status: calendar.StatusDownloading, CreatedAt: epoch},
	}}
	ctrl, _ := newController(t, session.WithDraftSource(src))
	ctx := context.Background()

	proj, ok := ctrl.StatusOrDraft(ctx, "cal_123")
	if !ok || proj.Status != "downloading_from_drive" || proj.Progress != 30 {
		t.Fatalf("unexpected draft fallback %+v", proj)
	}
	if _, ok := ctrl.StatusOrDraft(ctx, "missing"); ok {
		t.Fatal("expected not found")
	}
}

func TestListNewestFirst(t *testing.T) {
	ctrl, clock := newController(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ctrl.Create(ctx, fmt.Sprintf("s%d", i), session.Metadata{})
		clock.Advance(time.Second)
	}
	list := ctrl.List(ctx)
	if len(list) != 3 || list[0].SessionID != "s2" || list[2].SessionID != "s0" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestReporterDerivesBreakdown(t *testing.T) {
	ctrl, _ := newController(t)
	ctx := context.Background()
	ctrl.Create(ctx, "s1", session.Metadata{StartImmediately: true})
	report := ctrl.Reporter("s1")
	report(ctx, "generating_docs", 85)

	proj, _ := ctrl.GetStatus(ctx, "s1")
	if proj.StageProgress != (progress.Stages{STT: 100, Frames: 100, Doc: 50}) {
		t.Fatalf("unexpected breakdown %+v", proj.StageProgress)
	}
}

func TestConcurrentUpdatesAcrossSessions(t *testing.T) {
	ctrl, _ := newController(t)
	ctx := context.Background()
	const sessions = 8
	for i := 0; i < sessions; i++ {
		ctrl.Create(ctx, fmt.Sprintf("s%d", i), session.Metadata{StartImmediately: true})
	}
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for p := 0; p <= 100; p++ {
				ctrl.UpdateProgress(ctx, id, "generating_docs", p)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ctrl.GetActiveSession(ctx)
				ctrl.List(ctx)
			}
		}()
	}
	wg.Wait()
	for i := 0; i < sessions; i++ {
		proj, _ := ctrl.GetStatus(ctx, fmt.Sprintf("s%d", i))
		if proj.Progress != 100 {
			t.Fatalf("session %d ended at %d", i, proj.Progress)
		}
	}
}

type memoryPersister struct {
	mu      sync.Mutex
	saved   map[string]session.Record
	saveErr error
}

func (m *memoryPersister) Save(_ context.Context, rec session.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = make(map[string]session.Record)
	}
	m.saved[rec.ID] = rec
	return nil
}

func (m *memoryPersister) LoadAll(context.Context) ([]session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Record, 0, len(m.saved))
	for _, rec := range m.saved {
		out = append(out, rec)
	}
	return out, nil
}

func TestPersistAndRestore(t *testing.T) {
	store := &memoryPersister{}
	ctrl, _ := newController(t, session.WithPersister(store))
	ctx := context.Background()
	ctrl.Create(ctx, "s1", session.Metadata{Title: "Persisted", StartImmediately: true})
	ctrl.UpdateProgress(ctx, "s1", "transcribing", 20)

	if store.saved["s1"].Progress != 20 {
		t.Fatalf("latest snapshot not persisted: %+v", store.saved["s1"])
	}

	restored, _ := newController(t, session.WithPersister(store))
	n, err := restored.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 restored record, got %d", n)
	}
	proj, ok := restored.GetStatus(ctx, "s1")
	if !ok || proj.Title != "Persisted" || proj.Progress != 20 {
		t.Fatalf("unexpected restored projection %+v", proj)
	}
}

func TestPersistFailureIsNotRolledBack(t *testing.T) {
	store := &memoryPersister{saveErr: errors.New("disk full")}
	ctrl, _ := newController(t, session.WithPersister(store))
	ctx := context.Background()
	if _, err := ctrl.Create(ctx, "s1", session.Metadata{}); err != nil {
		t.Fatalf("Create should succeed despite persist failure: %v", err)
	}
	if !ctrl.StartProcessing(ctx, "s1") {
		t.Fatal("StartProcessing should succeed despite persist failure")
	}
	if proj, _ := ctrl.GetStatus(ctx, "s1"); proj.Status != "processing" {
		t.Fatalf("in-memory state rolled back: %+v", proj)
	}
}
