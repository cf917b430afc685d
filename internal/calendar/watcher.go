package calendar

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"devlens/internal/logging"
	"devlens/internal/modes"
	"devlens/internal/notifications"
	"devlens/internal/services"
)

// Default trigger windows.
const (
	DefaultReminderLead = 15 * time.Minute
	DefaultNudgeDelay   = 2 * time.Minute
	DefaultHorizon      = 24 * time.Hour
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

// WithNotifier sets the delivery service for reminders and nudges.
func WithNotifier(n notifications.Service) Option {
	return func(w *Watcher) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWindows overrides the reminder lead, nudge delay, and sync horizon.
// Non-positive values keep the defaults; a zero nudge delay is allowed.
func WithWindows(reminderLead, nudgeDelay, horizon time.Duration) Option {
	return func(w *Watcher) {
		if reminderLead > 0 {
			w.reminderLead = reminderLead
		}
		if nudgeDelay >= 0 {
			w.nudgeDelay = nudgeDelay
		}
		if horizon > 0 {
			w.horizon = horizon
		}
	}
}

// Watcher owns the draft table.
type Watcher struct {
	source       EventSource
	notifier     notifications.Service
	now          func() time.Time
	logger       *slog.Logger
	reminderLead time.Duration
	nudgeDelay   time.Duration
	horizon      time.Duration

	mu     sync.Mutex
	drafts map[string]*DraftSession
	events map[string]string // event id -> session id
}

// NewWatcher builds a watcher pulling from source, which may be nil.
func NewWatcher(source EventSource, opts ...Option) *Watcher {
	w := &Watcher{
		source:       source,
		notifier:     notifications.NewNoop(),
		now:          time.Now,
		logger:       logging.NewNop(),
		reminderLead: DefaultReminderLead,
		nudgeDelay:   DefaultNudgeDelay,
		horizon:      DefaultHorizon,
		drafts:       make(map[string]*DraftSession),
		events:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "calendar")
	return w
}

// CreateDraft registers a draft for evt. Creating a draft for an event that
// already has one returns the existing draft unchanged.
func (w *Watcher) CreateDraft(evt Event) DraftSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	draft, _ := w.createLocked(evt)
	return draft.clone()
}

func (w *Watcher) createLocked(evt Event) (*DraftSession, bool) {
	if sessionID, ok := w.events[evt.ID]; ok {
		return w.drafts[sessionID], false
	}
	sessionID := sessionPrefix + evt.ID
	keywords := append([]string(nil), evt.Keywords...)
	metadata := map[string]any{
		MetaEventStart: evt.Start.UTC().Format(time.RFC3339),
		MetaEventEnd:   evt.End.UTC().Format(time.RFC3339),
	}
	if url := strings.TrimSpace(evt.RecordingURL); url != "" {
		metadata[MetaRecordingURL] = url
	}
	draft := &DraftSession{
		SessionID:       sessionID,
		EventID:         evt.ID,
		Title:           evt.Title,
		Attendees:       append([]string(nil), evt.Attendees...),
		ContextKeywords: keywords,
		Status:          StatusWaitingForUpload,
		CreatedAt:       w.now().UTC(),
		SuggestedMode:   modes.Suggest(append([]string{evt.Title}, keywords...)...),
		Metadata:        metadata,
	}
	w.drafts[sessionID] = draft
	w.events[evt.ID] = sessionID
	return draft, true
}

// ListDrafts returns drafts, newest first, optionally filtered by status.
func (w *Watcher) ListDrafts(_ context.Context, statuses ...DraftStatus) []DraftSession {
	allowed := make(map[DraftStatus]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}
	w.mu.Lock()
	out := make([]DraftSession, 0, len(w.drafts))
	for _, draft := range w.drafts {
		if len(allowed) > 0 {
			if _, ok := allowed[draft.Status]; !ok {
				continue
			}
		}
		out = append(out, draft.clone())
	}
	w.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GetDraft returns the draft for id.
func (w *Watcher) GetDraft(_ context.Context, id string) (DraftSession, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	draft, ok := w.drafts[id]
	if !ok {
		return DraftSession{}, false
	}
	return draft.clone(), true
}

// UpdateStatus sets the draft status and merges patch into its metadata.
func (w *Watcher) UpdateStatus(_ context.Context, id string, status DraftStatus, patch map[string]any) (DraftSession, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	draft, ok := w.drafts[id]
	if !ok {
		return DraftSession{}, false
	}
	if status != "" {
		draft.Status = status
	}
	for k, v := range patch {
		draft.Metadata[k] = v
	}
	return draft.clone(), true
}

// Sync pulls events inside the horizon and creates drafts for unseen ones.
// It returns the number of drafts created.
func (w *Watcher) Sync(ctx context.Context) (int, error) {
	if w.source == nil {
		return 0, nil
	}
	now := w.now()
	events, err := w.source.Upcoming(ctx, now, now.Add(w.horizon))
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "calendar", "sync", "list upcoming events", err)
	}
	created := 0
	w.mu.Lock()
	for _, evt := range events {
		if strings.TrimSpace(evt.ID) == "" {
			continue
		}
		if draft, isNew := w.createLocked(evt); isNew {
			created++
			w.logger.Info("draft session created",
				logging.String(logging.FieldSessionID, draft.SessionID),
				logging.String("event_id", evt.ID),
				logging.String("suggested_mode", draft.SuggestedMode),
				logging.String(logging.FieldEventType, "draft_created"),
			)
		}
	}
	w.mu.Unlock()
	return created, nil
}

// TriggerResult counts deliveries attempted by CheckTriggers.
type TriggerResult struct {
	Reminders int
	Nudges    int
}

type pendingNotice struct {
	event   notifications.Event
	draft   DraftSession
	payload notifications.Payload
}

// CheckTriggers fires due reminders and upload nudges. Flags are set under
// the watcher lock before delivery, so repeated or concurrent calls never
// send the same notice twice. A failed delivery is logged and not retried.
func (w *Watcher) CheckTriggers(ctx context.Context) TriggerResult {
	now := w.now()
	var pending []pendingNotice

	w.mu.Lock()
	for _, draft := range w.drafts {
		if draft.Status == StatusCompleted {
			continue
		}
		window, err := draft.Window()
		if err != nil || window.Start.IsZero() {
			continue
		}
		if !draft.ReminderSent {
			untilStart := window.Start.Sub(now)
			if untilStart > 0 && untilStart <= w.reminderLead {
				draft.ReminderSent = true
				pending = append(pending, w.notice(notifications.EventMeetingReminder, draft))
			}
		}
		if !draft.NudgeSent && draft.Status == StatusWaitingForUpload && !window.End.IsZero() {
			if now.Sub(window.End) >= w.nudgeDelay {
				draft.NudgeSent = true
				pending = append(pending, w.notice(notifications.EventUploadNudge, draft))
			}
		}
	}
	w.mu.Unlock()

	var result TriggerResult
	for _, notice := range pending {
		switch notice.event {
		case notifications.EventMeetingReminder:
			result.Reminders++
		case notifications.EventUploadNudge:
			result.Nudges++
		}
		if err := w.notifier.Publish(ctx, notice.event, notice.payload); err != nil {
			logging.WarnWithContext(w.logger, "calendar notification failed", "calendar_notify_failed",
				logging.String(logging.FieldSessionID, notice.draft.SessionID),
				logging.String("notification", string(notice.event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ntfy topic and connectivity"),
				logging.String(logging.FieldImpact, "attendees were not notified; the notice will not be resent"),
			)
			continue
		}
		w.logger.Info("calendar notification sent",
			logging.String(logging.FieldSessionID, notice.draft.SessionID),
			logging.String("notification", string(notice.event)),
			logging.Int("recipients", len(notice.draft.Attendees)),
			logging.String(logging.FieldEventType, "calendar_notify_sent"),
		)
	}
	return result
}

func (w *Watcher) notice(event notifications.Event, draft *DraftSession) pendingNotice {
	snapshot := draft.clone()
	return pendingNotice{
		event: event,
		draft: snapshot,
		payload: notifications.Payload{
			"title":      snapshot.Title,
			"sessionID":  snapshot.SessionID,
			"recipients": snapshot.Attendees,
			"mode":       snapshot.SuggestedMode,
		},
	}
}

// Run syncs and checks triggers every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	w.tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	if _, err := w.Sync(ctx); err != nil {
		logging.WarnWithContext(w.logger, "calendar sync failed", "calendar_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Classify(err)),
			logging.String(logging.FieldImpact, "new meetings are not drafted until the next poll"),
		)
	}
	w.CheckTriggers(ctx)
}
