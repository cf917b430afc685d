package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"devlens/internal/calendar"
	"devlens/internal/logging"
	"devlens/internal/progress"
	"devlens/internal/services"
)

// DefaultStaleThreshold is how long a processing session may go without an
// update before it is declared a zombie.
const DefaultStaleThreshold = 600 * time.Second

// ErrSessionExists is returned when Create is called with an id already in use.
var ErrSessionExists = fmt.Errorf("%w: session already exists", services.ErrValidation)

// Persister receives a copy of each record after it changes.
type Persister interface {
	Save(ctx context.Context, rec Record) error
	LoadAll(ctx context.Context) ([]Record, error)
}

// DraftSource exposes calendar drafts to the controller.
type DraftSource interface {
	ListDrafts(ctx context.Context, statuses ...calendar.DraftStatus) []calendar.DraftSession
	GetDraft(ctx context.Context, id string) (calendar.DraftSession, bool)
}

// ModeNamer resolves a mode key to its display name.
type ModeNamer interface {
	DisplayName(mode string) string
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStaleThreshold overrides the zombie threshold.
func WithStaleThreshold(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithDraftSource enables the calendar fallback.
func WithDraftSource(src DraftSource) Option {
	return func(c *Controller) { c.drafts = src }
}

// WithPersister enables snapshot persistence.
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persist = p }
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithModeNamer sets the display-name resolver used when Create omits ModeName.
func WithModeNamer(namer ModeNamer) Option {
	return func(c *Controller) { c.modes = namer }
}

// Controller drives session records through their lifecycle.
type Controller struct {
	store      *Store
	now        func() time.Time
	staleAfter time.Duration
	drafts     DraftSource
	persist    Persister
	modes      ModeNamer
	logger     *slog.Logger
}

// NewController constructs a controller over an empty table.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		store:      NewStore(),
		now:        time.Now,
		staleAfter: DefaultStaleThreshold,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "session")
	return c
}

// StaleThreshold reports the configured zombie threshold.
func (c *Controller) StaleThreshold() time.Duration {
	return c.staleAfter
}

// Count reports the number of known records.
func (c *Controller) Count() int {
	return c.store.Len()
}

// Create inserts a new record. An empty id is replaced with a generated one.
func (c *Controller) Create(ctx context.Context, id string, meta Metadata) (Projection, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSpace(meta.ProjectName)
	}
	if title == "" {
		title = defaultTitle
	}
	mode := strings.TrimSpace(meta.Mode)
	modeName := strings.TrimSpace(meta.ModeName)
	if modeName == "" && mode != "" && c.modes != nil {
		modeName = c.modes.DisplayName(mode)
	}
	status := StatusDraft
	if meta.StartImmediately {
		status = StatusProcessing
	}

	now := c.now().UTC()
	rec := &Record{
		ID:          id,
		Status:      status,
		Title:       title,
		Mode:        mode,
		ModeName:    modeName,
		CreatedAt:   now,
		LastUpdated: now,
	}

	lock := c.store.lockFor(id)
	lock.Lock()
	if !c.store.insert(rec) {
		lock.Unlock()
		return Projection{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	snapshot := *rec
	c.save(ctx, snapshot)
	lock.Unlock()

	c.logger.Info("session created",
		logging.String(logging.FieldSessionID, id),
		logging.String("status", string(status)),
		logging.String("mode", mode),
		logging.String(logging.FieldEventType, "session_created"),
	)
	return snapshot.Project(), nil
}

// StartProcessing moves a draft to processing. Returns false when the id is
// unknown or the record is not a draft.
func (c *Controller) StartProcessing(ctx context.Context, id string) bool {
	_, ok := c.mutate(ctx, id, func(rec *Record) bool {
		if rec.Status != StatusDraft {
			return false
		}
		rec.Status = StatusProcessing
		rec.Stage = StageInitializing
		rec.Progress = 0
		return true
	})
	if ok {
		c.logger.Info("session processing started",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_started"),
		)
	}
	return ok
}

// UpdateProgress sets stage and overall progress, leaving the stage breakdown untouched.
func (c *Controller) UpdateProgress(ctx context.Context, id, stage string, value int) bool {
	_, ok := c.mutate(ctx, id, func(rec *Record) bool {
		if rec.Status.Terminal() {
			return false
		}
		rec.Stage = stage
		rec.Progress = progress.Clamp(value)
		return true
	})
	return ok
}

// UpdateProgressDetailed is UpdateProgress plus an explicit stage breakdown.
func (c *Controller) UpdateProgressDetailed(ctx context.Context, id, stage string, value int, stages progress.Stages) bool {
	_, ok := c.mutate(ctx, id, func(rec *Record) bool {
		if rec.Status.Terminal() {
			return false
		}
		rec.Stage = stage
		rec.Progress = progress.Clamp(value)
		rec.StageProgress = stages.Clamped()
		return true
	})
	return ok
}

// Reporter returns a progress callback for id that derives the stage
// breakdown from the overall value.
func (c *Controller) Reporter(id string) func(ctx context.Context, stage string, value int) {
	return func(ctx context.Context, stage string, value int) {
		c.UpdateProgressDetailed(ctx, id, stage, value, progress.Breakdown(value))
	}
}

// Complete marks id completed and records where its output lives.
func (c *Controller) Complete(ctx context.Context, id, resultPath, summary string) bool {
	_, ok := c.transition(ctx, id, StatusCompleted, func(rec *Record) {
		rec.Progress = 100
		rec.Stage = StageCompleted
		rec.StageProgress = progress.Breakdown(100)
		rec.ResultPath = resultPath
		rec.ContentSummary = summary
	})
	if ok {
		c.logger.Info("session completed",
			logging.String(logging.FieldSessionID, id),
			logging.String("result_path", resultPath),
			logging.String(logging.FieldEventType, "session_completed"),
		)
	}
	return ok
}

// Fail marks id failed. Progress keeps its last value.
func (c *Controller) Fail(ctx context.Context, id, message string) bool {
	_, ok := c.transition(ctx, id, StatusFailed, func(rec *Record) {
		rec.Error = message
	})
	if ok {
		logging.ErrorWithContext(c.logger, "session failed", "session_failed",
			logging.String(logging.FieldSessionID, id),
			logging.String("error_message", message),
			logging.String(logging.FieldErrorHint, "inspect the session logs and resubmit the material"),
		)
	}
	return ok
}

// Cancel moves a non-terminal record to cancelled.
func (c *Controller) Cancel(ctx context.Context, id string) bool {
	_, ok := c.transition(ctx, id, StatusCancelled, nil)
	if ok {
		c.settleDraft(ctx, id, "session cancelled")
		c.logger.Info("session cancelled",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_cancelled"),
		)
	}
	return ok
}

// IsCancelled reports whether id has been cancelled.
func (c *Controller) IsCancelled(id string) bool {
	rec, ok := c.store.view(id)
	return ok && rec.Status == StatusCancelled
}

// Record returns a copy of the stored record without zombie remediation.
func (c *Controller) Record(id string) (Record, bool) {
	return c.store.view(id)
}

// GetStatus returns the projection for id after zombie remediation.
func (c *Controller) GetStatus(ctx context.Context, id string) (Projection, bool) {
	c.ReapStale(ctx)
	rec, ok := c.store.view(id)
	if !ok {
		return Projection{}, false
	}
	return rec.Project(), true
}

// List returns every record, most recently updated first, after zombie remediation.
func (c *Controller) List(ctx context.Context) []Projection {
	c.ReapStale(ctx)
	records := c.store.snapshot()
	sortByLastUpdated(records)
	out := make([]Projection, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Project())
	}
	return out
}

// Restore loads persisted records into an empty slot per id. Records already
// present in memory win.
func (c *Controller) Restore(ctx context.Context) (int, error) {
	if c.persist == nil {
		return 0, nil
	}
	records, err := c.persist.LoadAll(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "session", "restore", "load persisted sessions", err)
	}
	restored := 0
	for i := range records {
		rec := records[i]
		if strings.TrimSpace(rec.ID) == "" {
			continue
		}
		lock := c.store.lockFor(rec.ID)
		lock.Lock()
		if c.store.insert(&rec) {
			restored++
		}
		lock.Unlock()
	}
	if restored > 0 {
		c.logger.Info("sessions restored",
			logging.Int("count", restored),
			logging.String(logging.FieldEventType, "sessions_restored"),
		)
	}
	return restored, nil
}

// transition applies a status change when the matrix allows it.
func (c *Controller) transition(ctx context.Context, id string, to Status, apply func(*Record)) (Record, bool) {
	return c.mutate(ctx, id, func(rec *Record) bool {
		if !CanTransition(rec.Status, to) {
			return false
		}
		rec.Status = to
		if apply != nil {
			apply(rec)
		}
		return true
	})
}

// mutate runs fn under the per-id lock. fn returns false to leave the record
// unchanged. Unknown ids are a silent no-op.
func (c *Controller) mutate(ctx context.Context, id string, fn func(*Record) bool) (Record, bool) {
	lock := c.store.lockFor(id)
	lock.Lock()
	rec, ok := c.store.lookup(id)
	if !ok {
		lock.Unlock()
		return Record{}, false
	}
	if !fn(rec) {
		lock.Unlock()
		return Record{}, false
	}
	rec.LastUpdated = c.advance(rec.LastUpdated)
	snapshot := *rec
	// Saved under the per-id lock so snapshots for one session land in order.
	c.save(ctx, snapshot)
	lock.Unlock()
	return snapshot, true
}

// advance returns the current time, never earlier than prev.
func (c *Controller) advance(prev time.Time) time.Time {
	now := c.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func (c *Controller) save(ctx context.Context, rec Record) {
	if c.persist == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.persist.Save(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(c.logger, "session snapshot not persisted", "session_persist_failed",
			logging.String(logging.FieldSessionID, rec.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and disk space"),
			logging.String(logging.FieldImpact, "in-memory state is kept; a restart may lose this update"),
		)
	}
}
