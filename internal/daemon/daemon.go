package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"devlens/internal/api"
	"devlens/internal/calendar"
	"devlens/internal/config"
	"devlens/internal/contentsource"
	"devlens/internal/instrument"
	"devlens/internal/logging"
	"devlens/internal/modes"
	"devlens/internal/notifications"
	"devlens/internal/session"
	"devlens/internal/sessionstore"
	"devlens/internal/workflow"
)

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	notifier    notifications.Service
	content     contentsource.Source
	now         func() time.Time
	workflowOps []workflow.Option
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) { o.notifier = n }
}

// WithContentSource overrides the content source built from configuration.
func WithContentSource(src contentsource.Source) Option {
	return func(o *options) { o.content = src }
}

// WithClock overrides the time source used by sessions and the calendar.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithWorkflowOptions forwards options to the workflow manager.
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(o *options) { o.workflowOps = append(o.workflowOps, opts...) }
}

// Daemon owns every long-lived component.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sessionstore.Store
	sessions *session.Controller
	calendar *calendar.Watcher
	schedule *calendar.FileSource
	content  contentsource.Source
	catalog  *modes.Catalog
	workflow *workflow.Manager
	traces   *instrument.Memory
	api      *apiServer

	lock    *flock.Flock
	running atomic.Bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// New opens the session store, restores persisted sessions, and wires the
// components. The daemon does not run until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	catalog, err := modes.Load(cfg.Modes.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load mode catalog: %w", err)
	}
	content := o.content
	if content == nil {
		content, err = contentsource.New(cfg, contentsource.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	var (
		source   calendar.EventSource
		schedule *calendar.FileSource
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Calendar.Source)) {
	case "file":
		schedule = calendar.NewFileSource(cfg.Calendar.EventsFile, logger)
		source = schedule
	default:
		source = calendar.NewMockSource(o.now())
	}
	watcher := calendar.NewWatcher(source,
		calendar.WithClock(o.now),
		calendar.WithNotifier(o.notifier),
		calendar.WithLogger(logger),
		calendar.WithWindows(
			time.Duration(cfg.Calendar.ReminderLeadMinutes)*time.Minute,
			time.Duration(cfg.Calendar.NudgeDelayMinutes)*time.Minute,
			time.Duration(cfg.Calendar.HorizonHours)*time.Hour,
		),
	)

	store, err := sessionstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	ctx := context.Background()
	if days := cfg.Logging.RetentionDays; days > 0 {
		cutoff := o.now().Add(-time.Duration(days) * 24 * time.Hour)
		if pruned, err := store.PruneTerminal(ctx, cutoff); err != nil {
			logger.Warn("session snapshot prune failed", logging.Error(err))
		} else if pruned > 0 {
			logger.Info("pruned finished sessions", logging.Int64("count", pruned))
		}
	}

	sessions := session.NewController(
		session.WithClock(o.now),
		session.WithStaleThreshold(time.Duration(cfg.Workflow.StaleTimeoutSeconds)*time.Second),
		session.WithDraftSource(watcher),
		session.WithPersister(store),
		session.WithModeNamer(catalog),
		session.WithLogger(logger),
	)
	if _, err := sessions.Restore(ctx); err != nil {
		logging.WarnWithContext(logger, "persisted sessions not restored", "session_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+store.Path()),
			logging.String(logging.FieldImpact, "sessions from before the restart are not listed"),
		)
	}

	traces := instrument.NewMemory(0)
	tracer := instrument.New(logger, instrument.WithSink(traces), instrument.WithClock(o.now))
	wfOpts := append([]workflow.Option{
		workflow.WithCatalog(catalog),
		workflow.WithDrafts(watcher),
		workflow.WithNotifier(o.notifier),
		workflow.WithTracer(tracer),
		workflow.WithLogger(logger),
	}, o.workflowOps...)
	manager, err := workflow.NewManager(cfg, sessions, wfOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sessions: sessions,
		calendar: watcher,
		schedule: schedule,
		content:  content,
		catalog:  catalog,
		workflow: manager,
		traces:   traces,
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the workflow, calendar loops,
// and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another devlens daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	if dir := d.cfg.Paths.LogDir; dir != "" {
		logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, dir, "*.log", "devlens.log")
	}

	poll := time.Duration(d.cfg.Calendar.PollIntervalSeconds) * time.Second
	d.loops.Add(1)
	go func() {
		defer d.loops.Done()
		d.calendar.Run(runCtx, poll)
	}()
	if d.schedule != nil {
		d.loops.Add(1)
		go func() {
			defer d.loops.Done()
			if err := d.schedule.Watch(runCtx, func() { d.syncCalendar(runCtx) }); err != nil {
				logging.WarnWithContext(d.logger, "schedule hot reload unavailable", "calendar_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check calendar.events_file"),
					logging.String(logging.FieldImpact, "schedule edits are picked up on the next poll only"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("devlens daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.String("api", d.api.address()),
		logging.Int("sessions", d.sessions.Count()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) syncCalendar(ctx context.Context) {
	if n, err := d.calendar.Sync(ctx); err != nil {
		d.logger.Warn("calendar sync after reload failed", logging.Error(err))
	} else if n > 0 {
		d.logger.Info("drafts created from schedule", logging.Int("count", n))
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	d.loops.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("devlens daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Address reports the API listen address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	counts := make(map[string]int)
	for _, proj := range d.sessions.List(ctx) {
		counts[proj.Status]++
	}
	return api.DaemonStatus{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockPath:      d.cfg.LockPath(),
		DatabasePath:  d.store.Path(),
		ContentSource: d.content.Name(),
		Sessions:      counts,
		Drafts:        len(d.calendar.ListDrafts(ctx)),
		Workflow:      d.workflow.Status(),
	}
}
