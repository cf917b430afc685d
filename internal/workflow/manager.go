package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"devlens/internal/calendar"
	"devlens/internal/config"
	"devlens/internal/instrument"
	"devlens/internal/logging"
	"devlens/internal/modes"
	"devlens/internal/notifications"
	"devlens/internal/pipeline"
	"devlens/internal/session"
)

// DraftUpdater is the calendar surface the runner touches.
type DraftUpdater interface {
	GetDraft(ctx context.Context, id string) (calendar.DraftSession, bool)
	UpdateStatus(ctx context.Context, id string, status calendar.DraftStatus, patch map[string]any) (calendar.DraftSession, bool)
}

// Runner executes one pipeline job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, report pipeline.ProgressFunc) (pipeline.Result, error)
}

// Manager coordinates background session runs.
type Manager struct {
	cfg      *config.Config
	sessions *session.Controller
	runner   Runner
	catalog  *modes.Catalog
	drafts   DraftUpdater
	notifier notifications.Service
	tracer   *instrument.Tracer
	logger   *slog.Logger
	sweep    time.Duration
	health   []StageHealth

	mu          sync.RWMutex
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	runs        sync.WaitGroup
	active      map[string]struct{}
	lastErr     error
	lastSession string
	processed   int
	failed      int
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithRunner replaces the pipeline built from configuration.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithCatalog sets the mode catalog used to render prompts.
func WithCatalog(c *modes.Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithDrafts links runs back to calendar drafts with the same id.
func WithDrafts(d DraftUpdater) Option {
	return func(m *Manager) { m.drafts = d }
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithTracer records collaborator calls.
func WithTracer(t *instrument.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSweepInterval overrides the zombie sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweep = d
		}
	}
}

// NewManager constructs a manager. Without WithRunner the pipeline is built
// from cfg.
func NewManager(cfg *config.Config, sessions *session.Controller, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		sessions: sessions,
		logger:   logging.NewNop(),
		active:   make(map[string]struct{}),
		sweep:    time.Duration(cfg.Workflow.SweepIntervalSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "workflow")
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	if m.catalog == nil {
		catalog, err := modes.Load(cfg.Modes.CatalogPath)
		if err != nil {
			return nil, err
		}
		m.catalog = catalog
	}
	if m.runner == nil {
		built, err := BuildPipeline(context.Background(), cfg, m.logger, m.tracer)
		if err != nil {
			return nil, err
		}
		m.runner = built.Pipeline
		m.health = built.Health
	}
	if m.sweep <= 0 {
		m.sweep = time.Minute
	}
	return m, nil
}
