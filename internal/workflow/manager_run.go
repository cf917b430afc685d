package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"devlens/internal/calendar"
	"devlens/internal/logging"
	"devlens/internal/modes"
	"devlens/internal/pipeline"
	"devlens/internal/services"
	"devlens/internal/session"
)

var (
	// ErrNotRunning is returned by Submit before Start or after Stop.
	ErrNotRunning = fmt.Errorf("%w: workflow not running", services.ErrTransient)
	// ErrAlreadyActive is returned when a session already has a runner.
	ErrAlreadyActive = fmt.Errorf("%w: session already processing", services.ErrValidation)
)

// Start begins the zombie sweep loop and accepts submissions.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.sweepLoop(runCtx)
	m.logger.Info("workflow started",
		logging.Duration("sweep_interval", m.sweep),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop cancels in-flight runs and waits for every goroutine to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Wait blocks until every submitted run has finished. The sweep loop is
// not waited on.
func (m *Manager) Wait() {
	m.runs.Wait()
}

// Submit validates material and starts a background run for id. A draft
// record is moved to processing first; terminal records are rejected.
func (m *Manager) Submit(ctx context.Context, id string, material Material) error {
	if err := material.Validate(); err != nil {
		return err
	}
	rec, ok := m.sessions.Record(id)
	if !ok {
		return services.Wrap(services.ErrNotFound, "workflow", "submit", "session "+id, nil)
	}
	if rec.Status.Terminal() {
		return services.Wrap(services.ErrValidation, "workflow", "submit",
			fmt.Sprintf("session %s is %s", id, rec.Status), nil)
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	if _, busy := m.active[id]; busy {
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	m.active[id] = struct{}{}
	runCtx := m.runCtx
	m.wg.Add(1)
	m.runs.Add(1)
	m.mu.Unlock()

	if rec.Status == session.StatusDraft {
		m.sessions.StartProcessing(ctx, id)
	}
	go m.run(runCtx, id, material)
	return nil
}

// Active reports whether id has an in-flight runner.
func (m *Manager) Active(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.lastSession = id
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, id string, material Material) {
	defer m.wg.Done()
	defer m.runs.Done()
	defer m.release(id)

	ctx = services.WithSessionID(ctx, id)
	logger, closeLog := m.sessionLogger(logging.WithContext(ctx, m.logger), id)
	defer closeLog()

	rec, ok := m.sessions.Record(id)
	if !ok {
		return
	}
	draft, hasDraft := m.draft(ctx, id)
	job := m.buildJob(ctx, rec, material, draft, hasDraft)
	if hasDraft {
		m.updateDraft(ctx, id, calendar.StatusProcessing, nil)
	}

	started := time.Now()
	logger.Info("session run started",
		logging.String("mode", job.Mode),
		logging.Int("frames", len(job.Frames)),
		logging.Float64("duration_seconds", job.Duration),
		logging.String(logging.FieldEventType, "session_run_started"),
	)

	result, err := m.runner.Run(ctx, job, m.sessions.Reporter(id))
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrCancelled) || m.sessions.IsCancelled(id):
		logger.Info("session run discarded after cancel",
			logging.String(logging.FieldEventType, "session_run_cancelled"),
		)
		return
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logging.WarnWithContext(logger, "session run interrupted by shutdown", "session_run_interrupted",
			logging.String(logging.FieldErrorHint, "resubmit the material after restart"),
			logging.String(logging.FieldImpact, "session stays processing until the zombie sweep fails it"),
		)
		return
	default:
		m.fail(ctx, logger, rec, draft, hasDraft, err)
		return
	}

	// Results that race a cancel are dropped rather than committed.
	if m.sessions.IsCancelled(id) {
		logger.Info("session result discarded after cancel",
			logging.String(logging.FieldEventType, "session_result_discarded"),
		)
		return
	}
	docPath, err := m.commit(id, result)
	if err != nil {
		m.fail(ctx, logger, rec, draft, hasDraft, err)
		return
	}
	if !m.sessions.Complete(ctx, id, docPath, result.Summary()) {
		logger.Info("session finished elsewhere; result kept on disk",
			logging.String("result_path", docPath),
			logging.String(logging.FieldEventType, "session_complete_skipped"),
		)
		return
	}

	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
	logger.Info("session run complete",
		logging.String("result_path", docPath),
		logging.String("summary", result.Summary()),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "session_run_complete"),
	)
	if hasDraft {
		m.updateDraft(ctx, id, calendar.StatusCompleted, map[string]any{"result_path": docPath})
	}
	m.notifyReady(ctx, rec, draft, hasDraft)
}

func (m *Manager) buildJob(ctx context.Context, rec session.Record, material Material, draft calendar.DraftSession, hasDraft bool) pipeline.Job {
	keywords := append([]string(nil), material.Keywords...)
	var attendees []string
	if hasDraft {
		keywords = append(keywords, draft.ContextKeywords...)
		attendees = draft.Attendees
	}

	mode := strings.TrimSpace(rec.Mode)
	if mode == "" && hasDraft {
		mode = strings.TrimSpace(draft.SuggestedMode)
	}
	if mode == "" {
		mode = modes.Suggest(append([]string{rec.Title}, keywords...)...)
	}
	vars := map[string]string{
		"meeting_title": rec.Title,
		"keywords":      strings.Join(keywords, ", "),
		"attendees":     strings.Join(attendees, ", "),
	}
	prompt, err := m.catalog.Render(mode, vars)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "mode not in catalog; using general documentation", "mode_fallback",
			logging.String("mode", mode),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check modes.catalog_path or the session mode"),
		)
		mode = modes.GeneralDoc
		prompt, _ = m.catalog.Render(mode, vars)
	}

	artifactDir := m.cfg.SessionArtifactDir(rec.ID)
	return pipeline.Job{
		SessionID:         rec.ID,
		Title:             rec.Title,
		Mode:              mode,
		SystemInstruction: prompt.SystemInstruction,
		OutputFormat:      prompt.OutputFormat,
		Guidelines:        prompt.Guidelines,
		Keywords:          keywords,
		Duration:          material.Duration,
		Frames:            material.frames(artifactDir),
		AudioPath:         material.audioPath(filepath.Join(m.cfg.Paths.UploadDir, rec.ID)),
		Transcript:        material.Transcript,
		Boundaries:        material.Boundaries,
		SegmentSeconds:    material.SegmentSeconds,
		ArtifactRoot:      artifactDir,
		IsCancelled:       func() bool { return m.sessions.IsCancelled(rec.ID) },
	}
}
