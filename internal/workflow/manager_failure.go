package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"devlens/internal/calendar"
	"devlens/internal/logging"
	"devlens/internal/services"
	"devlens/internal/session"
)

func (m *Manager) fail(ctx context.Context, logger *slog.Logger, rec session.Record, draft calendar.DraftSession, hasDraft bool, runErr error) {
	message := failureMessage(runErr)
	m.mu.Lock()
	m.lastErr = runErr
	m.failed++
	m.mu.Unlock()

	attrs := []logging.Attr{
		logging.String("error_message", message),
		logging.String("error_kind", services.Classify(runErr)),
		logging.Alert("session_failure"),
		logging.Error(runErr),
		logging.String(logging.FieldErrorHint, "inspect session.log in the artifact directory"),
	}
	logging.ErrorWithContext(logger, "session run failed", "session_run_failed", attrs...)

	if !m.sessions.Fail(ctx, rec.ID, message) {
		return
	}
	if hasDraft {
		m.updateDraft(ctx, rec.ID, calendar.StatusFailed, map[string]any{"error": message})
	}
	m.notifyFailed(ctx, rec, draft, hasDraft, message)
}

func failureMessage(err error) string {
	if err == nil {
		return "session failed without error detail"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "session failed"
	}
	return message
}

func (m *Manager) draft(ctx context.Context, id string) (calendar.DraftSession, bool) {
	if m.drafts == nil {
		return calendar.DraftSession{}, false
	}
	return m.drafts.GetDraft(ctx, id)
}

func (m *Manager) updateDraft(ctx context.Context, id string, status calendar.DraftStatus, patch map[string]any) {
	if m.drafts == nil {
		return
	}
	if _, ok := m.drafts.UpdateStatus(ctx, id, status, patch); !ok && !errors.Is(ctx.Err(), context.Canceled) {
		m.logger.Debug("draft status not updated",
			logging.String(logging.FieldSessionID, id),
			logging.String("status", string(status)),
		)
	}
}
