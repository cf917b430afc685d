package workflow

import (
	"context"
	"errors"

	"devlens/internal/calendar"
	"devlens/internal/logging"
	"devlens/internal/notifications"
	"devlens/internal/session"
)

func (m *Manager) notifyReady(ctx context.Context, rec session.Record, draft calendar.DraftSession, hasDraft bool) {
	payload := notifications.Payload{
		"title":     rec.Title,
		"sessionID": rec.ID,
		"mode":      rec.Mode,
	}
	if hasDraft {
		payload["recipients"] = draft.Attendees
	}
	m.publish(ctx, notifications.EventDocumentationReady, payload)
}

func (m *Manager) notifyFailed(ctx context.Context, rec session.Record, draft calendar.DraftSession, hasDraft bool, message string) {
	payload := notifications.Payload{
		"title":     rec.Title,
		"sessionID": rec.ID,
		"error":     message,
	}
	if hasDraft {
		payload["recipients"] = draft.Attendees
	}
	m.publish(ctx, notifications.EventSessionFailed, payload)
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "recipients were not notified"),
		)
	}
}
