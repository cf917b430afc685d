package workflow

import (
	"log/slog"
	"path/filepath"
	"strings"

	"devlens/internal/logging"
)

const sessionLogName = "session.log"

// sessionLogger tees base into a JSON log inside the session artifact
// directory. The returned close function is always safe to call.
func (m *Manager) sessionLogger(base *slog.Logger, id string) (*slog.Logger, func()) {
	dir := m.cfg.SessionArtifactDir(id)
	if strings.TrimSpace(m.cfg.Paths.ArtifactRoot) == "" {
		return base, func() {}
	}
	level := m.cfg.Logging.Level
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	handler, closeFn, err := logging.NewJSONFileHandler(filepath.Join(dir, sessionLogName), level)
	if err != nil {
		logging.WarnWithContext(base, "session log unavailable", "session_log_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check artifact_root permissions"),
			logging.String(logging.FieldImpact, "session output is only written to the daemon log"),
		)
		return base, func() {}
	}
	logger := slog.New(logging.TeeHandler(base.Handler(), handler.WithAttrs([]slog.Attr{
		logging.String(logging.FieldComponent, "workflow"),
		logging.String(logging.FieldSessionID, id),
	})))
	return logger, func() { _ = closeFn() }
}
