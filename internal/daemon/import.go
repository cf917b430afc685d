package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"devlens/internal/api"
	"devlens/internal/calendar"
	"devlens/internal/logging"
	"devlens/internal/services"
	"devlens/internal/session"
)

// RecordingName is the file a fetched recording is stored under.
const RecordingName = "recording.mp4"

// Import fetches the recording linked to a calendar draft and promotes the
// draft to a real session. The draft tracks the download and ends up in
// processing with the local recording path attached.
func (d *Daemon) Import(ctx context.Context, id string) (api.ImportResponse, error) {
	draft, ok := d.calendar.GetDraft(ctx, id)
	if !ok {
		return api.ImportResponse{}, services.Wrap(services.ErrNotFound, "import", "lookup draft",
			fmt.Sprintf("no draft %q", id), nil)
	}
	url := strings.TrimSpace(draft.RecordingURL())
	if url == "" {
		return api.ImportResponse{}, services.Wrap(services.ErrValidation, "import", "lookup draft",
			"draft has no recording_url", nil)
	}
	if _, exists := d.sessions.Record(id); exists {
		return api.ImportResponse{}, fmt.Errorf("%w: %s", session.ErrSessionExists, id)
	}

	logger := logging.WithContext(services.WithSessionID(ctx, id), d.logger)
	d.calendar.UpdateStatus(ctx, id, calendar.StatusDownloading, nil)

	dest := filepath.Join(d.cfg.Paths.UploadDir, id, RecordingName)
	written, err := d.content.Fetch(ctx, url, dest)
	if err != nil {
		d.calendar.UpdateStatus(ctx, id, calendar.StatusFailed, map[string]any{"error": err.Error()})
		logging.ErrorWithContext(logger, "recording download failed", "import_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check content.source and the drive access token"),
			logging.String(logging.FieldImpact, "the draft cannot be processed until the recording is uploaded"),
		)
		return api.ImportResponse{}, err
	}

	proj, err := d.sessions.Create(ctx, id, session.Metadata{
		Title: draft.Title,
		Mode:  draft.SuggestedMode,
	})
	if err != nil {
		d.calendar.UpdateStatus(ctx, id, calendar.StatusFailed, map[string]any{"error": err.Error()})
		return api.ImportResponse{}, err
	}
	d.calendar.UpdateStatus(ctx, id, calendar.StatusProcessing, map[string]any{"recording_path": dest})
	logger.Info("recording imported",
		logging.String("source", d.content.Name()),
		logging.String("path", dest),
		logging.Int64("bytes", written),
		logging.String(logging.FieldEventType, "recording_imported"),
	)
	return api.ImportResponse{Session: proj, RecordingPath: dest, Bytes: written}, nil
}
