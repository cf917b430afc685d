package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"devlens/internal/config"
	"devlens/internal/progress"
	"devlens/internal/services"
	"devlens/internal/session"
)

// Store persists session snapshots in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// timeFormat is fixed-width so last_updated sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const sessionColumns = "id, status, title, mode, mode_name, progress, stage, stage_stt, stage_frames, stage_doc, error_message, result_path, content_summary, created_at, last_updated"

var _ session.Persister = (*Store)(nil)

// Open initializes or connects to the session database under the state dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at dbPath, creating the schema when needed.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path reports the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the full record.
func (s *Store) Save(ctx context.Context, rec session.Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return services.Wrap(services.ErrValidation, "sessionstore", "save", "record id is empty", nil)
	}
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                status = excluded.status,
                title = excluded.title,
                mode = excluded.mode,
                mode_name = excluded.mode_name,
                progress = excluded.progress,
                stage = excluded.stage,
                stage_stt = excluded.stage_stt,
                stage_frames = excluded.stage_frames,
                stage_doc = excluded.stage_doc,
                error_message = excluded.error_message,
                result_path = excluded.result_path,
                content_summary = excluded.content_summary,
                last_updated = excluded.last_updated`,
			rec.ID,
			string(rec.Status),
			rec.Title,
			nullableString(rec.Mode),
			nullableString(rec.ModeName),
			rec.Progress,
			nullableString(rec.Stage),
			rec.StageProgress.STT,
			rec.StageProgress.Frames,
			rec.StageProgress.Doc,
			nullableString(rec.Error),
			nullableString(rec.ResultPath),
			nullableString(rec.ContentSummary),
			formatTime(rec.CreatedAt),
			formatTime(rec.LastUpdated),
		)
		return execErr
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "sessionstore", "save", "upsert session "+rec.ID, err)
	}
	return nil
}

// LoadAll returns every persisted record, oldest first.
func (s *Store) LoadAll(ctx context.Context) ([]session.Record, error) {
	ctx = ensureContext(ctx)
	var records []session.Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "sessionstore", "load", "read sessions", err)
	}
	return records, nil
}

// Delete removes a persisted record. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return err
	})
}

// PruneTerminal deletes terminal records last updated before cutoff and
// returns how many were removed.
func (s *Store) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE status IN (?, ?, ?) AND last_updated < ?`,
			string(session.StatusCompleted),
			string(session.StatusFailed),
			string(session.StatusCancelled),
			formatTime(cutoff),
		)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "sessionstore", "prune", "delete terminal sessions", err)
	}
	return removed, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (session.Record, error) {
	var (
		id             string
		status         string
		title          string
		mode           sql.NullString
		modeName       sql.NullString
		progressValue  int
		stage          sql.NullString
		stt            int
		frames         int
		doc            int
		errorMessage   sql.NullString
		resultPath     sql.NullString
		contentSummary sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&id,
		&status,
		&title,
		&mode,
		&modeName,
		&progressValue,
		&stage,
		&stt,
		&frames,
		&doc,
		&errorMessage,
		&resultPath,
		&contentSummary,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return session.Record{}, err
	}
	rec := session.Record{
		ID:             id,
		Status:         session.Status(status),
		Title:          title,
		Mode:           mode.String,
		ModeName:       modeName.String,
		Progress:       progressValue,
		Stage:          stage.String,
		StageProgress:  progress.Stages{STT: stt, Frames: frames, Doc: doc},
		Error:          errorMessage.String,
		ResultPath:     resultPath.String,
		ContentSummary: contentSummary.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.LastUpdated = updated
	}
	return rec, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
