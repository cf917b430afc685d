package session

import (
	"time"

	"devlens/internal/calendar"
	"devlens/internal/progress"
)

// Stage labels written by the controller itself.
const (
	StageInitializing = "initializing"
	StageCompleted    = "completed"
)

const (
	defaultTitle = "Untitled Session"
	zombiePrefix = "Zombie session:"
)

// Record is the authoritative state of one session.
type Record struct {
	ID             string
	Status         Status
	Title          string
	Mode           string
	ModeName       string
	Progress       int
	Stage          string
	StageProgress  progress.Stages
	Error          string
	ResultPath     string
	ContentSummary string
	CreatedAt      time.Time
	LastUpdated    time.Time
}

// Metadata seeds a new session.
type Metadata struct {
	Title            string `json:"title,omitempty"`
	ProjectName      string `json:"project_name,omitempty"`
	Mode             string `json:"mode,omitempty"`
	ModeName         string `json:"mode_name,omitempty"`
	StartImmediately bool   `json:"start_immediately,omitempty"`
}

// Source values reported on a Projection.
const (
	SourceSession  = "session"
	SourceCalendar = "calendar"
)

// Projection is the read-only view returned by status queries.
type Projection struct {
	SessionID     string          `json:"session_id"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	Stage         string          `json:"stage"`
	StageProgress progress.Stages `json:"stage_progress"`
	Title         string          `json:"title"`
	Mode          string          `json:"mode"`
	ModeName      string          `json:"mode_name"`
	Error         string          `json:"error,omitempty"`
	ResultPath    string          `json:"result_path,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LastUpdated   time.Time       `json:"last_updated"`
	Source        string          `json:"source"`
}

// Project converts a record into its wire projection.
func (r Record) Project() Projection {
	return Projection{
		SessionID:     r.ID,
		Status:        string(r.Status),
		Progress:      r.Progress,
		Stage:         r.Stage,
		StageProgress: r.StageProgress,
		Title:         r.Title,
		Mode:          r.Mode,
		ModeName:      r.ModeName,
		Error:         r.Error,
		ResultPath:    r.ResultPath,
		CreatedAt:     r.CreatedAt,
		LastUpdated:   r.LastUpdated,
		Source:        SourceSession,
	}
}

// DraftProjection renders a calendar draft in projection shape, with the
// progress implied by the draft status.
func DraftProjection(draft calendar.DraftSession, modeName string) Projection {
	value := draft.DefaultProgress()
	return Projection{
		SessionID:     draft.SessionID,
		Status:        string(draft.Status),
		Progress:      value,
		Stage:         string(draft.Status),
		StageProgress: progress.Breakdown(value),
		Title:         draft.Title,
		Mode:          draft.SuggestedMode,
		ModeName:      modeName,
		CreatedAt:     draft.CreatedAt,
		LastUpdated:   draft.CreatedAt,
		Source:        SourceCalendar,
	}
}
