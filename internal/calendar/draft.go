package calendar

import (
	"time"
)

// DraftStatus is the lightweight lifecycle of a calendar draft.
type DraftStatus string

const (
	StatusWaitingForUpload DraftStatus = "waiting_for_upload"
	StatusDownloading      DraftStatus = "downloading_from_drive"
	StatusProcessing       DraftStatus = "processing"
	StatusCompleted        DraftStatus = "completed"
	StatusFailed           DraftStatus = "failed"
)

// Metadata keys written by the watcher.
const (
	MetaEventStart   = "event_start"
	MetaEventEnd     = "event_end"
	MetaRecordingURL = "recording_url"
)

// sessionPrefix namespaces draft ids derived from calendar event ids.
const sessionPrefix = "cal_"

// ParseDraftStatus validates a draft status string.
func ParseDraftStatus(value string) (DraftStatus, bool) {
	switch status := DraftStatus(value); status {
	case StatusWaitingForUpload, StatusDownloading, StatusProcessing, StatusCompleted, StatusFailed:
		return status, true
	default:
		return "", false
	}
}

// Event is a meeting pulled from an event source.
type Event struct {
	ID           string    `yaml:"id" json:"id"`
	Title        string    `yaml:"title" json:"title"`
	Start        time.Time `yaml:"start" json:"start"`
	End          time.Time `yaml:"end" json:"end"`
	Attendees    []string  `yaml:"attendees" json:"attendees"`
	Keywords     []string  `yaml:"keywords" json:"keywords"`
	RecordingURL string    `yaml:"recording_url" json:"recording_url,omitempty"`
}

// DraftSession is a placeholder session created ahead of a meeting.
type DraftSession struct {
	SessionID       string         `json:"session_id"`
	EventID         string         `json:"event_id"`
	Title           string         `json:"title"`
	Attendees       []string       `json:"attendees"`
	ContextKeywords []string       `json:"context_keywords"`
	Status          DraftStatus    `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	SuggestedMode   string         `json:"suggested_mode,omitempty"`
	ReminderSent    bool           `json:"reminder_sent"`
	NudgeSent       bool           `json:"nudge_sent"`
	Metadata        map[string]any `json:"metadata"`
}

// DefaultProgress is the progress reported for a draft that has no session
// record of its own.
func (d DraftSession) DefaultProgress() int {
	switch d.Status {
	case StatusDownloading, StatusProcessing:
		return 30
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// RecordingURL returns the linked recording, if any.
func (d DraftSession) RecordingURL() string {
	if v, ok := d.Metadata[MetaRecordingURL].(string); ok {
		return v
	}
	return ""
}

func (d DraftSession) clone() DraftSession {
	out := d
	out.Attendees = append([]string(nil), d.Attendees...)
	out.ContextKeywords = append([]string(nil), d.ContextKeywords...)
	out.Metadata = make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		out.Metadata[k] = v
	}
	return out
}
