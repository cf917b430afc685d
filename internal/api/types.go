package api

import (
	"devlens/internal/calendar"
	"devlens/internal/instrument"
	"devlens/internal/modes"
	"devlens/internal/session"
	"devlens/internal/workflow"
)

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool                   `json:"running"`
	PID           int                    `json:"pid"`
	LockPath      string                 `json:"lock_path"`
	DatabasePath  string                 `json:"database_path"`
	ContentSource string                 `json:"content_source"`
	Sessions      map[string]int         `json:"sessions"`
	Drafts        int                    `json:"drafts"`
	Workflow      workflow.StatusSummary `json:"workflow"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	session.Metadata
}

// SessionListResponse wraps GET /api/sessions.
type SessionListResponse struct {
	Sessions []session.Projection `json:"sessions"`
}

// ActionResponse reports whether a state change took effect.
type ActionResponse struct {
	Success bool `json:"success"`
}

// ProcessRequest is the material manifest of POST /api/sessions/{id}/process.
type ProcessRequest = workflow.Material

// ProcessResponse acknowledges an accepted submission.
type ProcessResponse struct {
	SessionID string `json:"session_id"`
	Accepted  bool   `json:"accepted"`
}

// DraftListResponse wraps GET /api/drafts.
type DraftListResponse struct {
	Drafts []calendar.DraftSession `json:"drafts"`
}

// ImportResponse describes a draft promoted to a session.
type ImportResponse struct {
	Session       session.Projection `json:"session"`
	RecordingPath string             `json:"recording_path"`
	Bytes         int64              `json:"bytes"`
}

// ModesResponse wraps GET /api/modes.
type ModesResponse struct {
	Modes []modes.Info `json:"modes"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TraceListResponse wraps GET /api/traces, oldest record first.
type TraceListResponse struct {
	Traces []instrument.Record `json:"traces"`
}
