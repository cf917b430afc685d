package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devlens/internal/calendar"
	"devlens/internal/instrument"
	"devlens/internal/modes"
	"devlens/internal/services"
	"devlens/internal/session"
)

const defaultTimeout = 15 * time.Second

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Code    int
	Message string
	marker  error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned http %d", e.Code)
	}
	return fmt.Sprintf("daemon returned http %d: %s", e.Code, e.Message)
}

// Unwrap exposes the services marker matching the status code.
func (e *StatusError) Unwrap() error { return e.marker }

// Client talks to a running daemon.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) ClientOption {
	return func(cl *Client) { cl.token = strings.TrimSpace(token) }
}

// NewClient targets addr, either a host:port bind address or a full URL.
func NewClient(addr string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{baseURL: base, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the resolved endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Sessions lists every session.
func (c *Client) Sessions(ctx context.Context) ([]session.Projection, error) {
	var out SessionListResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Session returns the projection for id, falling back to a calendar draft.
func (c *Client) Session(ctx context.Context, id string) (session.Projection, error) {
	var out session.Projection
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateSession registers a session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (session.Projection, error) {
	var out session.Projection
	err := c.do(ctx, http.MethodPost, "/api/sessions", req, &out)
	return out, err
}

// Cancel requests cancellation and reports whether it took effect.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var out ActionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

// Process submits material for id.
func (c *Client) Process(ctx context.Context, id string, material ProcessRequest) (ProcessResponse, error) {
	var out ProcessResponse
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/process", material, &out)
	return out, err
}

// Active returns the active session, or nil when there is none.
func (c *Client) Active(ctx context.Context) (*session.Projection, error) {
	var out *session.Projection
	if err := c.do(ctx, http.MethodGet, "/api/active-session", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Drafts lists calendar drafts, optionally filtered by status.
func (c *Client) Drafts(ctx context.Context, statuses ...calendar.DraftStatus) ([]calendar.DraftSession, error) {
	path := "/api/drafts"
	if len(statuses) > 0 {
		q := url.Values{}
		for _, s := range statuses {
			q.Add("status", string(s))
		}
		path += "?" + q.Encode()
	}
	var out DraftListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Drafts, nil
}

// ImportDraft downloads the draft recording and promotes it to a session.
func (c *Client) ImportDraft(ctx context.Context, id string) (ImportResponse, error) {
	var out ImportResponse
	err := c.do(ctx, http.MethodPost, "/api/drafts/"+url.PathEscape(id)+"/import", nil, &out)
	return out, err
}

// Modes lists documentation modes.
func (c *Client) Modes(ctx context.Context) ([]modes.Info, error) {
	var out ModesResponse
	if err := c.do(ctx, http.MethodGet, "/api/modes", nil, &out); err != nil {
		return nil, err
	}
	return out.Modes, nil
}

// Traces returns the daemon's recent trace records.
func (c *Client) Traces(ctx context.Context) ([]instrument.Record, error) {
	var out TraceListResponse
	if err := c.do(ctx, http.MethodGet, "/api/traces", nil, &out); err != nil {
		return nil, err
	}
	return out.Traces, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "api", "request", "daemon address not configured", nil)
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api", method+" "+path, "daemon unreachable at "+c.baseURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int, data []byte) error {
	var payload ErrorResponse
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	return &StatusError{Code: code, Message: message, marker: markerFor(code)}
}

func markerFor(code int) error {
	switch code {
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return services.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return services.ErrConfiguration
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return services.ErrTransient
	default:
		return errors.New("daemon request failed")
	}
}

// StatusCodeFor maps an error onto the HTTP status the daemon replies with.
func StatusCodeFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTransient), errors.Is(err, services.ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrExternalTool):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
