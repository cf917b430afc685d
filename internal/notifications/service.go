package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devlens/internal/config"
)

const userAgent = "devlens/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventMeetingReminder    Event = "meeting_reminder"
	EventUploadNudge        Event = "upload_nudge"
	EventDocumentationReady Event = "documentation_ready"
	EventSessionFailed      Event = "session_failed"
	EventTest               Event = "test"
)

// Payload carries event fields. Recognised keys: "title", "sessionID",
// "recipients" ([]string), "error", "mode".
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		baseURL:  strings.TrimRight(cfg.Notifications.PublicBaseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventMeetingReminder:    cfg.Notifications.Reminders,
			EventUploadNudge:        cfg.Notifications.Nudges,
			EventDocumentationReady: cfg.Notifications.Completions,
			EventSessionFailed:      cfg.Notifications.Errors,
			EventTest:               true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint string
	baseURL  string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	recipients := payload.list("recipients")
	if len(recipients) == 0 {
		return n.send(ctx, msg, "")
	}
	var firstErr error
	for _, email := range recipients {
		if err := n.send(ctx, msg, email); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	title := payload.text("title")
	if title == "" {
		title = "Untitled Session"
	}
	sessionID := payload.text("sessionID")

	switch event {
	case EventMeetingReminder:
		return message{
			title: "DevLens - Meeting Reminder",
			body:  fmt.Sprintf("📧 Don't forget to record '%s' for DevLens!", title),
			tags:  []string{"devlens", "calendar", "reminder"},
		}, true
	case EventUploadNudge:
		link := n.link("/upload/" + sessionID)
		return message{
			title: "DevLens - Upload Recording",
			body:  fmt.Sprintf("Meeting '%s' ended. Upload the recording: %s", title, link),
			tags:  []string{"devlens", "calendar", "upload"},
			click: link,
		}, true
	case EventDocumentationReady:
		link := n.link("/results/" + sessionID)
		return message{
			title:    "DevLens - Documentation Ready",
			body:     fmt.Sprintf("✅ Documentation for '%s' is ready! View: %s", title, link),
			tags:     []string{"devlens", "session", "completed"},
			priority: "high",
			click:    link,
		}, true
	case EventSessionFailed:
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "DevLens - Session Failed",
			body:     fmt.Sprintf("❌ Session '%s' failed: %s", title, reason),
			tags:     []string{"devlens", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "DevLens - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"devlens", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) link(path string) string {
	if n.baseURL == "" {
		return path
	}
	return n.baseURL + path
}

func (n *ntfyService) send(ctx context.Context, msg message, email string) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}
	if msg.click != "" {
		req.Header.Set("Click", msg.click)
	}
	if email != "" {
		req.Header.Set("Email", email)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) list(key string) []string {
	if p == nil {
		return nil
	}
	var raw []string
	switch v := p[key].(type) {
	case []string:
		raw = v
	case string:
		raw = []string{v}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a Service that discards every event.
func NewNoop() Service { return noopService{} }
