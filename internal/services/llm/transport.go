package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"devlens/internal/logging"
	"devlens/internal/services"
)

var jsonObjectFormat = map[string]string{"type": "json_object"}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// chatMessage content is a string or a []contentPart for multimodal turns.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func textMessages(system, user string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// text returns the first non-blank message content with the finish reason
// and refusal of the choice that carried it, or of the first choice.
func (r chatResponse) text() (content, finish, refusal string) {
	for i, choice := range r.Choices {
		if i == 0 {
			finish = strings.TrimSpace(choice.FinishReason)
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if body := strings.TrimSpace(choice.Message.Content); body != "" {
			return body, strings.TrimSpace(choice.FinishReason), ""
		}
	}
	return "", finish, refusal
}

type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openrouter: http %d: %s", e.Code, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type blankReplyError struct {
	Finish  string
	Refusal string
	Snippet string
}

func (e *blankReplyError) Error() string {
	return fmt.Sprintf("openrouter: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)", e.Finish, e.Refusal, e.Snippet)
}

// complete sends req up to attempts times and returns the reply text.
// Exhausted retries wrap the last failure as transient.
func (c *Client) complete(ctx context.Context, req chatRequest, op string, attempts int) (string, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "llm", op, "encode request", err)
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.post(ctx, encoded)
		if err == nil {
			return content, nil
		}
		last = err
		delay, retry := c.backoff.next(ctx, err, attempt)
		if !retry {
			return "", classify(op, err)
		}
		if attempt == attempts {
			break
		}
		c.logger.Debug("llm request retry scheduled",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.backoff.wait(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrTransient, "llm", op, fmt.Sprintf("failed after %d attempts", attempts), last)
}

// classify maps a single failed request onto the service error taxonomy.
func classify(op string, err error) error {
	var status *statusError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &status) && (status.Code == http.StatusUnauthorized || status.Code == http.StatusForbidden):
		return services.Wrap(services.ErrConfiguration, "llm", op, "credentials rejected", err)
	case errors.As(err, &status) && status.retryable():
		return services.Wrap(services.ErrTransient, "llm", op, "upstream unavailable", err)
	case errors.As(err, &status):
		return services.Wrap(services.ErrExternalTool, "llm", op, "request rejected", err)
	default:
		return services.Wrap(services.ErrTransient, "llm", op, "request failed", err)
	}
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openrouter: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter: send (timeout=%s): %w", c.http.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openrouter: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &statusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openrouter: api error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	content, finish, refusal := parsed.text()
	if content == "" {
		return "", &blankReplyError{Finish: finish, Refusal: refusal, Snippet: snippet(string(raw))}
	}
	return content, nil
}

// backoff doubles from base up to ceiling between attempts.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleeper  func(time.Duration)
}

func defaultBackoff() backoff {
	return backoff{attempts: 5, base: time.Second, ceiling: 10 * time.Second}
}

func (b backoff) maxAttempts() int {
	return max(b.attempts, 1)
}

// next reports whether err is worth another attempt and how long to wait.
func (b backoff) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var blank *blankReplyError
	if errors.As(err, &blank) {
		return b.delay(attempt), true
	}
	var status *statusError
	if errors.As(err, &status) {
		if !status.retryable() {
			return 0, false
		}
		if status.RetryAfter > 0 {
			return b.clamp(status.RetryAfter), true
		}
		return b.delay(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return b.delay(attempt), true
	}
	return 0, false
}

func (b backoff) delay(attempt int) time.Duration {
	if b.base <= 0 {
		return 0
	}
	d := b.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.ceiling > 0 && d >= b.ceiling {
			break
		}
	}
	return b.clamp(d)
}

func (b backoff) clamp(d time.Duration) time.Duration {
	if b.ceiling > 0 && d > b.ceiling {
		return b.ceiling
	}
	return max(d, 0)
}

func (b backoff) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if b.sleeper != nil {
		b.sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return max(time.Duration(seconds)*time.Second, 0)
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
