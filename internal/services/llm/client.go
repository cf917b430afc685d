package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"devlens/internal/logging"
	"devlens/internal/services"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout  = 15 * time.Second
)

// Config captures the OpenRouter settings for documentation and relevance.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RelevanceModel string
	Referer        string
	Title          string
	TimeoutSeconds int
}

func (c Config) normalized() Config {
	out := Config{
		APIKey:         strings.TrimSpace(c.APIKey),
		BaseURL:        strings.TrimSpace(c.BaseURL),
		Model:          strings.TrimSpace(c.Model),
		RelevanceModel: strings.TrimSpace(c.RelevanceModel),
		Referer:        strings.TrimSpace(c.Referer),
		Title:          strings.TrimSpace(c.Title),
		TimeoutSeconds: c.TimeoutSeconds,
	}
	if out.BaseURL == "" {
		out.BaseURL = defaultEndpoint
	}
	if out.RelevanceModel == "" {
		out.RelevanceModel = out.Model
	}
	return out
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// Client documents segments and scores transcript relevance through the
// OpenRouter chat completion API.
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	backoff backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts caps how many times one request is sent.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.backoff.attempts = attempts
	}
}

// WithRetryBackoff sets the first retry delay and the ceiling it doubles up to.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.backoff.base = base
		c.backoff.ceiling = ceiling
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.backoff.sleeper = sleeper
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.normalized()
	client := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.timeout()},
		logger:  logging.NewNop(),
		backoff: defaultBackoff(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "llm")
	return client
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

func (c *Client) requireKey(op string) error {
	if !c.Enabled() {
		return services.Wrap(services.ErrConfiguration, "llm", op, "api key required", nil)
	}
	return nil
}

const pingPrompt = `Reply with the JSON object {"ready":true} and nothing else.`

// Ping sends one small JSON completion to the documentation model and
// fails unless it answers ready. It does not retry, so a rejected key or an
// unknown model surfaces within a single round trip.
func (c *Client) Ping(ctx context.Context) error {
	const op = "llm ping"
	if err := c.requireKey(op); err != nil {
		return err
	}
	content, err := c.complete(ctx, chatRequest{
		Model:          c.cfg.Model,
		Messages:       textMessages("You answer health checks.", pingPrompt),
		ResponseFormat: jsonObjectFormat,
	}, op, 1)
	if err != nil {
		return err
	}
	var reply struct {
		Ready bool `json:"ready"`
	}
	if err := DecodeLLMJSON(content, &reply); err != nil {
		return services.Wrap(services.ErrExternalTool, "llm", op, "parse reply", err)
	}
	if !reply.Ready {
		return services.Wrap(services.ErrExternalTool, "llm", op, "model did not report ready", nil)
	}
	return nil
}

// completeJSON requests a deterministic JSON object from model.
func (c *Client) completeJSON(ctx context.Context, model, system, user, op string) (string, error) {
	system = strings.TrimSpace(system)
	user = strings.TrimSpace(user)
	if system == "" || user == "" {
		return "", services.Wrap(services.ErrValidation, "llm", op, "system and user prompts required", nil)
	}
	if err := c.requireKey(op); err != nil {
		return "", err
	}
	return c.complete(ctx, chatRequest{
		Model:          model,
		Messages:       textMessages(system, user),
		ResponseFormat: jsonObjectFormat,
	}, op, c.backoff.maxAttempts())
}
