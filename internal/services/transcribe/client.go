package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devlens/internal/logging"
	"devlens/internal/pipeline"
	"devlens/internal/services"
)

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1/audio/transcriptions"
	defaultModel       = "whisper-large-v3"
	defaultHTTPTimeout = 300 * time.Second
	responseFormat     = "verbose_json"
)

// Config captures the transcription endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int
}

// Client uploads audio to a Whisper endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
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

// NewClient constructs a transcription client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Language:       strings.TrimSpace(cfg.Language),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	if c.cfg.Model == "" {
		c.cfg.Model = defaultModel
	}
	c.logger = logging.NewComponentLogger(c.logger, "transcribe")
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

var _ pipeline.Transcriber = (*Client)(nil)

type verboseResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the audio at path and returns its timestamped lines.
func (c *Client) Transcribe(ctx context.Context, path string) ([]pipeline.TranscriptLine, error) {
	const op = "transcribe"
	if !c.Enabled() {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", op, "api key required", nil)
	}
	body, contentType, err := c.buildForm(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, body)
	if err != nil {
		return nil, fmt.Errorf("transcribe: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", op, "http request", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", op, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "transcribe", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var parsed verboseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", op, "decode response", err)
	}
	if parsed.Error != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", op, "api error: "+parsed.Error.Message, nil)
	}

	lines := make([]pipeline.TranscriptLine, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		lines = append(lines, pipeline.TranscriptLine{Start: seg.Start, End: seg.End, Text: text})
	}
	if len(lines) == 0 {
		if text := strings.TrimSpace(parsed.Text); text != "" {
			lines = append(lines, pipeline.TranscriptLine{Start: 0, End: parsed.Duration, Text: text})
		}
	}

	c.logger.Info("transcription complete",
		logging.String("audio", filepath.Base(path)),
		logging.Int("lines", len(lines)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "transcription_complete"),
	)
	return lines, nil
}

func (c *Client) buildForm(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "transcribe", "open audio", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("transcribe: copy audio: %w", err)
	}
	fields := map[string]string{
		"model":           c.cfg.Model,
		"response_format": responseFormat,
	}
	if c.cfg.Language != "" {
		fields["language"] = c.cfg.Language
	}
	for _, key := range []string{"model", "response_format", "language"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := w.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("transcribe: write field %s: %w", key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transcribe: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
