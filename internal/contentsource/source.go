package contentsource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"devlens/internal/config"
	"devlens/internal/logging"
	"devlens/internal/services"
)

// Source downloads a recording referenced by url to dest.
type Source interface {
	Name() string
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// Option customizes constructed sources.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient overrides the Drive HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithLogger sets the source logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New returns the source named by cfg.Content.Source.
func New(cfg *config.Config, opts ...Option) (Source, error) {
	o := options{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.NewComponentLogger(o.logger, "contentsource")
	if cfg == nil {
		return &Mock{logger: logger}, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Content.Source)) {
	case "", "mock":
		return &Mock{SampleVideo: cfg.Content.SampleVideo, logger: logger}, nil
	case "drive":
		return &Drive{
			BaseURL:     strings.TrimRight(cfg.Content.DriveBaseURL, "/"),
			AccessToken: cfg.Content.AccessToken,
			client:      o.httpClient,
			logger:      logger,
		}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "contentsource", "select source",
			fmt.Sprintf("unknown content source %q", cfg.Content.Source), nil)
	}
}

var fileIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`drive\.google\.com/file/d/([-_\w]+)`),
	regexp.MustCompile(`drive\.google\.com/open\?id=([-_\w]+)`),
	regexp.MustCompile(`docs\.google\.com/(?:presentation|document)/d/([-_\w]+)`),
	regexp.MustCompile(`[?&]id=([-_\w]+)`),
}

// ExtractFileID returns the Drive file id embedded in url.
func ExtractFileID(url string) (string, bool) {
	for _, pattern := range fileIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1], true
		}
	}
	return "", false
}
