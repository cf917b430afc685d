package testsupport

import (
	"path/filepath"
	"testing"

	"devlens/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// External collaborators default to their offline variants.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ArtifactRoot = filepath.Join(base, "artifacts")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Calendar.Source = "mock"
	cfgVal.Content.Source = "mock"
	cfgVal.LLM.APIKey = ""
	cfgVal.Transcription.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIToken requires bearer auth on the generated config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithLLM points the LLM client at baseURL.
func WithLLM(baseURL, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.APIKey = apiKey
	}
}

// WithCalendarFile switches the calendar to a schedule file inside the temp dir.
func WithCalendarFile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Calendar.Source = "file"
		b.cfg.Calendar.EventsFile = filepath.Join(b.baseDir, name)
	}
}

// WithSegmentSeconds overrides the fixed split length.
func WithSegmentSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.SegmentSeconds = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
