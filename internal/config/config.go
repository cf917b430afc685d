package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	ArtifactRoot string `toml:"artifact_root"`
	UploadDir    string `toml:"upload_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// Workflow contains session runner timing and pipeline sizing.
type Workflow struct {
	StaleTimeoutSeconds  int `toml:"stale_timeout_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	SegmentSeconds       int `toml:"segment_seconds"`
	SegmentConcurrency   int `toml:"segment_concurrency"`
	MaxFramesPerSegment  int `toml:"max_frames_per_segment"`
}

// Calendar contains configuration for the meeting calendar watcher.
type Calendar struct {
	// Source selects the event source: "mock" or "file".
	Source              string `toml:"source"`
	EventsFile          string `toml:"events_file"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	HorizonHours        int    `toml:"horizon_hours"`
	ReminderLeadMinutes int    `toml:"reminder_lead_minutes"`
	NudgeDelayMinutes   int    `toml:"nudge_delay_minutes"`
}

// Content contains configuration for the recording content source.
type Content struct {
	// Source selects the content source: "mock" or "drive".
	Source       string `toml:"source"`
	DriveBaseURL string `toml:"drive_base_url"`
	AccessToken  string `toml:"access_token"`
	SampleVideo  string `toml:"sample_video"`
}

// LLM contains chat-completions connection settings used for documentation
// generation and relevance analysis.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	RelevanceModel string `toml:"relevance_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcription contains speech-to-text connection settings.
type Transcription struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	PublicBaseURL  string `toml:"public_base_url"`
	Reminders      bool   `toml:"reminders"`
	Nudges         bool   `toml:"nudges"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Modes contains documentation mode catalog settings.
type Modes struct {
	// CatalogPath overrides the built-in catalog with a YAML file.
	CatalogPath string `toml:"catalog_path"`
}

// Config encapsulates all configuration values for devlens.
//
// Configuration sections by subsystem:
//   - Paths: artifact, upload, state and log directories plus the API bind address
//   - Workflow: zombie threshold, sweep cadence and segment sizing
//   - Calendar: event source, trigger windows and polling
//   - Content: recording download source
//   - LLM: documentation generation and relevance analysis
//   - Transcription: Whisper-compatible speech-to-text
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Modes: documentation mode catalog override
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Calendar      Calendar      `toml:"calendar"`
	Content       Content       `toml:"content"`
	LLM           LLM           `toml:"llm"`
	Transcription Transcription `toml:"transcription"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Modes         Modes         `toml:"modes"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("devlens.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ArtifactRoot, c.Paths.UploadDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite session snapshot location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "devlens.lock")
}

// SessionArtifactDir returns the per-session output directory.
func (c *Config) SessionArtifactDir(sessionID string) string {
	return filepath.Join(c.Paths.ArtifactRoot, sessionID)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
