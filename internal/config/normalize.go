package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCalendar(); err != nil {
		return err
	}
	if err := c.normalizeContent(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeTranscription()
	c.normalizeNotifications()
	c.normalizeLogging()
	if err := c.normalizeModes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ArtifactRoot, err = expandPath(c.Paths.ArtifactRoot); err != nil {
		return fmt.Errorf("paths.artifact_root: %w", err)
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DEVLENS_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCalendar() error {
	c.Calendar.Source = strings.ToLower(strings.TrimSpace(c.Calendar.Source))
	if c.Calendar.Source == "" {
		c.Calendar.Source = defaultCalendarSource
	}
	if strings.TrimSpace(c.Calendar.EventsFile) != "" {
		var err error
		if c.Calendar.EventsFile, err = expandPath(strings.TrimSpace(c.Calendar.EventsFile)); err != nil {
			return fmt.Errorf("calendar.events_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeContent() error {
	c.Content.Source = strings.ToLower(strings.TrimSpace(c.Content.Source))
	if c.Content.Source == "" {
		c.Content.Source = defaultContentSource
	}
	c.Content.DriveBaseURL = strings.TrimRight(strings.TrimSpace(c.Content.DriveBaseURL), "/")
	if c.Content.DriveBaseURL == "" {
		c.Content.DriveBaseURL = defaultDriveBaseURL
	}
	c.Content.AccessToken = strings.TrimSpace(c.Content.AccessToken)
	if c.Content.AccessToken == "" {
		if value, ok := os.LookupEnv("GOOGLE_DRIVE_ACCESS_TOKEN"); ok {
			c.Content.AccessToken = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Content.SampleVideo) != "" {
		var err error
		if c.Content.SampleVideo, err = expandPath(strings.TrimSpace(c.Content.SampleVideo)); err != nil {
			return fmt.Errorf("content.sample_video: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.RelevanceModel = strings.TrimSpace(c.LLM.RelevanceModel)
	if c.LLM.RelevanceModel == "" {
		c.LLM.RelevanceModel = c.LLM.Model
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeoutSec
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("GROQ_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DEVLENS_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Notifications.PublicBaseURL), "/")
	if c.Notifications.PublicBaseURL == "" {
		c.Notifications.PublicBaseURL = defaultPublicBaseURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeModes() error {
	path := strings.TrimSpace(c.Modes.CatalogPath)
	if path == "" {
		c.Modes.CatalogPath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("modes.catalog_path: %w", err)
	}
	c.Modes.CatalogPath = expanded
	return nil
}
