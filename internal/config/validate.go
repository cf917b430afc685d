package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateCalendar(); err != nil {
		return err
	}
	if err := c.validateContent(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ArtifactRoot) == "" {
		return errors.New("paths.artifact_root must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.stale_timeout_seconds":  c.Workflow.StaleTimeoutSeconds,
		"workflow.sweep_interval_seconds": c.Workflow.SweepIntervalSeconds,
		"workflow.segment_seconds":        c.Workflow.SegmentSeconds,
		"workflow.segment_concurrency":    c.Workflow.SegmentConcurrency,
		"workflow.max_frames_per_segment": c.Workflow.MaxFramesPerSegment,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.SweepIntervalSeconds > c.Workflow.StaleTimeoutSeconds {
		return errors.New("workflow.sweep_interval_seconds must not exceed workflow.stale_timeout_seconds")
	}
	return nil
}

func (c *Config) validateCalendar() error {
	switch c.Calendar.Source {
	case "mock":
	case "file":
		if strings.TrimSpace(c.Calendar.EventsFile) == "" {
			return errors.New("calendar.events_file must be set when calendar.source is \"file\"")
		}
	default:
		return fmt.Errorf("calendar.source: unsupported value %q (want mock or file)", c.Calendar.Source)
	}
	if err := ensurePositiveMap(map[string]int{
		"calendar.poll_interval_seconds": c.Calendar.PollIntervalSeconds,
		"calendar.horizon_hours":         c.Calendar.HorizonHours,
		"calendar.reminder_lead_minutes": c.Calendar.ReminderLeadMinutes,
	}); err != nil {
		return err
	}
	if c.Calendar.NudgeDelayMinutes < 0 {
		return errors.New("calendar.nudge_delay_minutes must be >= 0")
	}
	return nil
}

func (c *Config) validateContent() error {
	switch c.Content.Source {
	case "mock":
	case "drive":
		if strings.TrimSpace(c.Content.AccessToken) == "" {
			return errors.New("content.access_token must be set when content.source is \"drive\" (or set GOOGLE_DRIVE_ACCESS_TOKEN)")
		}
	default:
		return fmt.Errorf("content.source: unsupported value %q (want mock or drive)", c.Content.Source)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
