package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"devlens/internal/logging"
	"devlens/internal/services"
)

// EventSource lists meetings overlapping [from, to).
type EventSource interface {
	Upcoming(ctx context.Context, from, to time.Time) ([]Event, error)
}

// MockSource serves two deterministic fixture meetings anchored to the time
// it was created: a design review two hours out and a bug triage in five.
type MockSource struct {
	events []Event
}

// NewMockSource builds the fixture schedule relative to now.
func NewMockSource(now time.Time) *MockSource {
	now = now.UTC().Truncate(time.Minute)
	return &MockSource{events: []Event{
		{
			ID:        "mock_evt_1",
			Title:     "Checkout Redesign Kickoff",
			Start:     now.Add(2 * time.Hour),
			End:       now.Add(3 * time.Hour),
			Attendees: []string{"pm@example.com", "dev@example.com"},
			Keywords:  []string{"feature", "design"},
		},
		{
			ID:           "mock_evt_2",
			Title:        "Payment Crash Triage",
			Start:        now.Add(5 * time.Hour),
			End:          now.Add(5*time.Hour + 30*time.Minute),
			Attendees:    []string{"qa@example.com"},
			Keywords:     []string{"bug", "crash"},
			RecordingURL: "https://drive.google.com/file/d/mock-recording-2/view",
		},
	}}
}

// Upcoming returns fixture events starting inside the window.
func (m *MockSource) Upcoming(_ context.Context, from, to time.Time) ([]Event, error) {
	return filterWindow(m.events, from, to), nil
}

type scheduleFile struct {
	Events []Event `yaml:"events"`
}

// FileSource reads meetings from a YAML schedule:
//
//	events:
//	  - id: evt-1
//	    title: Sprint demo
//	    start: 2026-03-02T15:00:00Z
//	    end: 2026-03-02T15:30:00Z
//	    attendees: [alice@example.com]
//	    keywords: [feature]
type FileSource struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	events  []Event
	modTime time.Time
	loaded  bool
}

// NewFileSource returns a source backed by path. The file is read lazily.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileSource{path: path, logger: logging.NewComponentLogger(logger, "calendar-file")}
}

// Path returns the schedule file location.
func (f *FileSource) Path() string {
	return f.path
}

// Upcoming reloads the schedule when it changed on disk and filters it.
func (f *FileSource) Upcoming(_ context.Context, from, to time.Time) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reloadLocked(false); err != nil {
		return nil, err
	}
	return filterWindow(f.events, from, to), nil
}

// Reload forces the schedule to be re-read.
func (f *FileSource) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloadLocked(true)
}

func (f *FileSource) reloadLocked(force bool) error {
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.events = nil
			f.loaded = true
			return nil
		}
		return services.Wrap(services.ErrConfiguration, "calendar", "stat schedule", f.path, err)
	}
	if !force && f.loaded && info.ModTime().Equal(f.modTime) {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "calendar", "read schedule", f.path, err)
	}
	var schedule scheduleFile
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return services.Wrap(services.ErrValidation, "calendar", "parse schedule", f.path, err)
	}
	events := make([]Event, 0, len(schedule.Events))
	for i, evt := range schedule.Events {
		evt.ID = strings.TrimSpace(evt.ID)
		if evt.ID == "" {
			return services.Wrap(services.ErrValidation, "calendar", "parse schedule",
				fmt.Sprintf("event %d has no id", i), nil)
		}
		if !evt.End.After(evt.Start) {
			return services.Wrap(services.ErrValidation, "calendar", "parse schedule",
				fmt.Sprintf("event %s ends before it starts", evt.ID), nil)
		}
		events = append(events, evt)
	}
	f.events = events
	f.modTime = info.ModTime()
	f.loaded = true
	return nil
}

// Watch blocks until ctx is cancelled, reloading the schedule and invoking
// onChange whenever the file is written or replaced. The parent directory is
// watched so editors that rename over the file are handled.
func (f *FileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schedule watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(f.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := f.Reload(); err != nil {
				logging.WarnWithContext(f.logger, "schedule reload failed; keeping previous events", "calendar_schedule_invalid",
					logging.String("path", f.path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the YAML schedule file"),
					logging.String(logging.FieldImpact, "new or edited meetings are not picked up"),
				)
				continue
			}
			f.logger.Info("schedule reloaded", logging.String("path", f.path), logging.String(logging.FieldEventType, "calendar_schedule_reloaded"))
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Debug("schedule watcher error", logging.Error(err))
		}
	}
}

func filterWindow(events []Event, from, to time.Time) []Event {
	out := make([]Event, 0, len(events))
	for _, evt := range events {
		if evt.Start.Before(from) || !evt.Start.Before(to) {
			continue
		}
		out = append(out, evt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
