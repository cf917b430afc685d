package contentsource

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"devlens/internal/fileutil"
	"devlens/internal/logging"
	"devlens/internal/services"
)

// MockContent is written when no sample video is configured.
const MockContent = "MOCK VIDEO CONTENT (No sample found)"

// Mock copies a local sample video instead of downloading.
type Mock struct {
	SampleVideo string

	logger *slog.Logger
}

// Name identifies the source.
func (m *Mock) Name() string { return "mock" }

// Fetch ignores url and materializes the sample at dest.
func (m *Mock) Fetch(ctx context.Context, _ string, dest string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	logger := m.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if m.SampleVideo != "" {
		n, err := fileutil.CopyFile(m.SampleVideo, dest)
		if err == nil {
			logger.Info("mock recording copied", logging.String("sample", m.SampleVideo), logging.String("dest", dest))
			return n, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return 0, services.Wrap(services.ErrTransient, "contentsource", "mock fetch", "copy sample", err)
		}
		logging.WarnWithContext(logger, "sample video missing", "mock_sample_missing",
			logging.String("sample", m.SampleVideo),
			logging.String(logging.FieldErrorHint, "set content.sample_video to an existing file"),
			logging.String(logging.FieldImpact, "placeholder bytes written instead of a recording"),
		)
	}
	if err := fileutil.WriteFile(dest, []byte(MockContent)); err != nil {
		return 0, services.Wrap(services.ErrTransient, "contentsource", "mock fetch", "write placeholder", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
