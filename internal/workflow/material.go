package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"devlens/internal/pipeline"
	"devlens/internal/services"
)

// Material is the manifest submitted for processing. Frames and audio are
// produced upstream; relative frame paths resolve against the session
// artifact directory and a relative audio path against the session upload
// directory.
type Material struct {
	Duration       float64                   `json:"duration"`
	Frames         []pipeline.Frame          `json:"frames"`
	AudioPath      string                    `json:"audio_path,omitempty"`
	Transcript     []pipeline.TranscriptLine `json:"transcript,omitempty"`
	Boundaries     []float64                 `json:"boundaries,omitempty"`
	Keywords       []string                  `json:"keywords,omitempty"`
	SegmentSeconds float64                   `json:"segment_seconds,omitempty"`
}

// Validate rejects manifests the pipeline cannot plan.
func (m Material) Validate() error {
	fail := func(msg string) error {
		return services.Wrap(services.ErrValidation, "workflow", "validate material", msg, nil)
	}
	if m.Duration < 0 {
		return fail(fmt.Sprintf("duration must be >= 0, got %g", m.Duration))
	}
	if m.SegmentSeconds < 0 {
		return fail(fmt.Sprintf("segment_seconds must be >= 0, got %g", m.SegmentSeconds))
	}
	for i, f := range m.Frames {
		if strings.TrimSpace(f.Path) == "" {
			return fail(fmt.Sprintf("frame %d has no path", i))
		}
		if f.Timestamp < 0 {
			return fail(fmt.Sprintf("frame %d has negative timestamp", i))
		}
	}
	for _, b := range m.Boundaries {
		if b < 0 {
			return fail("boundaries must be >= 0")
		}
	}
	if m.Duration == 0 && len(m.Frames) == 0 && len(m.Transcript) == 0 && strings.TrimSpace(m.AudioPath) == "" {
		return fail("material is empty")
	}
	return nil
}

func (m Material) audioPath(uploadDir string) string {
	path := strings.TrimSpace(m.AudioPath)
	if path == "" || filepath.IsAbs(path) || uploadDir == "" {
		return path
	}
	return filepath.Join(uploadDir, path)
}

// frames returns a copy of the frame list with relative paths joined onto
// artifactDir, so every collaborator reads the same files.
func (m Material) frames(artifactDir string) []pipeline.Frame {
	if len(m.Frames) == 0 {
		return nil
	}
	out := make([]pipeline.Frame, len(m.Frames))
	for i, f := range m.Frames {
		path := strings.TrimSpace(f.Path)
		if !filepath.IsAbs(path) && artifactDir != "" {
			path = filepath.Join(artifactDir, path)
		}
		out[i] = pipeline.Frame{Path: path, Timestamp: f.Timestamp}
	}
	return out
}
