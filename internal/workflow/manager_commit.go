package workflow

import (
	"encoding/json"
	"path/filepath"

	"devlens/internal/fileutil"
	"devlens/internal/pipeline"
	"devlens/internal/services"
)

// Artifact names written into the session directory.
const (
	DocumentName = "documentation.md"
	SegmentsName = "segments.json"
)

// SegmentsFile is the on-disk shape of segments.json.
type SegmentsFile struct {
	Segments     []pipeline.Descriptor     `json:"segments"`
	Transcript   []pipeline.TranscriptLine `json:"transcript"`
	Placeholders int                       `json:"placeholders"`
}

// commit writes the merged document and segment descriptors, returning the
// document path.
func (m *Manager) commit(id string, result pipeline.Result) (string, error) {
	dir := m.cfg.SessionArtifactDir(id)
	docPath := filepath.Join(dir, DocumentName)
	if err := fileutil.WriteFile(docPath, []byte(result.Document)); err != nil {
		return "", services.Wrap(services.ErrTransient, "workflow", "commit", "write "+DocumentName, err)
	}

	transcript := result.Transcript
	if transcript == nil {
		transcript = []pipeline.TranscriptLine{}
	}
	payload, err := json.MarshalIndent(SegmentsFile{
		Segments:     result.Descriptors(),
		Transcript:   transcript,
		Placeholders: result.Placeholders,
	}, "", "  ")
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "workflow", "commit", "encode "+SegmentsName, err)
	}
	if err := fileutil.WriteFile(filepath.Join(dir, SegmentsName), append(payload, '\n')); err != nil {
		return "", services.Wrap(services.ErrTransient, "workflow", "commit", "write "+SegmentsName, err)
	}
	return docPath, nil
}
