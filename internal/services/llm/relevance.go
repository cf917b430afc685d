package llm

import (
	"context"
	"fmt"
	"strings"

	"devlens/internal/pipeline"
	"devlens/internal/services"
)

var _ pipeline.RelevanceAnalyzer = (*Client)(nil)

// Relevance is the JSON payload returned by the relevance model.
type Relevance struct {
	Segments            []pipeline.Range `json:"relevant_segments"`
	TechnicalPercentage float64          `json:"technical_percentage"`
}

// AnalyzeRelevance asks the relevance model which time ranges of the
// transcript carry technical content. A malformed payload is an error; the
// caller decides what an empty range list means.
func (c *Client) AnalyzeRelevance(ctx context.Context, req pipeline.RelevanceRequest) ([]pipeline.Range, error) {
	const op = "llm relevance"
	if len(req.Transcript) == 0 {
		return nil, services.Wrap(services.ErrValidation, "llm", op, "transcript required", nil)
	}
	content, err := c.completeJSON(ctx, c.cfg.RelevanceModel, RelevancePrompt, buildRelevancePrompt(req), op)
	if err != nil {
		return nil, err
	}
	var parsed Relevance
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "llm", op, "parse payload", err)
	}
	return parsed.Segments, nil
}

func buildRelevancePrompt(req pipeline.RelevanceRequest) string {
	var b strings.Builder
	if req.Duration > 0 {
		fmt.Fprintf(&b, "Recording length: %.1f seconds.\n", req.Duration)
	}
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Context keywords: %s\n", strings.Join(req.Keywords, ", "))
	}
	b.WriteString("\nTranscript:\n")
	for _, line := range req.Transcript {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", line.Start, line.End, text)
	}
	return b.String()
}
