package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// OfflineGenerator documents a segment from its transcript excerpt and frame
// list without calling a model. The daemon uses it when no LLM key is set.
type OfflineGenerator struct{}

// GenerateSegment implements Generator.
func (OfflineGenerator) GenerateSegment(_ context.Context, req SegmentRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "### Notes (%s – %s)\n\n", formatClock(req.Start), formatClock(req.End))
	if text := strings.TrimSpace(req.Transcript); text != "" {
		b.WriteString(text)
	} else {
		b.WriteString("No narration was captured for this segment.")
	}
	b.WriteString("\n\n")
	for i, frame := range req.Frames {
		fmt.Fprintf(&b, "- %s: [Frame %d]\n", formatClock(frame.Timestamp), i+1)
	}
	return b.String(), nil
}
