package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"devlens/internal/logging"
	"devlens/internal/pipeline"
	"devlens/internal/services"
)

const (
	segmentTemperature = 0.4
	segmentMaxTokens   = 8192
)

var _ pipeline.Generator = (*Client)(nil)

// GenerateSegment documents one segment from its frames and transcript
// excerpt. Frames are attached inline as data URLs; frames that cannot be
// read are skipped, and a request with no readable frame fails.
func (c *Client) GenerateSegment(ctx context.Context, req pipeline.SegmentRequest) (string, error) {
	const op = "llm segment"
	if err := c.requireKey(op); err != nil {
		return "", err
	}

	parts := []contentPart{{Type: "text", Text: buildSegmentPrompt(req)}}
	attached := 0
	for i, frame := range req.Frames {
		url, err := frameDataURL(frame.Path)
		if err != nil {
			c.logger.Warn("frame not attached",
				logging.Int(logging.FieldSegment, req.Index),
				logging.Int("frame", i+1),
				logging.String("path", frame.Path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "frame_attach_failed"),
				logging.String(logging.FieldErrorHint, "check that extracted frames are still on disk"),
				logging.String(logging.FieldImpact, "segment documented without this frame"),
			)
			continue
		}
		parts = append(parts,
			contentPart{Type: "text", Text: fmt.Sprintf("Frame %d at %s:", i+1, clock(frame.Timestamp))},
			contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}},
		)
		attached++
	}
	if attached == 0 {
		return "", services.Wrap(services.ErrValidation, "llm", op,
			fmt.Sprintf("no readable frames for segment %d", req.Index), nil)
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(req)},
			{Role: "user", Content: parts},
		},
		Temperature: segmentTemperature,
		MaxTokens:   segmentMaxTokens,
	}
	content, err := c.complete(ctx, payload, op, c.backoff.maxAttempts())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stripMarkdownFence(content)), nil
}

func buildSystemPrompt(req pipeline.SegmentRequest) string {
	var b strings.Builder
	instruction := strings.TrimSpace(req.SystemInstruction)
	if instruction == "" {
		instruction = defaultSegmentInstruction
	}
	b.WriteString(instruction)
	if len(req.Guidelines) > 0 {
		b.WriteString("\n\nGuidelines:\n")
		for _, g := range req.Guidelines {
			if g = strings.TrimSpace(g); g != "" {
				b.WriteString("- ")
				b.WriteString(g)
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\n\n")
	b.WriteString(frameReferenceRule)
	return strings.TrimSpace(b.String())
}

func buildSegmentPrompt(req pipeline.SegmentRequest) string {
	var b strings.Builder
	b.WriteString("# Documentation Request\n\n")
	if title := strings.TrimSpace(req.Title); title != "" {
		fmt.Fprintf(&b, "**Project:** %s\n\n", title)
	}
	fmt.Fprintf(&b, "**Segment:** %d of %d (%s to %s)\n\n", req.Index+1, max(req.Total, req.Index+1), clock(req.Start), clock(req.End))
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "**Context keywords:** %s\n\n", strings.Join(req.Keywords, ", "))
	}
	if transcript := strings.TrimSpace(req.Transcript); transcript != "" {
		fmt.Fprintf(&b, "**Audio Transcript:**\n%s\n\n", transcript)
	}
	fmt.Fprintf(&b, "**Visual Frames:** %d screenshots from a video demonstration.\n\n", len(req.Frames))
	b.WriteString("Please analyze the frames")
	if strings.TrimSpace(req.Transcript) != "" {
		b.WriteString(" and transcript")
	}
	b.WriteString(" and document this segment according to your instructions.")
	if format := strings.TrimSpace(req.OutputFormat); format != "" && format != "markdown" {
		fmt.Fprintf(&b, " Output format: %s.", format)
	}
	return b.String()
}

func frameDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("frame %s is empty", path)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// stripMarkdownFence unwraps a response the model wrapped in a ```markdown fence.
func stripMarkdownFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		lang := strings.TrimSpace(body[:nl])
		if lang == "" || strings.EqualFold(lang, "markdown") || strings.EqualFold(lang, "md") {
			body = body[nl+1:]
		} else {
			return trimmed
		}
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func clock(seconds float64) string {
	total := int(seconds + 0.5)
	if total < 0 {
		total = 0
	}
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
