package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Placeholder reasons.
const (
	ReasonNoFrames     = "No usable frames were captured in this time range."
	ReasonGeneration   = "Documentation generation failed for this segment."
	ReasonEmptyContent = "The generator returned no content for this segment."
)

const (
	defaultDocumentTitle = "Session Documentation"
	segmentSeparator     = "---"
	placeholderMarker    = "> ⚠️ **Content unavailable.**"
)

// Placeholder returns the deterministic note used in place of a segment's
// generated content.
func Placeholder(seg Segment, reason string) string {
	return fmt.Sprintf("%s %s\n>\n> Segment %d covers %s to %s.",
		placeholderMarker, reason, seg.Index+1, formatClock(seg.Start), formatClock(seg.End))
}

// IsPlaceholder reports whether text was produced by Placeholder.
func IsPlaceholder(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), placeholderMarker)
}

// Merge assembles one document from segments ordered by index, regardless
// of the order they are passed in.
func Merge(title string, segments []Segment) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultDocumentTitle
	}
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, seg := range ordered {
		fmt.Fprintf(&b, "## Segment %d (%s – %s)\n\n", seg.Index+1, formatClock(seg.Start), formatClock(seg.End))
		if body := StripLeadingHeadings(seg.Doc); body != "" {
			b.WriteString(body)
			b.WriteString("\n\n")
		}
		b.WriteString(segmentSeparator)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// StripLeadingHeadings drops the markdown headings and blank lines that open
// text. Applying it twice gives the same result as once.
func StripLeadingHeadings(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || isHeading(line) {
			i++
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

func isHeading(line string) bool {
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	if hashes == 0 || hashes > 6 {
		return false
	}
	return hashes == len(line) || line[hashes] == ' ' || line[hashes] == '\t'
}
