package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"devlens/internal/services"
)

// minSegmentSeconds is the smallest trailing remainder kept as its own
// segment; shorter tails are folded into the previous segment.
const minSegmentSeconds = 1.0

// Frame is one extracted still with its position in the recording.
type Frame struct {
	Path      string  `json:"path"`
	Timestamp float64 `json:"timestamp"`
}

// TranscriptLine is one timestamped speech-to-text segment.
type TranscriptLine struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Range is a relevant time span reported by the relevance analysis.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a contiguous slice of the recording documented on its own.
type Segment struct {
	Index        int
	Start        float64
	End          float64
	Frames       []Frame
	AudioSummary string
	Doc          string
	Placeholder  bool
}

// Descriptor is the wire form of a segment.
type Descriptor struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Doc   *string `json:"doc,omitempty"`
}

// Descriptor returns the wire form of s. Doc is omitted until generated.
func (s Segment) Descriptor() Descriptor {
	d := Descriptor{Index: s.Index, Start: s.Start, End: s.End}
	if s.Doc != "" {
		doc := s.Doc
		d.Doc = &doc
	}
	return d
}

// Duration reports the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SplitFixed cuts [0,duration) into segments of length seconds. A
// non-positive length yields one segment covering the whole duration.
func SplitFixed(duration, length float64) ([]Segment, error) {
	if err := checkDuration(duration); err != nil {
		return nil, err
	}
	if length <= 0 || length >= duration {
		return []Segment{{Index: 0, Start: 0, End: duration}}, nil
	}
	var cuts []float64
	for at := length; at < duration; at += length {
		cuts = append(cuts, at)
	}
	return SplitAt(duration, cuts)
}

// SplitAt cuts [0,duration) at the given points. Cuts outside (0,duration)
// and duplicates are ignored; order does not matter.
func SplitAt(duration float64, cuts []float64) ([]Segment, error) {
	if err := checkDuration(duration); err != nil {
		return nil, err
	}
	points := make([]float64, 0, len(cuts))
	for _, cut := range cuts {
		if math.IsNaN(cut) || cut <= 0 || cut >= duration {
			continue
		}
		points = append(points, cut)
	}
	sort.Float64s(points)

	segments := make([]Segment, 0, len(points)+1)
	start := 0.0
	for _, cut := range points {
		if cut-start < minSegmentSeconds {
			continue
		}
		segments = append(segments, Segment{Index: len(segments), Start: start, End: cut})
		start = cut
	}
	if duration-start < minSegmentSeconds && len(segments) > 0 {
		segments[len(segments)-1].End = duration
	} else {
		segments = append(segments, Segment{Index: len(segments), Start: start, End: duration})
	}
	return segments, nil
}

// UsableRanges clamps ranges to [0,duration] and drops empty or inverted ones.
func UsableRanges(ranges []Range, duration float64) []Range {
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if math.IsNaN(r.Start) || math.IsNaN(r.End) {
			continue
		}
		start := math.Max(r.Start, 0)
		end := math.Min(r.End, duration)
		if end <= start {
			continue
		}
		out = append(out, Range{Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// BoundariesFromRanges converts relevance ranges into cut points: every
// usable range start and end becomes a boundary.
func BoundariesFromRanges(ranges []Range, duration float64) []float64 {
	usable := UsableRanges(ranges, duration)
	cuts := make([]float64, 0, len(usable)*2)
	for _, r := range usable {
		cuts = append(cuts, r.Start, r.End)
	}
	return cuts
}

// AssignFrames returns a copy of segments with frames and transcript
// excerpts attached. A frame belongs to the segment with Start <= ts < End;
// the last segment also takes a frame at exactly its End. When maxFrames is
// positive, crowded segments keep an evenly spaced subset.
func AssignFrames(segments []Segment, frames []Frame, transcript []TranscriptLine, maxFrames int) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	if len(out) == 0 {
		return out
	}

	sorted := make([]Frame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	last := len(out) - 1
	for i := range out {
		out[i].Frames = nil
	}
	for _, frame := range sorted {
		for i := range out {
			seg := &out[i]
			inside := frame.Timestamp >= seg.Start && frame.Timestamp < seg.End
			if i == last && frame.Timestamp == seg.End {
				inside = true
			}
			if inside {
				seg.Frames = append(seg.Frames, frame)
				break
			}
		}
	}

	for i := range out {
		out[i].Frames = sampleFrames(out[i].Frames, maxFrames)
		out[i].AudioSummary = transcriptExcerpt(transcript, out[i].Start, out[i].End)
	}
	return out
}

func sampleFrames(frames []Frame, limit int) []Frame {
	if limit <= 0 || len(frames) <= limit {
		return frames
	}
	if limit == 1 {
		return []Frame{frames[0]}
	}
	out := make([]Frame, 0, limit)
	step := float64(len(frames)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		out = append(out, frames[int(math.Round(float64(i)*step))])
	}
	return out
}

func transcriptExcerpt(lines []TranscriptLine, start, end float64) string {
	var parts []string
	for _, line := range lines {
		if line.Start < end && line.End > start {
			if text := strings.TrimSpace(line.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

func checkDuration(duration float64) error {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "split", fmt.Sprintf("invalid duration %v", duration), nil)
	}
	return nil
}

// formatClock renders seconds as mm:ss, or h:mm:ss past one hour.
func formatClock(seconds float64) string {
	total := int(math.Round(seconds))
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
