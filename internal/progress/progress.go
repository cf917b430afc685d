// Package progress maps a session's overall percentage onto the three
// pipeline stage bands (speech-to-text, frame analysis, documentation).
//
// The mapping carries no state: the breakdown is always recomputable from
// the overall value alone.
package progress

import "math"

// Band boundaries on the overall 0-100 scale.
const (
	STTEnd    = 30
	FramesEnd = 70
	DocEnd    = 100
)

// Stages is the per-stage completion breakdown, each value in [0,100].
type Stages struct {
	STT    int `json:"stt"`
	Frames int `json:"frames"`
	Doc    int `json:"doc"`
}

// Clamp bounds v to [0,100].
func Clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Clamped returns s with every stage bounded to [0,100].
func (s Stages) Clamped() Stages {
	return Stages{STT: Clamp(s.STT), Frames: Clamp(s.Frames), Doc: Clamp(s.Doc)}
}

// Breakdown converts overall progress p into stage progress. p=30 reports
// speech-to-text complete with frames at 0; p=70 reports frames complete
// with doc at 0.
func Breakdown(p int) Stages {
	p = Clamp(p)
	switch {
	case p <= STTEnd:
		return Stages{STT: scale(p, 0, STTEnd)}
	case p <= FramesEnd:
		return Stages{STT: 100, Frames: scale(p, STTEnd, FramesEnd)}
	default:
		return Stages{STT: 100, Frames: 100, Doc: scale(p, FramesEnd, DocEnd)}
	}
}

// Overall maps a fraction of work done inside a band back onto the overall
// scale. frac is clamped to [0,1].
func Overall(bandStart, bandEnd int, frac float64) int {
	if frac < 0 || math.IsNaN(frac) {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return Clamp(int(math.Round(float64(bandStart) + frac*float64(bandEnd-bandStart))))
}

// scale maps p in [start,end] onto 0..100. Exact halves round up, so p=31
// reports frames at 3 rather than 2.
func scale(p, start, end int) int {
	width := end - start
	return (200*(p-start) + width) / (2 * width)
}
