// Package pipeline turns a session's material (frames, audio, transcript)
// into one merged markdown document.
//
// The duration is split into contiguous segments, either at fixed length or
// at cut points derived from a relevance analysis. Each segment is documented
// independently and in parallel. A segment without frames, or whose
// generation fails, gets a placeholder instead of failing the job, so only
// the relevance analysis (which has no per-segment fallback) can fail a whole
// run. Merge always orders by segment index, and inline [Frame N] tokens are
// rewritten into image references relative to the artifact root.
//
// Progress is reported through a ProgressFunc in three bands: speech-to-text
// 0-30, frame analysis 30-70, documentation 70-100.
package pipeline
