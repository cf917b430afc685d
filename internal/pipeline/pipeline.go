package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"devlens/internal/instrument"
	"devlens/internal/logging"
	"devlens/internal/progress"
	"devlens/internal/services"
)

// Stage labels reported through ProgressFunc.
const (
	StageTranscribing = "transcribing"
	StageAnalyzing    = "analyzing_frames"
	StageGenerating   = "generating_docs"
)

const (
	defaultConcurrency   = 3
	defaultSegmentLength = 300.0
)

var (
	// ErrAnalysisFailed marks a relevance analysis that errored or returned
	// no usable ranges. It fails the whole run.
	ErrAnalysisFailed = errors.New("relevance analysis failed")
	// ErrCancelled is returned when the job's cancel check fires between bands.
	ErrCancelled = errors.New("pipeline cancelled")
)

// ProgressFunc receives overall progress on the 0-100 scale.
type ProgressFunc func(ctx context.Context, stage string, percent int)

// SegmentRequest is the input for documenting one segment.
type SegmentRequest struct {
	SessionID         string
	Title             string
	Mode              string
	SystemInstruction string
	OutputFormat      string
	Guidelines        []string
	Keywords          []string
	Index             int
	Total             int
	Start             float64
	End               float64
	Frames            []Frame
	Transcript        string
}

// RelevanceRequest is the input for the relevance analysis.
type RelevanceRequest struct {
	SessionID  string
	AudioPath  string
	Duration   float64
	Keywords   []string
	Transcript []TranscriptLine
}

// Generator documents one segment.
type Generator interface {
	GenerateSegment(ctx context.Context, req SegmentRequest) (string, error)
}

// RelevanceAnalyzer reports the time ranges worth documenting.
type RelevanceAnalyzer interface {
	AnalyzeRelevance(ctx context.Context, req RelevanceRequest) ([]Range, error)
}

// Transcriber converts an audio file into timestamped text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]TranscriptLine, error)
}

// Job is the material and context for one run.
type Job struct {
	SessionID         string
	Title             string
	Mode              string
	SystemInstruction string
	OutputFormat      string
	Guidelines        []string
	Keywords          []string
	Duration          float64
	Frames            []Frame
	AudioPath         string
	Transcript        []TranscriptLine
	Boundaries        []float64
	SegmentSeconds    float64
	// ArtifactRoot overrides the pipeline-wide root for frame references.
	ArtifactRoot string
	// IsCancelled is polled between bands. Nil means never cancelled.
	IsCancelled func() bool
}

// Result is the outcome of a successful run.
type Result struct {
	Document     string
	Segments     []Segment
	Transcript   []TranscriptLine
	Placeholders int
}

// Summary renders a one-line description of the result.
func (r Result) Summary() string {
	summary := fmt.Sprintf("%d segments", len(r.Segments))
	if len(r.Segments) == 1 {
		summary = "1 segment"
	}
	if r.Placeholders > 0 {
		summary += fmt.Sprintf(", %d placeholder", r.Placeholders)
		if r.Placeholders > 1 {
			summary += "s"
		}
	}
	return summary
}

// Descriptors returns the wire form of every segment in index order.
func (r Result) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.Segments))
	for _, seg := range r.Segments {
		out = append(out, seg.Descriptor())
	}
	return out
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscriber enables the speech-to-text band for jobs with audio.
func WithTranscriber(t Transcriber) Option {
	return func(p *Pipeline) { p.transcriber = t }
}

// WithAnalyzer enables relevance-based segmentation.
func WithAnalyzer(a RelevanceAnalyzer) Option {
	return func(p *Pipeline) { p.analyzer = a }
}

// WithConcurrency bounds parallel segment generation.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithSegmentLength sets the fixed split length in seconds.
func WithSegmentLength(seconds float64) Option {
	return func(p *Pipeline) {
		if seconds > 0 {
			p.segmentLength = seconds
		}
	}
}

// WithMaxFrames caps the frames sent per segment. Zero means no cap.
func WithMaxFrames(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxFrames = n
		}
	}
}

// WithArtifactRoot sets the directory frame references are made relative to.
func WithArtifactRoot(root string) Option {
	return func(p *Pipeline) { p.artifactRoot = root }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer wraps collaborator calls in trace records.
func WithTracer(t *instrument.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// Pipeline runs jobs against its collaborators. It holds no per-job state
// and is safe for concurrent use.
type Pipeline struct {
	generator     Generator
	transcriber   Transcriber
	analyzer      RelevanceAnalyzer
	concurrency   int
	segmentLength float64
	maxFrames     int
	artifactRoot  string
	logger        *slog.Logger
	tracer        *instrument.Tracer
}

// New constructs a pipeline around gen.
func New(gen Generator, opts ...Option) (*Pipeline, error) {
	if gen == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "generator is required", nil)
	}
	p := &Pipeline{
		generator:     gen,
		concurrency:   defaultConcurrency,
		segmentLength: defaultSegmentLength,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p, nil
}

// Run executes the three bands for job. Segment-level failures become
// placeholders; only validation, relevance analysis, cancellation and
// context errors fail the run.
func (p *Pipeline) Run(ctx context.Context, job Job, report ProgressFunc) (Result, error) {
	if report == nil {
		report = func(context.Context, string, int) {}
	}
	ctx = services.WithSessionID(ctx, job.SessionID)
	logger := logging.WithContext(ctx, p.logger)

	// Speech-to-text band.
	report(ctx, StageTranscribing, 0)
	transcript := p.transcribe(ctx, logger, job)
	report(ctx, StageTranscribing, progress.STTEnd)
	if err := checkCancelled(ctx, job); err != nil {
		return Result{}, err
	}

	// Frame analysis band.
	duration := job.Duration
	if duration <= 0 {
		duration = inferDuration(job.Frames, transcript)
	}
	segments, err := p.segment(ctx, job, duration, transcript)
	if err != nil {
		return Result{}, err
	}
	report(ctx, StageAnalyzing, progress.Overall(progress.STTEnd, progress.FramesEnd, 0.5))
	segments = AssignFrames(segments, job.Frames, transcript, p.maxFrames)
	report(ctx, StageAnalyzing, progress.FramesEnd)
	logger.Info("segments planned",
		logging.Int("segments", len(segments)),
		logging.Int("frames", len(job.Frames)),
		logging.Float64("duration_seconds", duration),
		logging.String(logging.FieldEventType, "segments_planned"),
	)
	if err := checkCancelled(ctx, job); err != nil {
		return Result{}, err
	}

	// Documentation band.
	segments = p.generate(ctx, logger, job, segments, report)
	if err := checkCancelled(ctx, job); err != nil {
		return Result{}, err
	}

	root := p.artifactRoot
	if strings.TrimSpace(job.ArtifactRoot) != "" {
		root = job.ArtifactRoot
	}
	placeholders := 0
	for i := range segments {
		if segments[i].Placeholder {
			placeholders++
			continue
		}
		segments[i].Doc = RewriteFrameRefs(segments[i].Doc, segments[i].Frames, root)
	}
	result := Result{
		Document:     Merge(job.Title, segments),
		Segments:     segments,
		Transcript:   transcript,
		Placeholders: placeholders,
	}
	logger.Info("document merged",
		logging.Int("segments", len(segments)),
		logging.Int("placeholders", placeholders),
		logging.Int("document_bytes", len(result.Document)),
		logging.String(logging.FieldEventType, "document_merged"),
	)
	return result, nil
}

func (p *Pipeline) transcribe(ctx context.Context, logger *slog.Logger, job Job) []TranscriptLine {
	if len(job.Transcript) > 0 {
		return job.Transcript
	}
	if p.transcriber == nil || strings.TrimSpace(job.AudioPath) == "" {
		return nil
	}
	var lines []TranscriptLine
	err := p.tracer.Trace(ctx, "pipeline.transcribe", func(ctx context.Context) error {
		var err error
		lines, err = p.transcriber.Transcribe(ctx, job.AudioPath)
		return err
	})
	if err != nil {
		logging.WarnWithContext(logger, "transcription failed; continuing without transcript", "transcription_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Classify(err)),
			logging.String(logging.FieldImpact, "segments are documented from frames only"),
		)
		return nil
	}
	return lines
}

func (p *Pipeline) segment(ctx context.Context, job Job, duration float64, transcript []TranscriptLine) ([]Segment, error) {
	if len(job.Boundaries) > 0 {
		return SplitAt(duration, job.Boundaries)
	}
	if p.analyzer != nil && len(transcript) > 0 {
		if err := checkDuration(duration); err != nil {
			return nil, err
		}
		var ranges []Range
		err := p.tracer.Trace(ctx, "pipeline.analyze_relevance", func(ctx context.Context) error {
			var err error
			ranges, err = p.analyzer.AnalyzeRelevance(ctx, RelevanceRequest{
				SessionID:  job.SessionID,
				AudioPath:  job.AudioPath,
				Duration:   duration,
				Keywords:   job.Keywords,
				Transcript: transcript,
			})
			return err
		})
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "pipeline", "analyze relevance",
				"no segment boundaries", fmt.Errorf("%w: %w", ErrAnalysisFailed, err))
		}
		cuts := BoundariesFromRanges(ranges, duration)
		if len(cuts) == 0 {
			return nil, services.Wrap(services.ErrExternalTool, "pipeline", "analyze relevance",
				"no segment boundaries", fmt.Errorf("%w: no usable ranges in %d returned", ErrAnalysisFailed, len(ranges)))
		}
		return SplitAt(duration, cuts)
	}
	length := job.SegmentSeconds
	if length <= 0 {
		length = p.segmentLength
	}
	return SplitFixed(duration, length)
}

func (p *Pipeline) generate(ctx context.Context, logger *slog.Logger, job Job, segments []Segment, report ProgressFunc) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)

	var (
		mu   sync.Mutex
		done int
	)
	finished := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		report(ctx, StageGenerating, progress.Overall(progress.FramesEnd, progress.DocEnd, float64(done)/float64(len(out))))
	}

	report(ctx, StageGenerating, progress.FramesEnd)
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range out {
		g.Go(func() error {
			defer finished()
			seg := &out[i]
			segCtx := services.WithStage(ctx, fmt.Sprintf("%s/%d", StageGenerating, seg.Index))
			if len(seg.Frames) == 0 {
				seg.Doc, seg.Placeholder = Placeholder(*seg, ReasonNoFrames), true
				return nil
			}
			var text string
			err := p.tracer.Trace(segCtx, "pipeline.generate_segment", func(ctx context.Context) error {
				var err error
				text, err = p.generator.GenerateSegment(ctx, SegmentRequest{
					SessionID:         job.SessionID,
					Title:             job.Title,
					Mode:              job.Mode,
					SystemInstruction: job.SystemInstruction,
					OutputFormat:      job.OutputFormat,
					Guidelines:        job.Guidelines,
					Keywords:          job.Keywords,
					Index:             seg.Index,
					Total:             len(out),
					Start:             seg.Start,
					End:               seg.End,
					Frames:            seg.Frames,
					Transcript:        seg.AudioSummary,
				})
				return err
			})
			switch {
			case err != nil:
				logging.WarnWithContext(logger, "segment generation failed; using placeholder", "segment_placeholder",
					logging.Int(logging.FieldSegment, seg.Index),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, services.Classify(err)),
					logging.String(logging.FieldImpact, "segment rendered as placeholder"),
				)
				seg.Doc, seg.Placeholder = Placeholder(*seg, ReasonGeneration), true
			case strings.TrimSpace(StripLeadingHeadings(text)) == "":
				seg.Doc, seg.Placeholder = Placeholder(*seg, ReasonEmptyContent), true
			default:
				seg.Doc = strings.TrimSpace(text)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func checkCancelled(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.IsCancelled != nil && job.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

// inferDuration derives a duration from the material when the job omits one.
func inferDuration(frames []Frame, transcript []TranscriptLine) float64 {
	duration := 0.0
	for _, f := range frames {
		duration = math.Max(duration, f.Timestamp+1)
	}
	for _, line := range transcript {
		duration = math.Max(duration, line.End)
	}
	return duration
}
