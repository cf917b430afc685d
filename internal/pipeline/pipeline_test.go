package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"devlens/internal/instrument"
	"devlens/internal/pipeline"
	"devlens/internal/services"
)

type generatorFunc func(ctx context.Context, req pipeline.SegmentRequest) (string, error)

func (f generatorFunc) GenerateSegment(ctx context.Context, req pipeline.SegmentRequest) (string, error) {
	return f(ctx, req)
}

type analyzerFunc func(ctx context.Context, req pipeline.RelevanceRequest) ([]pipeline.Range, error)

func (f analyzerFunc) AnalyzeRelevance(ctx context.Context, req pipeline.RelevanceRequest) ([]pipeline.Range, error) {
	return f(ctx, req)
}

type transcriberFunc func(ctx context.Context, path string) ([]pipeline.TranscriptLine, error)

func (f transcriberFunc) Transcribe(ctx context.Context, path string) ([]pipeline.TranscriptLine, error) {
	return f(ctx, path)
}

type progressLog struct {
	mu     sync.Mutex
	values []int
	stages []string
}

func (p *progressLog) report(_ context.Context, stage string, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
	p.stages = append(p.stages, stage)
}

func (p *progressLog) assertMonotonic(t *testing.T) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 1; i < len(p.values); i++ {
		if p.values[i] < p.values[i-1] {
			t.Fatalf("progress went backwards: %v", p.values)
		}
	}
	if len(p.values) == 0 || p.values[0] != 0 || p.values[len(p.values)-1] != 100 {
		t.Fatalf("progress should run 0..100, got %v", p.values)
	}
}

func (p *progressLog) contains(value int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.values {
		if v == value {
			return true
		}
	}
	return false
}

func framesAt(root string, timestamps ...float64) []pipeline.Frame {
	frames := make([]pipeline.Frame, 0, len(timestamps))
	for i, ts := range timestamps {
		frames = append(frames, pipeline.Frame{
			Path:      filepath.Join(root, "s1", "frames", fmt.Sprintf("frame_%04d.jpg", i+1)),
			Timestamp: ts,
		})
	}
	return frames
}

func TestRunIsolatesSegmentFailures(t *testing.T) {
	root := t.TempDir()
	gen := generatorFunc(func(_ context.Context, req pipeline.SegmentRequest) (string, error) {
		if req.Index == 2 {
			return "", errors.New("upstream 503")
		}
		return fmt.Sprintf("# Heading from model\nSegment %d shows [Frame 1].", req.Index), nil
	})
	p, err := pipeline.New(gen, pipeline.WithArtifactRoot(root), pipeline.WithSegmentLength(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var log progressLog
	result, err := p.Run(context.Background(), pipeline.Job{
		SessionID: "s1",
		Title:     "Checkout",
		Duration:  40,
		// Segment 1 (10-20) has no frames.
		Frames: framesAt(root, 1, 22, 25, 31),
	}, log.report)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Segments) != 4 || result.Placeholders != 2 {
		t.Fatalf("unexpected result: %d segments, %d placeholders", len(result.Segments), result.Placeholders)
	}
	if !result.Segments[1].Placeholder || !strings.Contains(result.Segments[1].Doc, pipeline.ReasonNoFrames) {
		t.Fatalf("segment without frames should be a placeholder: %+v", result.Segments[1])
	}
	if !result.Segments[2].Placeholder || !strings.Contains(result.Segments[2].Doc, pipeline.ReasonGeneration) {
		t.Fatalf("failed segment should be a placeholder: %+v", result.Segments[2])
	}
	if !strings.Contains(result.Document, "Segment 0 shows ![Frame 1](s1/frames/frame_0001.jpg).") {
		t.Fatalf("frame reference not rewritten:\n%s", result.Document)
	}
	if !strings.Contains(result.Document, "Segment 3 shows ![Frame 1](s1/frames/frame_0004.jpg).") {
		t.Fatalf("frame ordinal should be relative to the segment:\n%s", result.Document)
	}
	if strings.Contains(result.Document, "Heading from model") {
		t.Fatalf("model headings should be stripped:\n%s", result.Document)
	}
	if result.Summary() != "4 segments, 2 placeholders" {
		t.Fatalf("unexpected summary %q", result.Summary())
	}
	log.assertMonotonic(t)
	if !log.contains(30) || !log.contains(70) {
		t.Fatalf("expected band boundaries in %v", log.values)
	}
}

func TestRunMergesInIndexOrderDespiteCompletionOrder(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, req pipeline.SegmentRequest) (string, error) {
		// Earlier segments finish later.
		time.Sleep(time.Duration(req.Total-req.Index) * 10 * time.Millisecond)
		return fmt.Sprintf("body-%d", req.Index), nil
	})
	p, _ := pipeline.New(gen, pipeline.WithSegmentLength(5), pipeline.WithConcurrency(4))
	result, err := p.Run(context.Background(), pipeline.Job{
		Duration: 20,
		Frames:   framesAt("", 1, 6, 11, 16),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := -1
	for i := 0; i < 4; i++ {
		pos := strings.Index(result.Document, fmt.Sprintf("body-%d", i))
		if pos <= last {
			t.Fatalf("segment %d out of order:\n%s", i, result.Document)
		}
		last = pos
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	gen := generatorFunc(func(context.Context, pipeline.SegmentRequest) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	p, _ := pipeline.New(gen, pipeline.WithSegmentLength(1), pipeline.WithConcurrency(2))
	var timestamps []float64
	for i := 0; i < 10; i++ {
		timestamps = append(timestamps, float64(i)+0.5)
	}
	if _, err := p.Run(context.Background(), pipeline.Job{Duration: 10, Frames: framesAt("", timestamps...)}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", got)
	}
}

func TestRunEmptyGenerationBecomesPlaceholder(t *testing.T) {
	gen := generatorFunc(func(context.Context, pipeline.SegmentRequest) (string, error) {
		return "# Only a heading\n", nil
	})
	p, _ := pipeline.New(gen)
	result, err := p.Run(context.Background(), pipeline.Job{Duration: 30, Frames: framesAt("", 3)}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Segments[0].Placeholder || !strings.Contains(result.Segments[0].Doc, pipeline.ReasonEmptyContent) {
		t.Fatalf("expected empty-content placeholder, got %+v", result.Segments[0])
	}
}

func TestRunUsesRelevanceBoundaries(t *testing.T) {
	var seen []pipeline.SegmentRequest
	var mu sync.Mutex
	gen := generatorFunc(func(_ context.Context, req pipeline.SegmentRequest) (string, error) {
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		return "text", nil
	})
	analyzer := analyzerFunc(func(_ context.Context, req pipeline.RelevanceRequest) ([]pipeline.Range, error) {
		if len(req.Keywords) != 1 || req.Keywords[0] != "checkout" || req.Duration != 100 {
			return nil, fmt.Errorf("unexpected request %+v", req)
		}
		return []pipeline.Range{{Start: 20, End: 60}}, nil
	})
	p, _ := pipeline.New(gen, pipeline.WithAnalyzer(analyzer))
	result, err := p.Run(context.Background(), pipeline.Job{
		Duration:   100,
		Keywords:   []string{"checkout"},
		Transcript: []pipeline.TranscriptLine{{Start: 25, End: 30, Text: "pay now"}},
		Frames:     framesAt("", 5, 25, 80),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Segments) != 3 || result.Segments[1].Start != 20 || result.Segments[1].End != 60 {
		t.Fatalf("unexpected segments %+v", result.Segments)
	}
	if result.Segments[1].AudioSummary != "pay now" {
		t.Fatalf("expected transcript excerpt, got %q", result.Segments[1].AudioSummary)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 generation calls, got %d", len(seen))
	}
}

func TestRunFailsWhenRelevanceAnalysisFails(t *testing.T) {
	gen := generatorFunc(func(context.Context, pipeline.SegmentRequest) (string, error) {
		t.Error("generator must not run after analysis failure")
		return "", nil
	})
	transcript := []pipeline.TranscriptLine{{Start: 0, End: 5, Text: "hello"}}
	tests := []struct {
		name     string
		analyzer analyzerFunc
	}{
		{"error", func(context.Context, pipeline.RelevanceRequest) ([]pipeline.Range, error) {
			return nil, errors.New("malformed JSON")
		}},
		{"no usable ranges", func(context.Context, pipeline.RelevanceRequest) ([]pipeline.Range, error) {
			return []pipeline.Range{{Start: 10, End: 5}}, nil
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := pipeline.New(gen, pipeline.WithAnalyzer(tc.analyzer))
			_, err := p.Run(context.Background(), pipeline.Job{Duration: 30, Transcript: transcript, Frames: framesAt("", 1)}, nil)
			if !errors.Is(err, pipeline.ErrAnalysisFailed) || !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected ErrAnalysisFailed, got %v", err)
			}
		})
	}
}

func TestRunTranscriptionFailureDegrades(t *testing.T) {
	var excerpts []string
	var mu sync.Mutex
	gen := generatorFunc(func(_ context.Context, req pipeline.SegmentRequest) (string, error) {
		mu.Lock()
		excerpts = append(excerpts, req.Transcript)
		mu.Unlock()
		return "text", nil
	})
	failing := transcriberFunc(func(context.Context, string) ([]pipeline.TranscriptLine, error) {
		return nil, errors.New("quota exceeded")
	})
	p, _ := pipeline.New(gen, pipeline.WithTranscriber(failing))
	result, err := p.Run(context.Background(), pipeline.Job{Duration: 10, AudioPath: "/tmp/audio.mp3", Frames: framesAt("", 1)}, nil)
	if err != nil {
		t.Fatalf("transcription failure must not fail the run: %v", err)
	}
	if len(result.Transcript) != 0 || excerpts[0] != "" {
		t.Fatalf("expected no transcript, got %+v / %q", result.Transcript, excerpts)
	}
}

func TestRunUsesTranscriber(t *testing.T) {
	sink := instrument.NewMemory(0)
	gen := generatorFunc(func(_ context.Context, req pipeline.SegmentRequest) (string, error) {
		return req.Transcript, nil
	})
	transcriber := transcriberFunc(func(_ context.Context, path string) ([]pipeline.TranscriptLine, error) {
		if path != "/tmp/audio.mp3" {
			return nil, fmt.Errorf("unexpected path %q", path)
		}
		return []pipeline.TranscriptLine{{Start: 0, End: 3, Text: "Welcome to the demo."}}, nil
	})
	p, _ := pipeline.New(gen,
		pipeline.WithTranscriber(transcriber),
		pipeline.WithTracer(instrument.New(nil, instrument.WithSink(sink))),
	)
	result, err := p.Run(context.Background(), pipeline.Job{SessionID: "s9", AudioPath: "/tmp/audio.mp3", Frames: framesAt("", 1)}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Document, "Welcome to the demo.") {
		t.Fatalf("transcript excerpt missing:\n%s", result.Document)
	}
	ops := map[string]bool{}
	for _, rec := range sink.Records() {
		ops[rec.Operation] = true
		if rec.SessionID != "s9" {
			t.Fatalf("trace record missing session id: %+v", rec)
		}
	}
	if !ops["pipeline.transcribe"] || !ops["pipeline.generate_segment"] {
		t.Fatalf("expected traced collaborator calls, got %v", ops)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	var calls atomic.Int32
	gen := generatorFunc(func(context.Context, pipeline.SegmentRequest) (string, error) {
		calls.Add(1)
		return "text", nil
	})
	p, _ := pipeline.New(gen)
	_, err := p.Run(context.Background(), pipeline.Job{
		Duration:    10,
		Frames:      framesAt("", 1),
		IsCancelled: func() bool { return true },
	}, nil)
	if !errors.Is(err, pipeline.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no segment should be generated after cancel")
	}
}

func TestRunRejectsEmptyMaterial(t *testing.T) {
	p, _ := pipeline.New(pipeline.OfflineGenerator{})
	if _, err := p.Run(context.Background(), pipeline.Job{}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewRequiresGenerator(t *testing.T) {
	if _, err := pipeline.New(nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOfflineGenerator(t *testing.T) {
	root := t.TempDir()
	p, _ := pipeline.New(pipeline.OfflineGenerator{}, pipeline.WithArtifactRoot(root))
	result, err := p.Run(context.Background(), pipeline.Job{
		Title:      "Offline",
		Duration:   60,
		Frames:     framesAt(root, 2, 40),
		Transcript: []pipeline.TranscriptLine{{Start: 0, End: 10, Text: "Narration."}},
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"# Offline", "Narration.", "![Frame 1](s1/frames/frame_0001.jpg)", "![Frame 2](s1/frames/frame_0002.jpg)"} {
		if !strings.Contains(result.Document, want) {
			t.Fatalf("missing %q in:\n%s", want, result.Document)
		}
	}
}

func TestJobArtifactRootOverridesPipelineRoot(t *testing.T) {
	root := t.TempDir()
	p, _ := pipeline.New(pipeline.OfflineGenerator{}, pipeline.WithArtifactRoot(filepath.Join(root, "elsewhere")))
	result, err := p.Run(context.Background(), pipeline.Job{
		Duration:     30,
		Frames:       framesAt(root, 5),
		ArtifactRoot: filepath.Join(root, "s1"),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Document, "![Frame 1](frames/frame_0001.jpg)") {
		t.Fatalf("expected session-relative frame path:\n%s", result.Document)
	}
}
