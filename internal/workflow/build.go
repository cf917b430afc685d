package workflow

import (
	"context"
	"log/slog"
	"time"

	"devlens/internal/config"
	"devlens/internal/instrument"
	"devlens/internal/pipeline"
	"devlens/internal/services/llm"
	"devlens/internal/services/transcribe"
)

// Built bundles a configured pipeline with the readiness of its collaborators.
type Built struct {
	Pipeline *pipeline.Pipeline
	Health   []StageHealth
}

// llmPingTimeout bounds the readiness round trip made while building.
const llmPingTimeout = 10 * time.Second

// BuildPipeline wires the pipeline collaborators named by cfg. Without an
// LLM key documentation falls back to the offline generator and relevance
// analysis is skipped; without a transcription key the STT band only uses
// transcripts supplied with the material. A configured LLM is pinged once and
// reported unready with the failure detail when the ping fails; it stays
// wired so a later recovery needs no restart.
func BuildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, tracer *instrument.Tracer) (Built, error) {
	opts := []pipeline.Option{
		pipeline.WithConcurrency(cfg.Workflow.SegmentConcurrency),
		pipeline.WithSegmentLength(float64(cfg.Workflow.SegmentSeconds)),
		pipeline.WithMaxFrames(cfg.Workflow.MaxFramesPerSegment),
		pipeline.WithArtifactRoot(cfg.Paths.ArtifactRoot),
		pipeline.WithLogger(logger),
		pipeline.WithTracer(tracer),
	}
	health := make([]StageHealth, 0, 3)

	var gen pipeline.Generator = pipeline.OfflineGenerator{}
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		RelevanceModel: cfg.LLM.RelevanceModel,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithLogger(logger))
	if client.Enabled() {
		gen = client
		opts = append(opts, pipeline.WithAnalyzer(client))
		pingCtx, cancel := context.WithTimeout(ctx, llmPingTimeout)
		err := client.Ping(pingCtx)
		cancel()
		if err != nil {
			health = append(health,
				UnhealthyStage(StageGenerator, err.Error()),
				UnhealthyStage(StageRelevance, err.Error()),
			)
		} else {
			health = append(health, HealthyStage(StageGenerator), HealthyStage(StageRelevance))
		}
	} else {
		health = append(health,
			UnhealthyStage(StageGenerator, "llm api key not configured; using offline notes"),
			UnhealthyStage(StageRelevance, "llm api key not configured; using fixed-length segments"),
		)
	}

	stt := transcribe.NewClient(transcribe.Config{
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		Language:       cfg.Transcription.Language,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}, transcribe.WithLogger(logger))
	switch {
	case !cfg.Transcription.Enabled:
		health = append(health, UnhealthyStage(StageTranscription, "transcription disabled"))
	case !stt.Enabled():
		health = append(health, UnhealthyStage(StageTranscription, "transcription api key not configured"))
	default:
		opts = append(opts, pipeline.WithTranscriber(stt))
		health = append(health, HealthyStage(StageTranscription))
	}

	p, err := pipeline.New(gen, opts...)
	if err != nil {
		return Built{}, err
	}
	return Built{Pipeline: p, Health: health}, nil
}
