// Package app assembles the pipeline from configuration. Both binaries use it
// so the API server and the CLI render identically.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bobarin/adforge/internal/config"
	"github.com/bobarin/adforge/internal/narration"
	"github.com/bobarin/adforge/internal/pipeline"
	"github.com/bobarin/adforge/internal/qa"
	"github.com/bobarin/adforge/internal/render"
	"github.com/bobarin/adforge/internal/script"
	"github.com/bobarin/adforge/internal/services"
	"github.com/bobarin/adforge/internal/stylehints"
)

// Pipeline is an assembled orchestrator and the toolchain it drives.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	FFmpeg       *services.FFmpegService
	Engines      []string
}

// Build wires every stage from cfg. Finalizers run after each run.
func Build(ctx context.Context, cfg *config.Config, finalizers ...pipeline.Finalizer) (*Pipeline, error) {
	ff := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath)

	engines, err := NarrationEngines(ctx, cfg, ff)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.Name())
	}

	var hints script.HintSource
	if cfg.GeminiKey != "" && cfg.StyleDocumentsDir != "" {
		embedder, err := stylehints.NewGenAIEmbedder(ctx, cfg.GeminiKey, cfg.GeminiEmbedModel)
		if err != nil {
			slog.Warn("style hints disabled", "error", err)
		} else {
			hints = stylehints.NewIndex(embedder, cfg.StyleDocumentsDir)
		}
	}

	orch := pipeline.New(
		pipeline.Options{RunsDir: cfg.RunsDir, MusicBedEnabled: cfg.MusicBedEnabled},
		pipeline.Stages{
			Writer:   script.NewWriter(hints),
			Narrator: narration.NewSynthesizer(cfg.TTSConcurrency, engines...),
			Renderer: render.NewCompositor(ff, render.Options{
				CaptionsEnabled: cfg.CaptionsEnabled,
				FontFile:        cfg.CaptionFontFile,
				Workers:         cfg.RenderWorkers,
			}),
			Auditor: qa.NewAuditor(ff),
		},
		finalizers...,
	)

	return &Pipeline{Orchestrator: orch, FFmpeg: ff, Engines: names}, nil
}

// NarrationEngines returns the configured provider, if any, followed by
// espeak when the fallback is enabled. Silence is appended by the
// synthesizer itself.
func NarrationEngines(ctx context.Context, cfg *config.Config, ff *services.FFmpegService) ([]narration.Engine, error) {
	var tts services.TTSService
	switch cfg.TTSEngine {
	case "elevenlabs":
		tts = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	case "cartesia":
		tts = services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
	case "openai":
		tts = services.NewOpenAITTSService(cfg.OpenAIKey, cfg.OpenAITTSModel)
	case "gemini":
		svc, err := services.NewGeminiTTSService(ctx, cfg.GeminiKey, cfg.GeminiTTSModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini tts: %w", err)
		}
		tts = svc
	}

	var engines []narration.Engine
	if tts != nil {
		limited := services.NewRateLimitedTTS(tts, cfg.TTSRequestsPerSecond)
		engines = append(engines, narration.NewProviderEngine(cfg.TTSEngine, limited, ff))
	}
	if cfg.EspeakFallbackEnabled {
		engines = append(engines, narration.NewEspeakEngine(ff))
	}
	return engines, nil
}
