// Package narration turns script lines into per-line WAV clips through an
// ordered list of synthesis engines that ends in silence.
package narration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/adforge/internal/models"
)

// AudioDir is the run sub-directory holding narration clips.
const AudioDir = "temp_audio"

// Result lists one clip per input line, in input order.
type Result struct {
	Paths        []string `json:"paths"`
	Engine       string   `json:"engine"`
	Placeholders int      `json:"placeholders"`
}

type Synthesizer struct {
	engines     []Engine
	silence     Engine
	concurrency int
	logger      *slog.Logger
}

// NewSynthesizer builds a synthesizer over engines in priority order. Silence
// is always appended as the last resort.
func NewSynthesizer(concurrency int, engines ...Engine) *Synthesizer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Synthesizer{
		engines:     engines,
		silence:     SilenceEngine{Seconds: SilenceSeconds},
		concurrency: concurrency,
		logger:      slog.Default().With("component", "narration"),
	}
}

// Option adjusts a single Synthesize call.
type Option func(*synthConfig)

type synthConfig struct {
	style string
}

// WithTone passes the run's tone to engines that can shape delivery.
func WithTone(tone models.Tone) Option {
	return func(c *synthConfig) { c.style = string(tone) }
}

// Synthesize writes temp_audio/line_NN.wav for every line. The returned paths
// always exist and match lines in length and order; only filesystem errors
// while writing placeholders are returned.
func (s *Synthesizer) Synthesize(ctx context.Context, lines []string, voice, language, runDir string, opts ...Option) (*Result, error) {
	var cfg synthConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	outDir := filepath.Join(runDir, AudioDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}

	engine := s.selectEngine(ctx, voice)
	result := &Result{
		Paths:  make([]string, len(lines)),
		Engine: engine.Name(),
	}
	placeholder := make([]bool, len(lines))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, line := range lines {
		path := filepath.Join(outDir, fmt.Sprintf("line_%02d.wav", i+1))
		result.Paths[i] = path

		g.Go(func() error {
			text := strings.TrimSpace(line)
			if text != "" {
				u := Utterance{Text: text, Voice: voice, Language: language, Style: cfg.style}
				err := engine.Synthesize(ctx, u, path)
				if err == nil && usable(path) {
					return nil
				}
				if err == nil {
					err = fmt.Errorf("engine produced no audio")
				}
				s.logger.Warn("line synthesis failed, using silent placeholder",
					"engine", engine.Name(), "line", i+1, "error", err)
				if engine.Name() != s.silence.Name() {
					placeholder[i] = true
				}
			}

			if err := s.silence.Synthesize(ctx, Utterance{}, path); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range placeholder {
		if p {
			result.Placeholders++
		}
	}

	s.logger.Info("narration complete", "engine", result.Engine, "lines", len(lines), "placeholders", result.Placeholders)
	return result, nil
}

// selectEngine returns the first engine whose setup succeeds. Mute voices
// and exhausted chains fall through to silence.
func (s *Synthesizer) selectEngine(ctx context.Context, voice string) Engine {
	if models.IsMuteVoice(voice) {
		return s.silence
	}
	for _, e := range s.engines {
		if err := e.Setup(ctx); err != nil {
			s.logger.Warn("tts engine unavailable, falling back", "engine", e.Name(), "error", err)
			continue
		}
		return e
	}
	s.logger.Warn("no tts engine available, narration will be silent")
	return s.silence
}
