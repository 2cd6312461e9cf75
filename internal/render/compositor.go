// Package render composes storyboard scenes and narration clips into the
// final encoded advertisement.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/narration"
	"github.com/bobarin/adforge/internal/services"
)

const (
	// OutputFile is the artifact name of the finished render.
	OutputFile = "ad_final.mp4"

	// MinClipSeconds keeps degraded scenes from collapsing to zero length.
	MinClipSeconds = 0.5
)

// Encoder is the video toolchain the compositor drives.
type Encoder interface {
	RenderSceneClip(ctx context.Context, clip services.SceneClip, outputPath string) error
	ConcatAndEncode(ctx context.Context, clipPaths []string, workDir, outputPath string) error
	MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Options struct {
	CaptionsEnabled bool
	FontFile        string
	Workers         int
}

// RenderError reports that no scene produced a usable clip.
type RenderError struct {
	RunID  string
	Scenes int
	Causes []string
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("render %s: no usable scenes (0 of %d built)", e.RunID, e.Scenes)
	if len(e.Causes) > 0 {
		msg += ": " + e.Causes[0]
	}
	return msg
}

// Result describes a finished render.
type Result struct {
	Path       string               `json:"path"`
	Duration   float64              `json:"duration"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Built      int                  `json:"built"`
	Skipped    int                  `json:"skipped"`
	Timings    []models.SceneTiming `json:"timings"`
	MusicMixed bool                 `json:"music_mixed"`
	Subtitles  string               `json:"subtitles,omitempty"`
}

type renderConfig struct {
	musicBed string
}

type RenderOption func(*renderConfig)

// WithMusicBed mixes a looping bed under the narration. A failed mix keeps
// the unmixed render.
func WithMusicBed(path string) RenderOption {
	return func(c *renderConfig) { c.musicBed = path }
}

type Compositor struct {
	enc    Encoder
	opts   Options
	logger *slog.Logger
}

func NewCompositor(enc Encoder, opts Options) *Compositor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Compositor{
		enc:    enc,
		opts:   opts,
		logger: slog.Default().With("component", "render"),
	}
}

// builtScene is a successfully encoded scene clip.
type builtScene struct {
	sceneID  int
	path     string
	duration float64
}

// Render builds one clip per scene, skipping scenes that fail, then joins the
// survivors in scene order into runDir/ad_final.mp4. Scratch files live in a
// per-call directory that is removed before returning.
func (c *Compositor) Render(ctx context.Context, runID string, board models.Storyboard, audioClips []string, aspect models.Aspect, runDir string, options ...RenderOption) (*Result, error) {
	var cfg renderConfig
	for _, opt := range options {
		opt(&cfg)
	}

	width, height, ok := aspect.Dimensions()
	if !ok {
		return nil, fmt.Errorf("unsupported aspect %q", aspect)
	}

	outPath := filepath.Join(runDir, OutputFile)
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to clear previous render: %w", err)
	}

	scratch, err := os.MkdirTemp(runDir, ".render-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	built := make([]*builtScene, len(board.Scenes))
	causes := make([]string, len(board.Scenes))

	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, scene := range board.Scenes {
		g.Go(func() error {
			out, err := c.buildScene(ctx, scene, audioAt(audioClips, i), width, height, scratch)
			if err != nil {
				c.logger.Warn("scene skipped", "run_id", runID, "scene", scene.ID, "error", err)
				causes[i] = fmt.Sprintf("scene %d: %v", scene.ID, err)
				return nil
			}
			built[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var clips []string
	var timings []models.SceneTiming
	var cursor float64
	for _, b := range built {
		if b == nil {
			continue
		}
		clips = append(clips, b.path)
		timings = append(timings, models.SceneTiming{
			SceneID:  b.sceneID,
			Start:    round3(cursor),
			End:      round3(cursor + b.duration),
			Duration: round3(b.duration),
		})
		cursor += b.duration
	}

	if len(clips) == 0 {
		rerr := &RenderError{RunID: runID, Scenes: len(board.Scenes)}
		for _, cause := range causes {
			if cause != "" {
				rerr.Causes = append(rerr.Causes, cause)
			}
		}
		return nil, rerr
	}

	timeline := filepath.Join(scratch, "timeline.mp4")
	if err := c.enc.ConcatAndEncode(ctx, clips, scratch, timeline); err != nil {
		return nil, fmt.Errorf("failed to encode final video: %w", err)
	}

	result := &Result{
		Path:    outPath,
		Width:   width,
		Height:  height,
		Built:   len(clips),
		Skipped: len(board.Scenes) - len(clips),
		Timings: timings,
	}

	final := timeline
	if cfg.musicBed != "" {
		mixed := filepath.Join(scratch, "mixed.mp4")
		if err := c.enc.MixBackgroundMusic(ctx, timeline, cfg.musicBed, mixed); err != nil {
			c.logger.Warn("music mix failed, keeping narration-only render", "run_id", runID, "error", err)
		} else {
			final = mixed
			result.MusicMixed = true
		}
	}

	if err := os.Rename(final, outPath); err != nil {
		return nil, fmt.Errorf("failed to move render into place: %w", err)
	}

	result.Duration = round3(cursor)
	if d, err := c.enc.ProbeDuration(ctx, outPath); err == nil && d > 0 {
		result.Duration = round3(d)
	}

	subPath := filepath.Join(runDir, SubtitleFile)
	_ = os.Remove(subPath)
	if c.opts.CaptionsEnabled {
		wrote, err := WriteSubtitles(subPath, board, timings, width, height)
		switch {
		case err != nil:
			c.logger.Warn("subtitle sidecar failed", "run_id", runID, "error", err)
		case wrote:
			result.Subtitles = subPath
		}
	}

	c.logger.Info("render complete", "run_id", runID, "scenes", result.Built, "skipped", result.Skipped,
		"duration", result.Duration, "size", fmt.Sprintf("%dx%d", width, height))
	return result, nil
}

func (c *Compositor) buildScene(ctx context.Context, scene models.Scene, audioPath string, width, height int, scratch string) (*builtScene, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("no audio clip for scene")
	}

	duration, err := c.clipDuration(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	clip := services.SceneClip{
		AudioPath: audioPath,
		FontFile:  c.opts.FontFile,
		Motion:    scene.Motion,
		Duration:  duration,
		Width:     width,
		Height:    height,
	}

	if scene.Image != "" && fsutil.Exists(scene.Image) {
		clip.ImagePath = scene.Image
	} else if scene.Image != "" {
		c.logger.Warn("scene image missing, using solid background", "scene", scene.ID, "image", scene.Image)
	}

	if c.opts.CaptionsEnabled && scene.Caption && strings.TrimSpace(scene.Line) != "" {
		captionFile := filepath.Join(scratch, fmt.Sprintf("caption_%02d.txt", scene.ID))
		if err := os.WriteFile(captionFile, []byte(strings.TrimSpace(scene.Line)), 0o644); err == nil {
			clip.CaptionFile = captionFile
		}
	}

	out := filepath.Join(scratch, fmt.Sprintf("scene_%02d.mp4", scene.ID))
	err = c.enc.RenderSceneClip(ctx, clip, out)
	if err != nil && clip.CaptionFile != "" {
		c.logger.Warn("caption overlay failed, rebuilding scene without caption", "scene", scene.ID, "error", err)
		clip.CaptionFile = ""
		err = c.enc.RenderSceneClip(ctx, clip, out)
	}
	if err != nil {
		return nil, err
	}
	if !fsutil.Exists(out) {
		return nil, fmt.Errorf("encoder produced no clip")
	}

	return &builtScene{sceneID: scene.ID, path: out, duration: duration}, nil
}

// clipDuration measures the narration clip, falling back to the WAV header
// when ffprobe is unavailable, and applies the minimum clip length.
func (c *Compositor) clipDuration(ctx context.Context, audioPath string) (float64, error) {
	d, err := c.enc.ProbeDuration(ctx, audioPath)
	if err != nil {
		var werr error
		d, werr = narration.Duration(audioPath)
		if werr != nil {
			return 0, fmt.Errorf("unreadable audio clip: %w", err)
		}
	}
	return math.Max(d, MinClipSeconds), nil
}

func audioAt(clips []string, i int) string {
	if i < len(clips) {
		return clips[i]
	}
	return ""
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
