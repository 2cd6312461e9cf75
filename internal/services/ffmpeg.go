package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/adforge/internal/models"
)

// Output / rendering constants shared by every scene clip so the concat
// demuxer sees one uniform stream layout.
const (
	VideoFPS        = 30
	audioSampleRate = 44100
	audioChannels   = 2

	// CaptionBoxColor is the semi-transparent backdrop behind caption text.
	CaptionBoxColor = "black@0.55"

	// swayRadians is the peak rotation of the sway effect; swayPeriod is its
	// period in seconds.
	swayRadians = 0.012
	swayPeriod  = 4.0
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewFFmpegService(ffmpegPath, ffprobePath string) *FFmpegService {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      slog.Default().With("component", "ffmpeg"),
	}
}

// Available reports whether the ffmpeg and ffprobe binaries can be located.
func (s *FFmpegService) Available() (ffmpeg, ffprobe bool) {
	_, errF := exec.LookPath(s.ffmpegPath)
	_, errP := exec.LookPath(s.ffprobePath)
	return errF == nil, errP == nil
}

// SceneClip describes one scene to be encoded.
type SceneClip struct {
	ImagePath   string // empty = solid black background
	AudioPath   string
	CaptionFile string // file holding caption text; empty = no caption
	FontFile    string
	Motion      models.Motion
	Duration    float64 // seconds
	Width       int
	Height      int
}

// RenderSceneClip encodes a single scene to the intermediate format:
// 30 fps H.264/yuv420p with AAC 44.1 kHz stereo, exactly clip.Width x clip.Height.
func (s *FFmpegService) RenderSceneClip(ctx context.Context, clip SceneClip, outputPath string) error {
	if clip.Width <= 0 || clip.Height <= 0 {
		return fmt.Errorf("invalid canvas %dx%d", clip.Width, clip.Height)
	}
	duration := strconv.FormatFloat(clip.Duration, 'f', 3, 64)

	var args []string
	if clip.ImagePath != "" {
		// Single still frame; zoompan emits every output frame.
		args = append(args, "-i", clip.ImagePath)
	} else {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s", clip.Width, clip.Height, VideoFPS, duration),
		)
	}
	args = append(args, "-i", clip.AudioPath)

	filter := "[0:v]" + SceneVideoFilter(clip) + "[v];[1:a]apad[a]"

	args = append(args,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-t", duration,
		"-r", strconv.Itoa(VideoFPS),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", strconv.Itoa(audioChannels),
		"-b:a", "192k",
		"-y",
		outputPath,
	)

	if _, err := s.runFFmpeg(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg render scene failed (motion=%s): %w", clip.Motion.Type, err)
	}
	return nil
}

// SceneVideoFilter builds the per-scene video chain: letterbox fit, then
// motion for still images, then the optional caption, then pixel format.
func SceneVideoFilter(clip SceneClip) string {
	parts := []string{LetterboxFilter(clip.Width, clip.Height)}
	if clip.ImagePath != "" {
		parts = append(parts, MotionFilter(clip.Motion, clip.Duration, clip.Width, clip.Height)...)
	}
	if clip.CaptionFile != "" {
		parts = append(parts, CaptionFilter(clip.CaptionFile, clip.FontFile, clip.Height))
	}
	parts = append(parts, "format=yuv420p")
	return strings.Join(parts, ",")
}

// LetterboxFilter scales the source uniformly to fit inside WxH and centers
// it on a black canvas of exactly WxH.
func LetterboxFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1",
		width, height, width, height,
	)
}

// MotionFilter returns the zoompan stage, and a rotate stage when the motion
// sways. Zoom is linear in the output frame number; zoom_out runs the same
// ramp in reverse. Output size is always WxH.
func MotionFilter(m models.Motion, durationSec float64, width, height int) []string {
	frames := int(durationSec*VideoFPS + 0.5)
	if frames < 1 {
		frames = 1
	}

	peak := m.Zoom
	if peak < 1.0 {
		peak = 1.0
	}
	inc := peak - 1.0

	var zExpr string
	switch m.Type {
	case models.MotionZoomOut:
		zExpr = fmt.Sprintf("max(%.4f-%.4f*on/%d,1.0)", peak, inc, frames)
	default:
		zExpr = fmt.Sprintf("min(1.0+%.4f*on/%d,%.4f)", inc, frames, peak)
	}

	stages := []string{fmt.Sprintf(
		"zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
		zExpr, frames, width, height, VideoFPS,
	)}

	if m.Sway {
		stages = append(stages, fmt.Sprintf(
			"rotate='%.4f*sin(2*PI*t/%.1f)':ow=%d:oh=%d:c=black",
			swayRadians, swayPeriod, width, height,
		))
	}
	return stages
}

// CaptionFilter draws the text of captionFile centered near the bottom of
// the frame over a semi-transparent box.
func CaptionFilter(captionFile, fontFile string, height int) string {
	fontSize := height / 22
	if fontSize < 18 {
		fontSize = 18
	}
	f := fmt.Sprintf(
		"drawtext=textfile='%s':expansion=none:fontcolor=white:fontsize=%d:box=1:boxcolor=%s:boxborderw=%d:x=(w-text_w)/2:y=h-text_h-h/10",
		escapeFFmpegFilterPath(captionFile), fontSize, CaptionBoxColor, fontSize/2,
	)
	if fontFile != "" {
		f += fmt.Sprintf(":fontfile='%s'", escapeFFmpegFilterPath(fontFile))
	}
	return f
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// ConcatAndEncode joins scene clips in order with the concat demuxer and
// encodes the result once: 30 fps H.264 + AAC with the moov atom up front.
func (s *FFmpegService) ConcatAndEncode(ctx context.Context, clipPaths []string, workDir, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(workDir, "concat_list.txt")
	var list strings.Builder
	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-r", strconv.Itoa(VideoFPS),
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}

	if _, err := s.runFFmpeg(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

// MixBackgroundMusic mixes a looping music bed under the existing narration.
// The music is cut when the video ends and kept at 12% volume.
func (s *FFmpegService) MixBackgroundMusic(ctx context.Context, videoPath, musicPath, outputPath string) error {
	if musicPath == "" {
		return fmt.Errorf("no background music path provided")
	}
	if _, err := os.Stat(musicPath); err != nil {
		return fmt.Errorf("background music unavailable: %w", err)
	}

	s.logger.Info("mixing background music", "music", musicPath)

	filterComplex := "[0:a]volume=1.0[narration];[1:a]volume=0.12[music];[narration][music]amix=inputs=2:duration=first:dropout_transition=3[aout]"

	args := []string{
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", filterComplex,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
		"-y",
		outputPath,
	}

	if _, err := s.runFFmpeg(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg mix background music failed: %w", err)
	}
	return nil
}

// TranscodeToWAV converts any audio input into mono 16-bit PCM WAV at
// sampleRate. inputFormat forces the demuxer for headerless input, e.g.
// "s16le"; leave it empty to probe.
func (s *FFmpegService) TranscodeToWAV(ctx context.Context, inputPath, inputFormat string, inputRate int, outputPath string, sampleRate int) error {
	var args []string
	if inputFormat != "" {
		args = append(args, "-f", inputFormat)
		if inputRate > 0 {
			args = append(args, "-ar", strconv.Itoa(inputRate))
		}
		args = append(args, "-ac", "1")
	}
	args = append(args,
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-y",
		outputPath,
	)

	if _, err := s.runFFmpeg(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg transcode to wav failed: %w", err)
	}
	return nil
}

// ProbeDuration returns the container duration of a media file in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := s.runFFprobe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return duration, nil
}

// ProbeResolution returns the width and height of the first video stream.
func (s *FFmpegService) ProbeResolution(ctx context.Context, path string) (int, int, error) {
	out, err := s.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe resolution failed: %w", err)
	}
	return parseResolution(out)
}

func parseResolution(out string) (int, int, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	w, h, ok := strings.Cut(line, "x")
	if !ok {
		return 0, 0, fmt.Errorf("unexpected resolution output %q", line)
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil {
		return 0, 0, fmt.Errorf("unexpected resolution output %q", line)
	}
	return width, height, nil
}

// runFFmpeg runs ffmpeg quietly and returns its combined output. The tail of
// the output is attached to the error on failure.
func (s *FFmpegService) runFFmpeg(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
	s.logger.Debug("running ffmpeg", "args", strings.Join(full, " "))
	return runCommand(ctx, s.ffmpegPath, full...)
}

func (s *FFmpegService) runFFprobe(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// runCommand executes an external binary and captures combined output.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err != nil {
		return output.String(), fmt.Errorf("%w: %s", err, tail(output.String(), 400))
	}
	return output.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
