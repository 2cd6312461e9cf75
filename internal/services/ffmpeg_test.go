package services

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/adforge/internal/models"
)

func TestLetterboxFilter(t *testing.T) {
	got := LetterboxFilter(1080, 1920)
	assert.Equal(t,
		"scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1",
		got)
}

func TestMotionFilter(t *testing.T) {
	zoomIn := MotionFilter(models.Motion{Type: models.MotionZoomIn, Zoom: 1.10}, 2.0, 1920, 1080)
	require.Len(t, zoomIn, 1)
	assert.Contains(t, zoomIn[0], "z='min(1.0+0.1000*on/60,1.1000)'")
	assert.Contains(t, zoomIn[0], ":d=60:s=1920x1080:fps=30")

	zoomOut := MotionFilter(models.Motion{Type: models.MotionZoomOut, Zoom: 1.05}, 1.0, 1080, 1080)
	assert.Contains(t, zoomOut[0], "z='max(1.0500-0.0500*on/30,1.0)'")

	sway := MotionFilter(models.Motion{Type: models.MotionZoomIn, Zoom: 1.10, Sway: true}, 1.0, 1080, 1920)
	require.Len(t, sway, 2)
	assert.True(t, strings.HasPrefix(sway[1], "rotate="))
	assert.Contains(t, sway[1], ":ow=1080:oh=1920")

	// zoom below 1.0 is clamped so the frame is never shrunk
	flat := MotionFilter(models.Motion{Type: models.MotionKenBurns, Zoom: 0.5}, 0.0, 100, 100)
	assert.Contains(t, flat[0], "z='min(1.0+0.0000*on/1,1.0000)'")
}

func TestSceneVideoFilterWithoutImageSkipsMotion(t *testing.T) {
	f := SceneVideoFilter(SceneClip{
		Motion:   models.Motion{Type: models.MotionZoomIn, Zoom: 1.1, Sway: true},
		Duration: 2,
		Width:    1920,
		Height:   1080,
	})
	assert.NotContains(t, f, "zoompan")
	assert.NotContains(t, f, "drawtext")
	assert.True(t, strings.HasPrefix(f, "scale=1920:1080"))
	assert.True(t, strings.HasSuffix(f, "format=yuv420p"))
}

func TestCaptionFilter(t *testing.T) {
	f := CaptionFilter("/tmp/run:1/caption_01.txt", "", 1080)
	assert.Contains(t, f, `textfile='/tmp/run\:1/caption_01.txt'`)
	assert.Contains(t, f, "box=1:boxcolor=black@0.55")
	assert.NotContains(t, f, "fontfile")

	withFont := CaptionFilter("/tmp/c.txt", "/fonts/Inter.ttf", 1920)
	assert.Contains(t, withFont, ":fontfile='/fonts/Inter.ttf'")
}

func TestParseResolution(t *testing.T) {
	w, h, err := parseResolution("1920x1080\n")
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, err = parseResolution("N/A")
	assert.Error(t, err)
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

// Every preset must come out at exactly its canvas size, whatever the source.
func TestRenderSceneClipLetterboxesToPreset(t *testing.T) {
	requireFFmpeg(t)

	ctx := context.Background()
	dir := t.TempDir()
	svc := NewFFmpegService("", "")

	audio := filepath.Join(dir, "tone.wav")
	_, err := runCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-ar", "24000", "-ac", "1", "-y", audio)
	require.NoError(t, err)

	sources := map[string]string{}
	for _, size := range []string{"640x480", "300x900"} {
		p := filepath.Join(dir, "src_"+size+".png")
		_, err := runCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
			"-f", "lavfi", "-i", "color=c=red:s="+size, "-frames:v", "1", "-y", p)
		require.NoError(t, err)
		sources[size] = p
	}

	for _, aspect := range []models.Aspect{models.AspectWidescreen, models.AspectVertical, models.AspectSquare} {
		width, height, _ := aspect.Dimensions()
		for size, src := range sources {
			out := filepath.Join(dir, fmt.Sprintf("%s_%dx%d.mp4", size, width, height))
			err := svc.RenderSceneClip(ctx, SceneClip{
				ImagePath: src,
				AudioPath: audio,
				Motion:    models.Motion{Type: models.MotionZoomIn, Zoom: 1.10, Sway: true},
				Duration:  1.0,
				Width:     width,
				Height:    height,
			}, out)
			require.NoError(t, err)

			w, h, err := svc.ProbeResolution(ctx, out)
			require.NoError(t, err)
			assert.Equal(t, width, w, "source %s aspect %s", size, aspect)
			assert.Equal(t, height, h, "source %s aspect %s", size, aspect)
		}
	}
}
