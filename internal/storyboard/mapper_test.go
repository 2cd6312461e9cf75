package storyboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/adforge/internal/models"
)

func TestBuildAssignsImagesCyclically(t *testing.T) {
	images := []string{"img0.png", "img1.png"}
	lines := []string{"one", "two", "three", "four", "five"}

	board := Build(lines, images)
	require.Len(t, board.Scenes, 5)

	want := []int{0, 1, 0, 1, 0}
	for i, scene := range board.Scenes {
		assert.Equal(t, i+1, scene.ID)
		assert.Equal(t, images[want[i]], scene.Image, "scene %d", i+1)
	}
}

func TestBuildWithoutImages(t *testing.T) {
	board := Build([]string{"a", "b"}, nil)
	require.Len(t, board.Scenes, 2)
	for _, s := range board.Scenes {
		assert.Empty(t, s.Image)
		assert.True(t, s.Caption)
	}
}

func TestBuildSkipsBlankLines(t *testing.T) {
	board := Build([]string{"first", "   ", "", "second"}, []string{"a.png", "b.png"})
	require.Len(t, board.Scenes, 2)
	assert.Equal(t, 2, board.Scenes[1].ID)
	assert.Equal(t, "b.png", board.Scenes[1].Image)
}

func TestMotionRules(t *testing.T) {
	tests := []struct {
		line string
		want models.Motion
	}{
		{"Get it today. Hurry.", models.Motion{Type: models.MotionZoomIn, Zoom: 1.10, Sway: true}},
		{"Try Acme for free", models.Motion{Type: models.MotionZoomIn, Zoom: 1.08}},
		{"Tired of boring ads?", models.Motion{Type: models.MotionZoomOut, Zoom: 1.05}},
		{"Meet the new standard", models.Motion{Type: models.MotionKenBurns, Zoom: 1.03}},
		// keyword must be a whole word
		{"A snowy landscape", models.Motion{Type: models.MotionKenBurns, Zoom: 1.03}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, motionFor(tt.line))
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	lines := []string{"Hook now", "Problem slow", "Try it"}
	images := []string{"x.jpg"}
	assert.Equal(t, Build(lines, images), Build(lines, images))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, Build([]string{"hello"}, nil))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ShotsFile), path)
	assert.Contains(t, string(data), `"kenburns"`)
}
