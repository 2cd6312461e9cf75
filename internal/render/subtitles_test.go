package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/adforge/internal/models"
)

func TestSceneWordsSpreadAcrossSlots(t *testing.T) {
	board := models.Storyboard{Scenes: []models.Scene{
		{ID: 1, Line: "Fresh coffee daily", Caption: true},
		{ID: 2, Line: "no caption here", Caption: false},
		{ID: 3, Line: "Order now", Caption: true},
	}}
	timings := []models.SceneTiming{
		{SceneID: 1, Start: 0, End: 3, Duration: 3},
		{SceneID: 2, Start: 3, End: 5, Duration: 2},
		{SceneID: 3, Start: 5, End: 6, Duration: 1},
	}

	words := sceneWords(board, timings)
	require.Len(t, words, 5)
	assert.Equal(t, subtitleWord{Text: "Fresh", Start: 0, End: 1}, words[0])
	assert.Equal(t, subtitleWord{Text: "daily", Start: 2, End: 3}, words[2])
	assert.Equal(t, subtitleWord{Text: "Order", Start: 5, End: 5.5}, words[3])
}

func TestChunkWordsBreaksAtSentences(t *testing.T) {
	var words []subtitleWord
	for _, w := range strings.Fields("Bold flavor. Made for mornings that start early") {
		words = append(words, subtitleWord{Text: w})
	}
	chunks := chunkWords(words, 4)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 4)
	assert.Len(t, chunks[2], 2)
}

func TestFormatASSTime(t *testing.T) {
	assert.Equal(t, "0:00:00.00", formatASSTime(-1))
	assert.Equal(t, "0:00:01.50", formatASSTime(1.5))
	assert.Equal(t, "1:01:01.25", formatASSTime(3661.25))
}

func TestHighlightChunkEscapesTags(t *testing.T) {
	chunk := []subtitleWord{{Text: "save"}, {Text: "{50%}"}}
	got := highlightChunk(chunk, 0, 9)
	assert.Equal(t, `{\3c&H00CC3299\bord9}SAVE{\r} (50%)`, got)
}

func TestWriteSubtitlesCanvas(t *testing.T) {
	path := filepath.Join(t.TempDir(), SubtitleFile)
	board := models.Storyboard{Scenes: []models.Scene{{ID: 1, Line: "Try it today", Caption: true}}}
	timings := []models.SceneTiming{{SceneID: 1, Start: 0, End: 3, Duration: 3}}

	wrote, err := WriteSubtitles(path, board, timings, 1080, 1920)
	require.NoError(t, err)
	require.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "PlayResX: 1080\nPlayResY: 1920\n")
	assert.Contains(t, text, "Style: Default,Noto Sans,60,")
	assert.Equal(t, 3, strings.Count(text, "Dialogue:"))
	assert.Contains(t, text, "Dialogue: 0,0:00:00.00,0:00:01.00,Default")
}

func TestWriteSubtitlesNothingToCaption(t *testing.T) {
	path := filepath.Join(t.TempDir(), SubtitleFile)
	board := models.Storyboard{Scenes: []models.Scene{{ID: 1, Line: "quiet", Caption: false}}}

	wrote, err := WriteSubtitles(path, board, []models.SceneTiming{{SceneID: 1, Duration: 2, End: 2}}, 1920, 1080)
	require.NoError(t, err)
	assert.False(t, wrote)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRenderWritesSubtitleSidecar(t *testing.T) {
	dir, board, clips := fixture(t, 2, nil, 1.0)

	c := NewCompositor(&fakeEncoder{}, Options{CaptionsEnabled: true, Workers: 2})
	res, err := c.Render(context.Background(), "run-sub", board, clips, models.AspectSquare, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SubtitleFile), res.Subtitles)
	assert.FileExists(t, res.Subtitles)

	c = NewCompositor(&fakeEncoder{}, Options{CaptionsEnabled: false, Workers: 2})
	res, err = c.Render(context.Background(), "run-sub", board, clips, models.AspectSquare, dir)
	require.NoError(t, err)
	assert.Empty(t, res.Subtitles)
	assert.NoFileExists(t, filepath.Join(dir, SubtitleFile))
}
