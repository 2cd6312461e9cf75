package qa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/render"
)

type fakeProber struct {
	duration float64
	width    int
	height   int
	fail     bool
}

func (f fakeProber) ProbeDuration(context.Context, string) (float64, error) {
	if f.fail {
		return 0, errors.New("ffprobe missing")
	}
	return f.duration, nil
}

func (f fakeProber) ProbeResolution(context.Context, string) (int, int, error) {
	if f.fail {
		return 0, 0, errors.New("ffprobe missing")
	}
	return f.width, f.height, nil
}

func board(n int) models.Storyboard {
	var b models.Storyboard
	for i := 1; i <= n; i++ {
		b.Scenes = append(b.Scenes, models.Scene{ID: i, Line: "x"})
	}
	return b
}

func newAuditor(p Prober) *Auditor {
	a := NewAuditor(p)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a
}

func TestAuditOK(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, render.OutputFile)
	require.NoError(t, os.WriteFile(out, []byte("mp4 bytes"), 0644))

	result := &render.Result{
		Duration: 6,
		Timings: []models.SceneTiming{
			{SceneID: 1, Start: 0, End: 2, Duration: 2},
			{SceneID: 2, Start: 2, End: 6, Duration: 4},
		},
	}

	report := newAuditor(fakeProber{duration: 6.02, width: 1920, height: 1080}).
		Audit(context.Background(), out, "run-1", board(2), result, models.AspectWidescreen, dir)

	assert.Equal(t, models.QAStatusOK, report.Status)
	assert.True(t, report.FileExists)
	assert.Equal(t, int64(9), report.FileSize)
	assert.InDelta(t, 6.02, report.Duration, 1e-9)
	assert.Equal(t, 1920, report.Width)

	var meta models.RenderMetadata
	require.NoError(t, fsutil.ReadJSON(filepath.Join(dir, MetadataFile), &meta))
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, render.OutputFile, meta.RenderFile)
	assert.Equal(t, 2, meta.SceneCount)
	assert.Equal(t, result.Timings, meta.Scenes)
}

func TestAuditMissingFile(t *testing.T) {
	dir := t.TempDir()
	report := newAuditor(fakeProber{duration: 1}).
		Audit(context.Background(), filepath.Join(dir, render.OutputFile), "run-2", board(1), nil, models.AspectSquare, dir)

	assert.Equal(t, models.QAStatusFailed, report.Status)
	assert.False(t, report.FileExists)
	assert.Zero(t, report.Duration)
	assert.True(t, fsutil.Exists(filepath.Join(dir, MetadataFile)))
}

func TestAuditEmptyFileFails(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, render.OutputFile)
	require.NoError(t, os.WriteFile(out, nil, 0644))

	report := newAuditor(nil).Audit(context.Background(), out, "run-3", board(1), nil, models.AspectSquare, dir)
	assert.Equal(t, models.QAStatusFailed, report.Status)
	assert.True(t, report.FileExists)
}

func TestAuditEvenSplitWithoutTimings(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, render.OutputFile)
	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))

	report := newAuditor(fakeProber{fail: true}).
		Audit(context.Background(), out, "run-4", board(3), &render.Result{Duration: 9}, models.AspectVertical, dir)

	assert.Equal(t, models.QAStatusOK, report.Status, "probe failures never fail QA")
	assert.InDelta(t, 9.0, report.Duration, 1e-9)

	var meta models.RenderMetadata
	require.NoError(t, fsutil.ReadJSON(filepath.Join(dir, MetadataFile), &meta))
	require.Len(t, meta.Scenes, 3)
	assert.Equal(t, models.SceneTiming{SceneID: 3, Start: 6, End: 9, Duration: 3}, meta.Scenes[2])
	assert.Equal(t, 1080, meta.Width)
	assert.Equal(t, 1920, meta.Height)
}
