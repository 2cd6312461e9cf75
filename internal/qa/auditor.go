// Package qa validates a finished render and emits its metadata record.
package qa

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/render"
)

// MetadataFile is the artifact name of the QA metadata record.
const MetadataFile = "metadata.json"

// Prober measures media files. Both calls are best effort.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ProbeResolution(ctx context.Context, path string) (int, int, error)
}

type Auditor struct {
	prober Prober
	now    func() time.Time
	logger *slog.Logger
}

func NewAuditor(prober Prober) *Auditor {
	return &Auditor{
		prober: prober,
		now:    time.Now,
		logger: slog.Default().With("component", "qa"),
	}
}

// Audit checks outPath and writes metadata.json into runDir. The status is ok
// iff the file exists and is non-empty; probe and metadata failures are
// logged only.
func (a *Auditor) Audit(ctx context.Context, outPath, runID string, board models.Storyboard, result *render.Result, aspect models.Aspect, runDir string) models.QAReport {
	report := models.QAReport{Status: models.QAStatusFailed, Path: outPath}

	info, err := os.Stat(outPath)
	if err == nil && info.Mode().IsRegular() {
		report.FileExists = true
		report.FileSize = info.Size()
	}
	if report.FileExists && report.FileSize > 0 {
		report.Status = models.QAStatusOK
	}

	if report.FileExists && a.prober != nil {
		if d, err := a.prober.ProbeDuration(ctx, outPath); err == nil {
			report.Duration = round3(d)
		} else {
			a.logger.Warn("duration probe failed", "run_id", runID, "error", err)
		}
		if w, h, err := a.prober.ProbeResolution(ctx, outPath); err == nil {
			report.Width, report.Height = w, h
		} else {
			a.logger.Warn("resolution probe failed", "run_id", runID, "error", err)
		}
	}
	if report.Duration == 0 && result != nil {
		report.Duration = result.Duration
	}

	meta := a.metadata(runID, report, board, result, aspect)
	if err := fsutil.WriteJSON(filepath.Join(runDir, MetadataFile), meta); err != nil {
		a.logger.Warn("failed to write metadata", "run_id", runID, "error", err)
	}

	a.logger.Info("qa audit complete", "run_id", runID, "status", report.Status,
		"size", report.FileSize, "duration", report.Duration)
	return report
}

// metadata uses the compositor's per-scene timings when available and an
// even split of the measured duration otherwise.
func (a *Auditor) metadata(runID string, report models.QAReport, board models.Storyboard, result *render.Result, aspect models.Aspect) models.RenderMetadata {
	width, height, _ := aspect.Dimensions()
	if report.Width > 0 {
		width, height = report.Width, report.Height
	}

	meta := models.RenderMetadata{
		RunID:       runID,
		Duration:    report.Duration,
		Aspect:      aspect,
		Width:       width,
		Height:      height,
		RenderFile:  filepath.Base(report.Path),
		FileSize:    report.FileSize,
		GeneratedAt: a.now().UTC(),
	}

	switch {
	case result != nil && len(result.Timings) > 0:
		meta.Scenes = result.Timings
	case len(board.Scenes) > 0 && report.Duration > 0:
		per := report.Duration / float64(len(board.Scenes))
		for i, s := range board.Scenes {
			meta.Scenes = append(meta.Scenes, models.SceneTiming{
				SceneID:  s.ID,
				Start:    round3(per * float64(i)),
				End:      round3(per * float64(i+1)),
				Duration: round3(per),
			})
		}
	}
	if meta.Scenes == nil {
		meta.Scenes = []models.SceneTiming{}
	}
	meta.SceneCount = len(meta.Scenes)
	return meta
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
