package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/qa"
	"github.com/bobarin/adforge/internal/render"
)

const signedURLTTL = 3600

// Publisher uploads the render and its sidecars for every successful run.
type Publisher struct {
	storage *Storage
	runsDir string
}

func NewPublisher(s *Storage, runsDir string) *Publisher {
	return &Publisher{storage: s, runsDir: runsDir}
}

func (p *Publisher) Name() string { return "supabase-publish" }

func (p *Publisher) Finalize(ctx context.Context, run models.RunStatus, report *models.QAReport) error {
	if run.OverallStatus != models.OverallSuccess || report == nil {
		return nil
	}

	if err := p.storage.UploadFile(ctx, ObjectPath(run.RunID, filepath.Base(report.Path)), report.Path, "video/mp4"); err != nil {
		return fmt.Errorf("failed to publish render: %w", err)
	}

	sidecars := []struct{ name, contentType string }{
		{qa.MetadataFile, "application/json"},
		{render.SubtitleFile, "text/x-ssa"},
	}
	for _, sc := range sidecars {
		local := filepath.Join(p.runsDir, run.RunID, sc.name)
		if !fsutil.Exists(local) {
			continue
		}
		if err := p.storage.UploadFile(ctx, ObjectPath(run.RunID, sc.name), local, sc.contentType); err != nil {
			return fmt.Errorf("failed to publish %s: %w", sc.name, err)
		}
	}

	p.storage.logger.Info("run published", "run_id", run.RunID, "url", p.storage.GetPublicURL(ObjectPath(run.RunID, filepath.Base(report.Path))))
	return nil
}

// DownloadURL returns a signed URL for a published render.
func (p *Publisher) DownloadURL(ctx context.Context, runID, name string) (string, error) {
	return p.storage.GetSignedURL(ctx, ObjectPath(runID, name), signedURLTTL)
}
