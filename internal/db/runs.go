package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/adforge/internal/models"
)

// RunRecord is one archived run.
type RunRecord struct {
	RunID         string               `json:"run_id"`
	OverallStatus models.OverallStatus `json:"overall_status"`
	Parameters    models.JSONB         `json:"parameters"`
	Steps         json.RawMessage      `json:"steps"`
	QA            models.JSONB         `json:"qa,omitempty"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	FinishedAt    *time.Time           `json:"finished_at,omitempty"`
}

// NewRunRecord flattens a status snapshot and its QA report into a row.
func NewRunRecord(run models.RunStatus, report *models.QAReport) (*RunRecord, error) {
	rec := &RunRecord{
		RunID:         run.RunID,
		OverallStatus: run.OverallStatus,
		Parameters:    models.JSONB{},
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}

	if run.Params != nil {
		raw, err := json.Marshal(run.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameters: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Parameters); err != nil {
			return nil, fmt.Errorf("failed to convert parameters: %w", err)
		}
	}

	steps := run.Steps
	if steps == nil {
		steps = []models.StageEntry{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps: %w", err)
	}
	rec.Steps = raw

	if report != nil {
		rec.QA = models.JSONB(report.Payload())
	}
	return rec, nil
}

// RecordRun upserts the run's archive row.
func (db *DB) RecordRun(ctx context.Context, rec *RunRecord) error {
	query := `
		INSERT INTO ad_runs (
			run_id, overall_status, parameters, steps, qa, started_at, finished_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (run_id) DO UPDATE SET
			overall_status = EXCLUDED.overall_status,
			parameters     = EXCLUDED.parameters,
			steps          = EXCLUDED.steps,
			qa             = EXCLUDED.qa,
			started_at     = EXCLUDED.started_at,
			finished_at    = EXCLUDED.finished_at,
			updated_at     = now()
	`

	var qa any
	if rec.QA != nil {
		qa = rec.QA
	}

	_, err := db.ExecContext(ctx, query,
		rec.RunID, rec.OverallStatus, rec.Parameters, []byte(rec.Steps), qa,
		rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (db *DB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, overall_status, parameters, steps, qa, started_at, finished_at
		FROM ad_runs
		WHERE run_id = $1
	`

	rec := &RunRecord{}
	var steps []byte
	err := db.QueryRowContext(ctx, query, runID).Scan(
		&rec.RunID, &rec.OverallStatus, &rec.Parameters, &steps, &rec.QA,
		&rec.StartedAt, &rec.FinishedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	rec.Steps = steps

	return rec, nil
}

// Archiver records every finished run. It plugs into the orchestrator as a
// post-run hook.
type Archiver struct {
	db *DB
}

func NewArchiver(database *DB) *Archiver {
	return &Archiver{db: database}
}

func (a *Archiver) Name() string { return "postgres-archive" }

func (a *Archiver) Finalize(ctx context.Context, run models.RunStatus, report *models.QAReport) error {
	rec, err := NewRunRecord(run, report)
	if err != nil {
		return err
	}
	return a.db.RecordRun(ctx, rec)
}
