package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/bobarin/adforge/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrUnknownRun        = errors.New("unknown run")
	ErrRunActive         = errors.New("run is already in progress")
)

type runRecord struct {
	params     models.RunParams
	overall    models.OverallStatus
	current    models.StageName
	entries    []models.StageEntry
	latest     map[models.StageName]int // index into entries
	startedAt  *time.Time
	finishedAt *time.Time
}

// Registry holds the status tree of every run known to this process. All
// access goes through a single mutex and every read returns a deep copy.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*runRecord
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]*runRecord),
		now:  time.Now,
	}
}

// Init registers a run with every stage pending, replacing any previous tree
// for the same id. A run that is currently running is left untouched.
func (r *Registry) Init(params models.RunParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.runs[params.RunID]; ok && rec.overall == models.OverallRunning {
		return fmt.Errorf("%w: %s", ErrRunActive, params.RunID)
	}
	r.runs[params.RunID] = r.newRecord(params)
	return nil
}

// Begin resets the run's tree and marks it running in one step, so two
// concurrent starts of the same id cannot both succeed.
func (r *Registry) Begin(params models.RunParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.runs[params.RunID]; ok && rec.overall == models.OverallRunning {
		return fmt.Errorf("%w: %s", ErrRunActive, params.RunID)
	}
	rec := r.newRecord(params)
	now := r.now()
	rec.overall = models.OverallRunning
	rec.startedAt = &now
	r.runs[params.RunID] = rec
	return nil
}

func (r *Registry) newRecord(params models.RunParams) *runRecord {
	rec := &runRecord{
		params:  params,
		overall: models.OverallPending,
		latest:  make(map[models.StageName]int, len(models.Stages)),
	}
	now := r.now()
	for _, stage := range models.Stages {
		rec.latest[stage] = len(rec.entries)
		rec.entries = append(rec.entries, models.StageEntry{
			Stage:  stage,
			Status: models.StageStatusPending,
			At:     now,
		})
	}
	return rec
}

// Append records a stage transition. Transitions not allowed by the stage
// state machine are rejected with ErrInvalidTransition.
func (r *Registry) Append(runID string, stage models.StageName, status models.StageStatus, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	var from models.StageStatus
	if idx, ok := rec.latest[stage]; ok {
		from = rec.entries[idx].Status
	}
	if !models.CanTransition(from, status) {
		return fmt.Errorf("%w: %s %q -> %q", ErrInvalidTransition, stage, from, status)
	}

	rec.latest[stage] = len(rec.entries)
	rec.entries = append(rec.entries, models.StageEntry{
		Stage:   stage,
		Status:  status,
		Payload: maps.Clone(payload),
		At:      r.now(),
	})
	if status == models.StageStatusRunning {
		rec.current = stage
	}
	return nil
}

// SetOverall sets the run-level status. Terminal statuses stamp FinishedAt.
func (r *Registry) SetOverall(runID string, status models.OverallStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	rec.overall = status
	if status == models.OverallSuccess || status == models.OverallFailed {
		now := r.now()
		rec.finishedAt = &now
	}
	return nil
}

// Get returns a snapshot of the run, or a not_found status for unknown ids.
func (r *Registry) Get(runID string) models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return models.RunStatus{RunID: runID, OverallStatus: models.OverallNotFound}
	}
	return snapshot(runID, rec)
}

// List returns every run ordered by id together with outcome counters.
func (r *Registry) List() models.StatusList {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := models.StatusList{Runs: make([]models.RunStatus, 0, len(ids))}
	for _, id := range ids {
		rec := r.runs[id]
		list.Runs = append(list.Runs, snapshot(id, rec))
		list.Counters.Total++
		switch rec.overall {
		case models.OverallSuccess:
			list.Counters.Succeeded++
		case models.OverallFailed:
			list.Counters.Failed++
		case models.OverallRunning:
			list.Counters.Running++
		case models.OverallPending:
			list.Counters.Pending++
		}
	}
	return list
}

func (r *Registry) Counters() models.StatusCounters {
	return r.List().Counters
}

func snapshot(runID string, rec *runRecord) models.RunStatus {
	params := rec.params
	status := models.RunStatus{
		RunID:         runID,
		OverallStatus: rec.overall,
		CurrentStage:  rec.current,
		Params:        &params,
		Entries:       make([]models.StageEntry, len(rec.entries)),
		StartedAt:     copyTime(rec.startedAt),
		FinishedAt:    copyTime(rec.finishedAt),
	}
	for i, e := range rec.entries {
		status.Entries[i] = copyEntry(e)
	}
	for _, stage := range models.Stages {
		if idx, ok := rec.latest[stage]; ok {
			status.Steps = append(status.Steps, copyEntry(rec.entries[idx]))
		}
	}
	return status
}

func copyEntry(e models.StageEntry) models.StageEntry {
	e.Payload = maps.Clone(e.Payload)
	return e
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
