// Package pipeline drives a run through its stages and tracks the status of
// every run in the process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bobarin/adforge/internal/assets"
	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/narration"
	"github.com/bobarin/adforge/internal/qa"
	"github.com/bobarin/adforge/internal/render"
	"github.com/bobarin/adforge/internal/script"
	"github.com/bobarin/adforge/internal/storyboard"
)

const instrumentationName = "github.com/bobarin/adforge/internal/pipeline"

var ErrRunDirMissing = errors.New("run directory does not exist")

type Narrator interface {
	Synthesize(ctx context.Context, lines []string, voice, language, runDir string, opts ...narration.Option) (*narration.Result, error)
}

type Renderer interface {
	Render(ctx context.Context, runID string, board models.Storyboard, audioClips []string, aspect models.Aspect, runDir string, options ...render.RenderOption) (*render.Result, error)
}

type Auditor interface {
	Audit(ctx context.Context, outPath, runID string, board models.Storyboard, result *render.Result, aspect models.Aspect, runDir string) models.QAReport
}

// Finalizer runs after a run reaches a terminal status. Errors are logged and
// never change the run's outcome.
type Finalizer interface {
	Name() string
	Finalize(ctx context.Context, run models.RunStatus, report *models.QAReport) error
}

// Stages bundles the stage implementations.
type Stages struct {
	Classifier *assets.Classifier
	Writer     *script.Writer
	Narrator   Narrator
	Renderer   Renderer
	Auditor    Auditor
}

type Options struct {
	RunsDir         string
	MusicBedEnabled bool
}

type Orchestrator struct {
	opts       Options
	stages     Stages
	registry   *Registry
	finalizers []Finalizer
	logger     *slog.Logger

	tracer    trace.Tracer
	successes metric.Int64Counter
	failures  metric.Int64Counter
}

func New(opts Options, stages Stages, finalizers ...Finalizer) *Orchestrator {
	if stages.Classifier == nil {
		stages.Classifier = assets.NewClassifier()
	}
	if stages.Writer == nil {
		stages.Writer = script.NewWriter(nil)
	}

	o := &Orchestrator{
		opts:       opts,
		stages:     stages,
		registry:   NewRegistry(),
		finalizers: finalizers,
		logger:     slog.Default().With("component", "pipeline"),
		tracer:     otel.Tracer(instrumentationName),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if o.successes, err = meter.Int64Counter("adforge.stage.success",
		metric.WithDescription("Stages that completed")); err != nil {
		o.logger.Warn("failed to create success counter", "error", err)
	}
	if o.failures, err = meter.Int64Counter("adforge.stage.errors",
		metric.WithDescription("Stages that failed")); err != nil {
		o.logger.Warn("failed to create error counter", "error", err)
	}
	return o
}

// RunDir is the upload directory of a run.
func (o *Orchestrator) RunDir(runID string) string {
	return filepath.Join(o.opts.RunsDir, runID)
}

// Submit validates params and registers the run as pending so it is visible
// before a dispatcher picks it up.
func (o *Orchestrator) Submit(params models.RunParams) (models.RunParams, error) {
	params, err := o.prepare(params)
	if err != nil {
		return params, err
	}
	if err := o.registry.Init(params); err != nil {
		return params, err
	}
	o.logger.Info("run submitted", "run_id", params.RunID)
	return params, nil
}

func (o *Orchestrator) prepare(params models.RunParams) (models.RunParams, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return params, err
	}
	if !fsutil.DirExists(o.RunDir(params.RunID)) {
		return params, fmt.Errorf("%w: %s", ErrRunDirMissing, params.RunID)
	}
	return params, nil
}

func (o *Orchestrator) Status(runID string) models.RunStatus {
	return o.registry.Get(runID)
}

func (o *Orchestrator) ListStatuses() models.StatusList {
	return o.registry.List()
}

// runState carries artifacts from one stage to the next.
type runState struct {
	params   models.RunParams
	runDir   string
	manifest models.Manifest
	lines    []string
	board    models.Storyboard
	audio    *narration.Result
	musicBed string
	result   *render.Result
	report   *models.QAReport
}

// Start executes every stage of the run in order and blocks until the run is
// terminal. The returned error covers preconditions only; stage failures are
// reported through the returned status.
func (o *Orchestrator) Start(ctx context.Context, params models.RunParams) (models.RunStatus, error) {
	params, err := o.prepare(params)
	if err != nil {
		return o.registry.Get(params.RunID), err
	}
	if err := o.registry.Begin(params); err != nil {
		return o.registry.Get(params.RunID), err
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", params.RunID),
		attribute.String("run.aspect", string(params.Aspect)),
		attribute.String("run.tone", string(params.Tone)),
	))
	defer span.End()

	o.logger.Info("run started", "run_id", params.RunID, "target_length", params.TargetLength,
		"tone", params.Tone, "voice", params.Voice, "aspect", params.Aspect)

	st := &runState{params: params, runDir: o.RunDir(params.RunID)}
	steps := []struct {
		name models.StageName
		fn   func(context.Context, *runState) (map[string]any, error)
	}{
		{models.StageCurate, o.curate},
		{models.StageScript, o.script},
		{models.StageDirect, o.direct},
		{models.StageNarrate, o.narrate},
		{models.StageMusic, o.music},
		{models.StageEdit, o.edit},
		{models.StageQA, o.audit},
	}

	overall := models.OverallFailed
	for _, step := range steps {
		if err := o.runStage(ctx, st, step.name, step.fn); err != nil {
			span.SetStatus(codes.Error, err.Error())
			o.logger.Error("run aborted", "run_id", params.RunID, "stage", step.name, "error", err)
			break
		}
		if step.name == models.StageQA && st.report != nil && st.report.Status == models.QAStatusOK {
			overall = models.OverallSuccess
		}
	}

	if err := o.registry.SetOverall(params.RunID, overall); err != nil {
		o.logger.Error("failed to set overall status", "run_id", params.RunID, "error", err)
	}
	status := o.registry.Get(params.RunID)
	o.logger.Info("run finished", "run_id", params.RunID, "status", overall)

	o.finalize(ctx, status, st.report)
	return status, nil
}

type stageOutcome struct {
	payload map[string]any
	err     error
}

// runStage marks the stage running, executes fn on its own goroutine and
// records the outcome. Panics inside fn become stage failures.
func (o *Orchestrator) runStage(ctx context.Context, st *runState, name models.StageName, fn func(context.Context, *runState) (map[string]any, error)) error {
	runID := st.params.RunID
	if err := o.registry.Append(runID, name, models.StageStatusRunning, nil); err != nil {
		return err
	}

	ctx, span := o.tracer.Start(ctx, "stage."+string(name), trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("stage", string(name)),
	))
	defer span.End()

	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutcome{err: fmt.Errorf("stage %s panicked: %v", name, r)}
			}
		}()
		payload, err := fn(ctx, st)
		done <- stageOutcome{payload: payload, err: err}
	}()
	out := <-done

	attrs := metric.WithAttributes(attribute.String("stage", string(name)))
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		if o.failures != nil {
			o.failures.Add(ctx, 1, attrs)
		}
		payload := map[string]any{
			"error": out.err.Error(),
			"type":  errorType(out.err),
		}
		if err := o.registry.Append(runID, name, models.StageStatusFailed, payload); err != nil {
			o.logger.Error("failed to record stage failure", "run_id", runID, "stage", name, "error", err)
		}
		return out.err
	}

	if o.successes != nil {
		o.successes.Add(ctx, 1, attrs)
	}
	if err := o.registry.Append(runID, name, models.StageStatusCompleted, out.payload); err != nil {
		return err
	}
	o.logger.Info("stage completed", "run_id", runID, "stage", name)
	return nil
}

// errorType names the concrete error, unwrapping fmt wrappers so typed
// errors such as *render.RenderError stay visible.
func errorType(err error) string {
	var rerr *render.RenderError
	if errors.As(err, &rerr) {
		return fmt.Sprintf("%T", rerr)
	}
	return fmt.Sprintf("%T", err)
}

func (o *Orchestrator) finalize(ctx context.Context, status models.RunStatus, report *models.QAReport) {
	for _, f := range o.finalizers {
		if err := f.Finalize(ctx, status, report); err != nil {
			o.logger.Warn("finalizer failed", "run_id", status.RunID, "finalizer", f.Name(), "error", err)
		}
	}
}

func (o *Orchestrator) curate(_ context.Context, st *runState) (map[string]any, error) {
	manifest, err := o.stages.Classifier.Classify(st.runDir)
	if err != nil {
		return nil, err
	}
	path, err := assets.WriteManifest(st.runDir, manifest)
	if err != nil {
		return nil, err
	}
	st.manifest = manifest

	payload := map[string]any{"manifest": path}
	for k, v := range manifest.Counts() {
		payload[k] = v
	}
	return payload, nil
}

func (o *Orchestrator) script(ctx context.Context, st *runState) (map[string]any, error) {
	lines, err := o.stages.Writer.Draft(ctx, st.manifest.Brief, st.params.TargetLength, st.params.Tone, st.runDir)
	if err != nil {
		return nil, err
	}
	st.lines = lines
	return map[string]any{
		"lines":  len(lines),
		"script": filepath.Join(st.runDir, script.ScriptFile),
	}, nil
}

func (o *Orchestrator) direct(_ context.Context, st *runState) (map[string]any, error) {
	st.board = storyboard.Build(st.lines, st.manifest.Images)
	path, err := storyboard.Write(st.runDir, st.board)
	if err != nil {
		return nil, err
	}
	return map[string]any{"scenes": len(st.board.Scenes), "shots": path}, nil
}

func (o *Orchestrator) narrate(ctx context.Context, st *runState) (map[string]any, error) {
	if o.stages.Narrator == nil {
		return nil, errors.New("no narrator configured")
	}
	res, err := o.stages.Narrator.Synthesize(ctx, st.board.Lines(), st.params.Voice, st.params.Language, st.runDir,
		narration.WithTone(st.params.Tone))
	if err != nil {
		return nil, err
	}
	st.audio = res
	return map[string]any{
		"clips":        len(res.Paths),
		"engine":       res.Engine,
		"placeholders": res.Placeholders,
	}, nil
}

// music picks a background bed. Without MUSIC_BED_ENABLED no bed is chosen;
// otherwise the first uploaded audio file is used.
func (o *Orchestrator) music(_ context.Context, st *runState) (map[string]any, error) {
	payload := map[string]any{"enabled": o.opts.MusicBedEnabled, "bed": nil}
	if o.opts.MusicBedEnabled && len(st.manifest.Audio) > 0 {
		st.musicBed = st.manifest.Audio[0]
		payload["bed"] = st.musicBed
	}
	return payload, nil
}

func (o *Orchestrator) edit(ctx context.Context, st *runState) (map[string]any, error) {
	if o.stages.Renderer == nil {
		return nil, errors.New("no renderer configured")
	}
	var options []render.RenderOption
	if st.musicBed != "" {
		options = append(options, render.WithMusicBed(st.musicBed))
	}
	var clips []string
	if st.audio != nil {
		clips = st.audio.Paths
	}

	res, err := o.stages.Renderer.Render(ctx, st.params.RunID, st.board, clips, st.params.Aspect, st.runDir, options...)
	if err != nil {
		return nil, err
	}
	st.result = res
	payload := map[string]any{
		"path":        res.Path,
		"duration":    res.Duration,
		"width":       res.Width,
		"height":      res.Height,
		"built":       res.Built,
		"skipped":     res.Skipped,
		"music_mixed": res.MusicMixed,
	}
	if res.Subtitles != "" {
		payload["subtitles"] = res.Subtitles
	}
	return payload, nil
}

func (o *Orchestrator) audit(ctx context.Context, st *runState) (map[string]any, error) {
	if o.stages.Auditor == nil {
		return nil, errors.New("no auditor configured")
	}
	outPath := filepath.Join(st.runDir, render.OutputFile)
	if st.result != nil {
		outPath = st.result.Path
	}
	report := o.stages.Auditor.Audit(ctx, outPath, st.params.RunID, st.board, st.result, st.params.Aspect, st.runDir)
	st.report = &report

	payload := report.Payload()
	payload["metadata"] = filepath.Join(st.runDir, qa.MetadataFile)
	return payload, nil
}
