package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bobarin/adforge/internal/app"
	"github.com/bobarin/adforge/internal/config"
	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/render"
	"github.com/bobarin/adforge/internal/telemetry"
)

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dir := fs.String("dir", "", "folder holding the product media (required)")
	length := fs.Int("length", models.DefaultTargetLength, "target length in seconds")
	tone := fs.String("tone", string(models.ToneConfident), "script tone")
	voice := fs.String("voice", models.DefaultVoice, "narration voice; mute disables narration")
	aspect := fs.String("aspect", string(models.AspectWidescreen), "16:9, 9:16 or 1:1")
	lang := fs.String("lang", models.DefaultLanguage, "narration language")
	jsonOut := fs.Bool("json", false, "print the final run status as JSON")
	plain := fs.Bool("plain", false, "disable the interactive progress view")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	runsDir, runID, err := splitRunDir(*dir)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.RunsDir = runsDir

	interactive := !*plain && !*jsonOut && stdoutIsTTY()
	level := cfg.LogLevel
	if interactive {
		// Keep log lines from tearing the progress view.
		level = "error"
	}
	telemetry.SetupLogging(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}

	params := models.RunParams{
		RunID:        runID,
		TargetLength: *length,
		Tone:         models.Tone(*tone),
		Voice:        *voice,
		Aspect:       models.Aspect(*aspect),
		Language:     *lang,
	}

	var status models.RunStatus
	if interactive {
		status, err = renderInteractive(ctx, built, params)
	} else {
		status, err = built.Orchestrator.Start(ctx, params)
	}
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(os.Stdout, status)
	}
	printSummary(os.Stdout, status, filepath.Join(runsDir, runID, render.OutputFile))
	if status.OverallStatus != models.OverallSuccess {
		return errors.New("render failed")
	}
	return nil
}

// splitRunDir maps a media folder onto the runs directory layout: the parent
// holds runs and the folder name is the run id.
func splitRunDir(dir string) (runsDir, runID string, err error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", "", errors.New("--dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("failed to open %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%s is not a directory", dir)
	}
	runID = filepath.Base(abs)
	if runID == string(filepath.Separator) || runID == "." {
		return "", "", fmt.Errorf("%s cannot be used as a run folder", dir)
	}
	return filepath.Dir(abs), runID, nil
}

func renderInteractive(ctx context.Context, built *app.Pipeline, params models.RunParams) (models.RunStatus, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := strings.TrimSpace(params.RunID)
	m := newProgressModel(runID, func() models.RunStatus {
		return built.Orchestrator.Status(runID)
	}, cancel)
	p := tea.NewProgram(m)

	done := make(chan doneMsg, 1)
	go func() {
		status, err := built.Orchestrator.Start(ctx, params)
		msg := doneMsg{status: status, err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		res := <-done
		if res.err != nil {
			return res.status, res.err
		}
		return res.status, fmt.Errorf("progress view failed: %w", err)
	}
	res := <-done
	return res.status, res.err
}

func printSummary(w io.Writer, status models.RunStatus, outPath string) {
	fmt.Fprintf(w, "run %s: %s\n", status.RunID, status.OverallStatus)
	for _, step := range status.Steps {
		line := fmt.Sprintf("  %-8s %s", step.Stage, step.Status)
		if msg, ok := step.Payload["error"].(string); ok && msg != "" {
			line += " (" + msg + ")"
		}
		fmt.Fprintln(w, line)
	}
	if status.OverallStatus == models.OverallSuccess {
		fmt.Fprintf(w, "output: %s\n", outPath)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
