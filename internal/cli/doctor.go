package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bobarin/adforge/internal/app"
	"github.com/bobarin/adforge/internal/config"
	"github.com/bobarin/adforge/internal/services"
	"github.com/bobarin/adforge/internal/telemetry"
)

type check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool    `json:"ok"`
	Checks []check `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	telemetry.SetupLogging(os.Stderr, "error")

	ff := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath)
	ffmpegOK, ffprobeOK := ff.Available()
	_, espeakErr := services.LocateEspeak()
	engines, engineErr := app.NarrationEngines(context.Background(), cfg, ff)

	res := doctorChecks(ffmpegOK, ffprobeOK, espeakErr, cfg.TTSEngine, len(engines), engineErr)
	if *jsonOut {
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		printChecks(os.Stdout, res)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	return nil
}

// doctorChecks treats ffmpeg and ffprobe as hard requirements. Narration
// always degrades to silence, so engine problems are reported but not fatal
// unless the configured provider could not be built.
func doctorChecks(ffmpegOK, ffprobeOK bool, espeakErr error, engine string, engineCount int, engineErr error) doctorResult {
	checks := []check{
		toolCheck("ffmpeg", ffmpegOK),
		toolCheck("ffprobe", ffprobeOK),
	}

	if espeakErr != nil {
		checks = append(checks, check{Name: "espeak", OK: true, Message: "not found, offline narration unavailable"})
	} else {
		checks = append(checks, check{Name: "espeak", OK: true, Message: "found"})
	}

	switch {
	case engineErr != nil:
		checks = append(checks, check{Name: "narration", OK: false, Message: engineErr.Error()})
	case engine == "":
		checks = append(checks, check{Name: "narration", OK: true, Message: fmt.Sprintf("no provider configured, %d fallback engine(s)", engineCount)})
	default:
		checks = append(checks, check{Name: "narration", OK: true, Message: fmt.Sprintf("%s, %d engine(s)", engine, engineCount)})
	}

	res := doctorResult{OK: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			res.OK = false
		}
	}
	return res
}

func toolCheck(name string, ok bool) check {
	if ok {
		return check{Name: name, OK: true, Message: "found"}
	}
	return check{Name: name, OK: false, Message: "not found on PATH"}
}

func printChecks(w io.Writer, res doctorResult) {
	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Fprintf(w, "%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if res.OK {
		fmt.Fprintln(w, "doctor: all checks passed")
	}
}
