// Package script drafts templated ad copy, one line per beat.
package script

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
)

// ScriptFile is the artifact name of the drafted script.
const ScriptFile = "script.md"

const (
	defaultFocus  = "your brand"
	maxFocusRunes = 60
)

// HintSource looks up brand style guidance. Implementations return "" when
// nothing relevant is found or the lookup is unavailable.
type HintSource interface {
	Search(ctx context.Context, query string, k int) string
}

type Writer struct {
	hints  HintSource
	logger *slog.Logger
}

// NewWriter creates a writer. hints may be nil.
func NewWriter(hints HintSource) *Writer {
	return &Writer{
		hints:  hints,
		logger: slog.Default().With("component", "script"),
	}
}

// Draft builds the beat lines for a run and persists them as script.md in
// runDir. briefPath may be empty.
func (w *Writer) Draft(ctx context.Context, briefPath string, targetLength int, tone models.Tone, runDir string) ([]string, error) {
	if !tone.Valid() {
		tone = models.ToneConfident
	}

	focus := readFocus(briefPath)
	if focus == "" {
		focus = defaultFocus
	}

	table := phrases[tone]
	beats := beatsFor(targetLength)
	lines := make([]string, 0, len(beats))
	for _, beat := range beats {
		lines = append(lines, strings.ReplaceAll(table[beat], "%s", focus))
	}

	hint := ""
	if w.hints != nil {
		hint = w.hints.Search(ctx, fmt.Sprintf("%s tone short-form ad for %s", tone, focus), 2)
	}

	if err := fsutil.WriteBytes(filepath.Join(runDir, ScriptFile), render(beats, lines, tone, hint)); err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	w.logger.Info("script drafted", "beats", len(lines), "tone", tone, "has_hint", hint != "")
	return lines, nil
}

// readFocus returns the first non-empty line of the brief with markdown
// heading markers removed.
func readFocus(briefPath string) string {
	if briefPath == "" {
		return ""
	}
	f, err := os.Open(briefPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimLeft(scanner.Text(), "#>-* "))
		if line == "" || line == "{" || line == "[" {
			continue
		}
		runes := []rune(line)
		if len(runes) > maxFocusRunes {
			line = strings.TrimSpace(string(runes[:maxFocusRunes]))
		}
		return strings.TrimRight(line, ".!?")
	}
	return ""
}

func render(beats, lines []string, tone models.Tone, hint string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Script (%s)\n\n", tone)
	if hint != "" {
		fmt.Fprintf(&b, "<!-- style: %s -->\n\n", strings.Join(strings.Fields(hint), " "))
	}
	for i, line := range lines {
		fmt.Fprintf(&b, "%s: %s\n", beats[i], line)
	}
	return []byte(b.String())
}

// ReadLines parses a script.md written by Draft back into beat lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "<!--") {
			continue
		}
		if label, text, ok := strings.Cut(raw, ": "); ok && isBeat(label) {
			raw = text
		}
		lines = append(lines, raw)
	}
	return lines, nil
}

func isBeat(label string) bool {
	switch label {
	case BeatHook, BeatProblem, BeatSolution, BeatBenefit, BeatCTA:
		return true
	}
	return false
}
