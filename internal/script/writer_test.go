package script

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

type stubHints struct {
	hint    string
	queries []string
}

func (s *stubHints) Search(_ context.Context, query string, _ int) string {
	s.queries = append(s.queries, query)
	return s.hint
}

func TestDraftBeatCountScalesWithLength(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{5, 3},
		{15, 3},
		{16, 4},
		{30, 4},
		{31, 5},
		{120, 5},
	}

	w := NewWriter(nil)
	for _, tt := range tests {
		lines, err := w.Draft(context.Background(), "", tt.length, models.ToneConfident, t.TempDir())
		require.NoError(t, err)
		assert.Len(t, lines, tt.want, "target length %d", tt.length)
	}
}

func TestDraftUsesBriefFocus(t *testing.T) {
	dir := t.TempDir()
	brief := filepath.Join(dir, "brief.md")
	require.NoError(t, os.WriteFile(brief, []byte("\n# Acme Rocket Boots.\nmore details\n"), 0644))

	lines, err := NewWriter(nil).Draft(context.Background(), brief, 30, models.ToneFriendly, dir)
	require.NoError(t, err)

	assert.Equal(t, "Hey there, say hello to Acme Rocket Boots.", lines[0])
	assert.Contains(t, lines[len(lines)-1], "Acme Rocket Boots")
}

func TestDraftFallsBackForMissingBriefAndTone(t *testing.T) {
	dir := t.TempDir()

	lines, err := NewWriter(nil).Draft(context.Background(), filepath.Join(dir, "missing.txt"), 10, models.Tone("sarcastic"), dir)
	require.NoError(t, err)

	assert.Equal(t, "Meet your brand. Built to win.", lines[0])
}

func TestDraftWritesScriptAndHint(t *testing.T) {
	dir := t.TempDir()
	hints := &stubHints{hint: "Use strong,\ndeclarative statements"}

	lines, err := NewWriter(hints).Draft(context.Background(), "", 20, models.ToneUrgent, dir)
	require.NoError(t, err)
	require.Len(t, hints.queries, 1)
	assert.Contains(t, hints.queries[0], "urgent")

	data, err := os.ReadFile(filepath.Join(dir, ScriptFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<!-- style: Use strong, declarative statements -->")
	assert.True(t, strings.Contains(string(data), "HOOK: "+lines[0]))

	parsed, err := ReadLines(filepath.Join(dir, ScriptFile))
	require.NoError(t, err)
	assert.Equal(t, lines, parsed)
}

func TestEveryToneHasEveryBeat(t *testing.T) {
	for _, tone := range models.Tones {
		table, ok := phrases[tone]
		require.True(t, ok, "missing table for %s", tone)
		for _, beat := range []string{BeatHook, BeatProblem, BeatSolution, BeatBenefit, BeatCTA} {
			assert.NotEmpty(t, table[beat], "%s/%s", tone, beat)
		}
	}
}
