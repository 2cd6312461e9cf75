package stylehints

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder maps text onto a fixed vocabulary by word counts.
type wordEmbedder struct {
	vocab []string
	fail  bool
	calls int
}

func (w *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	w.calls++
	if w.fail {
		return nil, errors.New("quota exceeded")
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(w.vocab))
	for i, word := range w.vocab {
		vec[i] = float32(strings.Count(lower, word))
	}
	return vec, nil
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine(nil, []float32{1}))
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestSearchRanksDirectoryDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "luxury.md"), []byte("luxury craftsmanship"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "urgent.md"), []byte("urgent offers today"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("urgent"), 0644))

	emb := &wordEmbedder{vocab: []string{"luxury", "urgent", "today"}}
	idx := NewIndex(emb, dir)

	hint := idx.Search(context.Background(), "urgent ad for today", 1)
	assert.Equal(t, "urgent offers today", hint)

	both := idx.Search(context.Background(), "urgent luxury", 5)
	assert.Equal(t, 2, len(strings.Split(both, "\n\n")))
}

func TestSearchFallsBackToSeeds(t *testing.T) {
	emb := &wordEmbedder{vocab: []string{"friendly", "warmth"}}
	idx := NewIndex(emb, "")

	hint := idx.Search(context.Background(), "friendly", 1)
	assert.Contains(t, hint, "Friendly tone")
}

func TestSearchDegradesToEmpty(t *testing.T) {
	var nilIndex *Index
	assert.Empty(t, nilIndex.Search(context.Background(), "anything", 2))

	emb := &wordEmbedder{vocab: []string{"x"}, fail: true}
	assert.Empty(t, NewIndex(emb, "").Search(context.Background(), "anything", 2))
}

func TestLoadEmbedsOnce(t *testing.T) {
	emb := &wordEmbedder{vocab: []string{"tone"}}
	idx := NewIndex(emb, "")

	require.NoError(t, idx.Load(context.Background()))
	first := emb.calls
	require.NoError(t, idx.Load(context.Background()))
	assert.Equal(t, first, emb.calls)
	assert.Equal(t, len(seedDocuments()), first)
}
