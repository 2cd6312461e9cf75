// Package stylehints ranks brand style documents against a query by embedding
// similarity. Lookups are best effort: every failure yields an empty hint.
package stylehints

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Document struct {
	ID     string
	Title  string
	Text   string
	vector []float32
}

// Index holds embedded style documents. It loads lazily on first search.
type Index struct {
	embedder Embedder
	dir      string
	logger   *slog.Logger

	mu     sync.Mutex
	docs   []Document
	loaded bool
}

// NewIndex creates an index over the markdown files in dir. An empty dir, or
// one without markdown files, falls back to the built-in seed documents.
func NewIndex(embedder Embedder, dir string) *Index {
	return &Index{
		embedder: embedder,
		dir:      dir,
		logger:   slog.Default().With("component", "stylehints"),
	}
}

// Load embeds the document set. It is safe to call more than once.
func (i *Index) Load(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.loaded {
		return nil
	}

	docs, err := readDocuments(i.dir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		docs = seedDocuments()
	}

	for n := range docs {
		vec, err := i.embedder.Embed(ctx, docs[n].Text)
		if err != nil {
			return fmt.Errorf("failed to embed document %s: %w", docs[n].ID, err)
		}
		docs[n].vector = vec
	}

	i.docs = docs
	i.loaded = true
	i.logger.Info("style index loaded", "documents", len(docs))
	return nil
}

// Search returns the k most similar documents joined by blank lines, or ""
// when the index is unavailable.
func (i *Index) Search(ctx context.Context, query string, k int) string {
	if i == nil || i.embedder == nil {
		return ""
	}
	if k < 1 {
		k = 1
	}

	if err := i.Load(ctx); err != nil {
		i.logger.Warn("style index unavailable", "error", err)
		return ""
	}

	qvec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		i.logger.Warn("style hint query embedding failed", "error", err)
		return ""
	}

	i.mu.Lock()
	type scored struct {
		doc   Document
		score float64
	}
	ranked := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		ranked = append(ranked, scored{doc: d, score: Cosine(qvec, d.vector)})
	}
	i.mu.Unlock()

	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	var out []string
	for _, r := range ranked {
		if len(out) == k {
			break
		}
		if r.score <= 0 {
			continue
		}
		out = append(out, r.doc.Text)
	}
	return strings.Join(out, "\n\n")
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for n := range a {
		dot += float64(a[n]) * float64(b[n])
		na += float64(a[n]) * float64(a[n])
		nb += float64(b[n]) * float64(b[n])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func readDocuments(dir string) ([]Document, error) {
	if dir == "" {
		return nil, nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list style documents: %w", err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("skipping unreadable style document", "path", p, "error", err)
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		docs = append(docs, Document{
			ID:    stem,
			Title: strings.ReplaceAll(stem, "_", " "),
			Text:  string(data),
		})
	}
	return docs, nil
}

func seedDocuments() []Document {
	return []Document{
		{ID: "confident_tone", Title: "Confident tone", Text: "Confident tone: strong declarative statements, no hedging, focus on outcomes, active voice, clear calls to action."},
		{ID: "friendly_tone", Title: "Friendly tone", Text: "Friendly tone: conversational language, inclusive pronouns, warmth, light rhetorical questions, positive phrasing."},
		{ID: "urgent_tone", Title: "Urgent tone", Text: "Urgent tone: short sentences, time-bound offers, act now, today, limited availability."},
		{ID: "luxury_tone", Title: "Luxury tone", Text: "Luxury tone: understated language, craftsmanship, exclusivity, slow pacing, refined detail."},
		{ID: "short_form_structure", Title: "Short-form structure", Text: "Short-form ad structure for 15 to 30 seconds: hook, problem, solution, benefit, call to action."},
		{ID: "brand_safety", Title: "Brand safety", Text: "Brand safety: avoid controversy, fact-check claims, follow platform policies, inclusive language."},
	}
}
