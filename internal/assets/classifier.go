// Package assets scans a run's upload directory and partitions the files into
// the buckets the rest of the pipeline consumes.
package assets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/filetype"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
)

// ManifestFile is the artifact name of the persisted manifest.
const ManifestFile = "assets.json"

type bucket int

const (
	bucketNone bucket = iota
	bucketImage
	bucketLogo
	bucketAudio
	bucketText
	bucketBrief
)

// extensionTable maps a lowercased file extension to its family.
var extensionTable = map[string]bucket{
	".png":  bucketImage,
	".jpg":  bucketImage,
	".jpeg": bucketImage,
	".webp": bucketImage,
	".bmp":  bucketImage,
	".gif":  bucketImage,
	".wav":  bucketAudio,
	".mp3":  bucketAudio,
	".m4a":  bucketAudio,
	".aac":  bucketAudio,
	".ogg":  bucketAudio,
	".txt":  bucketText,
	".md":   bucketText,
	".json": bucketText,
}

// keywordRule redirects a file from one family to a more specific bucket when
// its lowercased name contains any of the keywords.
type keywordRule struct {
	from     bucket
	keywords []string
	to       bucket
}

// keywordRules are evaluated in order; the first match wins for a file.
var keywordRules = []keywordRule{
	{from: bucketImage, keywords: []string{"logo", "brand"}, to: bucketLogo},
	{from: bucketText, keywords: []string{"brief", "style", "prompt", "copy"}, to: bucketBrief},
}

// reserved names are pipeline outputs living in the same directory.
var reserved = map[string]bool{
	ManifestFile:    true,
	"script.md":     true,
	"shots.json":    true,
	"metadata.json": true,
	"ad_final.mp4":  true,
	"ad_final.ass":  true,
}

// Classifier builds asset manifests from a directory listing.
type Classifier struct {
	// SniffUnknown enables magic-byte detection for files whose extension
	// is not in the table.
	SniffUnknown bool
	logger       *slog.Logger
}

func NewClassifier() *Classifier {
	return &Classifier{
		SniffUnknown: true,
		logger:       slog.Default().With("component", "assets"),
	}
}

// Classify scans runDir. A missing or empty directory yields an empty
// manifest. Entries are visited in lexical order, so when several text files
// qualify as the brief the lexically greatest name wins.
func (c *Classifier) Classify(runDir string) (models.Manifest, error) {
	manifest := models.Manifest{
		Images: []string{},
		Logos:  []string{},
		Audio:  []string{},
	}

	entries, err := os.ReadDir(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Warn("run directory missing, returning empty manifest", "dir", runDir)
			return manifest, nil
		}
		return manifest, fmt.Errorf("failed to read run directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || reserved[entry.Name()] || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(runDir, entry.Name())
		switch c.bucketFor(path) {
		case bucketImage:
			manifest.Images = append(manifest.Images, path)
		case bucketLogo:
			manifest.Logos = append(manifest.Logos, path)
		case bucketAudio:
			manifest.Audio = append(manifest.Audio, path)
		case bucketBrief:
			if manifest.Brief != "" {
				c.logger.Info("multiple brief candidates, keeping the later one",
					"previous", filepath.Base(manifest.Brief), "current", entry.Name())
			}
			manifest.Brief = path
		}
	}

	return manifest, nil
}

func (c *Classifier) bucketFor(path string) bucket {
	name := strings.ToLower(filepath.Base(path))

	family, ok := extensionTable[filepath.Ext(name)]
	if !ok && c.SniffUnknown {
		family = sniff(path)
	}
	if family == bucketNone {
		return bucketNone
	}

	for _, rule := range keywordRules {
		if rule.from != family {
			continue
		}
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.to
			}
		}
	}

	return family
}

// sniff reads the file header to recover images and audio uploaded without a
// recognizable extension.
func sniff(path string) bucket {
	f, err := os.Open(path)
	if err != nil {
		return bucketNone
	}
	defer f.Close()

	head := make([]byte, 261)
	n, _ := f.Read(head)
	head = head[:n]

	switch {
	case filetype.IsImage(head):
		return bucketImage
	case filetype.IsAudio(head):
		return bucketAudio
	}
	return bucketNone
}

// WriteManifest persists the manifest as assets.json inside runDir.
func WriteManifest(runDir string, manifest models.Manifest) (string, error) {
	path := filepath.Join(runDir, ManifestFile)
	if err := fsutil.WriteJSON(path, manifest); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
