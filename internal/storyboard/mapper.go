// Package storyboard turns script beats into scenes with an image and a
// motion directive each.
package storyboard

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
)

// ShotsFile is the artifact name of the persisted storyboard.
const ShotsFile = "shots.json"

// motionRule picks a directive when any keyword appears as a word in a line.
type motionRule struct {
	keywords []string
	motion   models.Motion
}

// motionRules are evaluated in order; the first match wins.
var motionRules = []motionRule{
	{
		keywords: []string{"now", "today", "fast", "hurry", "limited", "instantly"},
		motion:   models.Motion{Type: models.MotionZoomIn, Zoom: 1.10, Sway: true},
	},
	{
		keywords: []string{"cta", "try", "start", "get"},
		motion:   models.Motion{Type: models.MotionZoomIn, Zoom: 1.08},
	},
	{
		keywords: []string{"tired", "costly", "slow", "boring"},
		motion:   models.Motion{Type: models.MotionZoomOut, Zoom: 1.05},
	},
}

var defaultMotion = models.Motion{Type: models.MotionKenBurns, Zoom: 1.03}

// Build maps each non-empty line to one scene. Images are assigned cyclically
// by beat index; an empty image list leaves every scene without an image.
func Build(lines []string, images []string) models.Storyboard {
	board := models.Storyboard{Scenes: make([]models.Scene, 0, len(lines))}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		i := len(board.Scenes)
		scene := models.Scene{
			ID:      i + 1,
			Line:    line,
			Motion:  motionFor(line),
			Caption: true,
		}
		if len(images) > 0 {
			scene.Image = images[i%len(images)]
		}
		board.Scenes = append(board.Scenes, scene)
	}

	return board
}

func motionFor(line string) models.Motion {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	for _, rule := range motionRules {
		for _, kw := range rule.keywords {
			if words[kw] {
				return rule.motion
			}
		}
	}
	return defaultMotion
}

// Write persists the storyboard as shots.json inside runDir.
func Write(runDir string, board models.Storyboard) (string, error) {
	path := filepath.Join(runDir, ShotsFile)
	if err := fsutil.WriteJSON(path, board); err != nil {
		return "", fmt.Errorf("failed to write storyboard: %w", err)
	}
	return path, nil
}
