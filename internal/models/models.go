package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Enums

type Tone string

const (
	ToneConfident   Tone = "confident"
	ToneFriendly    Tone = "friendly"
	TonePlayful     Tone = "playful"
	ToneUrgent      Tone = "urgent"
	ToneLuxury      Tone = "luxury"
	ToneInformative Tone = "informative"
)

// Tones lists every supported tone in display order.
var Tones = []Tone{ToneConfident, ToneFriendly, TonePlayful, ToneUrgent, ToneLuxury, ToneInformative}

func (t Tone) Valid() bool {
	for _, v := range Tones {
		if v == t {
			return true
		}
	}
	return false
}

type Aspect string

const (
	AspectWidescreen Aspect = "16:9"
	AspectVertical   Aspect = "9:16"
	AspectSquare     Aspect = "1:1"
)

// Dimensions returns the fixed canvas for an aspect ratio.
func (a Aspect) Dimensions() (width, height int, ok bool) {
	switch a {
	case AspectWidescreen:
		return 1920, 1080, true
	case AspectVertical:
		return 1080, 1920, true
	case AspectSquare:
		return 1080, 1080, true
	}
	return 0, 0, false
}

type StageName string

const (
	StageCurate  StageName = "curate"
	StageScript  StageName = "script"
	StageDirect  StageName = "direct"
	StageNarrate StageName = "narrate"
	StageMusic   StageName = "music"
	StageEdit    StageName = "edit"
	StageQA      StageName = "qa"
)

// Stages is the fixed execution order of a run.
var Stages = []StageName{StageCurate, StageScript, StageDirect, StageNarrate, StageMusic, StageEdit, StageQA}

type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// stageTransitions maps a stage's current status to the statuses it may move to.
// The empty status is a stage that has no entry yet.
var stageTransitions = map[StageStatus]map[StageStatus]bool{
	"":                   {StageStatusPending: true},
	StageStatusPending:   {StageStatusRunning: true},
	StageStatusRunning:   {StageStatusCompleted: true, StageStatusFailed: true},
	StageStatusCompleted: {},
	StageStatusFailed:    {},
}

// CanTransition reports whether a stage may move from one status to the next.
func CanTransition(from, to StageStatus) bool {
	next, ok := stageTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Terminal reports whether a stage status can never change again.
func (s StageStatus) Terminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed
}

type OverallStatus string

const (
	OverallPending  OverallStatus = "pending"
	OverallRunning  OverallStatus = "running"
	OverallSuccess  OverallStatus = "success"
	OverallFailed   OverallStatus = "failed"
	OverallNotFound OverallStatus = "not_found"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Run parameters

const (
	MinTargetLength     = 5
	MaxTargetLength     = 120
	DefaultTargetLength = 30
	DefaultVoice        = "default"
	DefaultLanguage     = "en"
)

var ErrInvalidParams = errors.New("invalid run parameters")

// muteVoices are voice selectors that disable narration.
var muteVoices = map[string]bool{"mute": true, "none": true, "silent": true}

// IsMuteVoice reports whether the voice selector disables narration.
func IsMuteVoice(voice string) bool {
	return muteVoices[strings.ToLower(strings.TrimSpace(voice))]
}

type RunParams struct {
	RunID        string `json:"run_id"`
	TargetLength int    `json:"target_length"`
	Tone         Tone   `json:"tone"`
	Voice        string `json:"voice"`
	Aspect       Aspect `json:"aspect"`
	Language     string `json:"language,omitempty"`
}

// Normalize fills unset fields with their defaults.
func (p *RunParams) Normalize() {
	p.RunID = strings.TrimSpace(p.RunID)
	if p.TargetLength == 0 {
		p.TargetLength = DefaultTargetLength
	}
	if p.Tone == "" {
		p.Tone = ToneConfident
	}
	p.Tone = Tone(strings.ToLower(string(p.Tone)))
	if strings.TrimSpace(p.Voice) == "" {
		p.Voice = DefaultVoice
	}
	if p.Aspect == "" {
		p.Aspect = AspectWidescreen
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
}

func (p RunParams) Validate() error {
	if p.RunID == "" {
		return fmt.Errorf("%w: run_id is required", ErrInvalidParams)
	}
	if strings.ContainsAny(p.RunID, `/\`) || p.RunID == "." || p.RunID == ".." {
		return fmt.Errorf("%w: run_id %q is not a valid directory name", ErrInvalidParams, p.RunID)
	}
	if p.TargetLength < MinTargetLength || p.TargetLength > MaxTargetLength {
		return fmt.Errorf("%w: target_length must be between %d and %d seconds, got %d",
			ErrInvalidParams, MinTargetLength, MaxTargetLength, p.TargetLength)
	}
	if !p.Tone.Valid() {
		return fmt.Errorf("%w: unsupported tone %q", ErrInvalidParams, p.Tone)
	}
	if _, _, ok := p.Aspect.Dimensions(); !ok {
		return fmt.Errorf("%w: unsupported aspect %q (allowed: 16:9, 9:16, 1:1)", ErrInvalidParams, p.Aspect)
	}
	return nil
}

// Run status

// StageEntry is one immutable record in a run's execution trace.
type StageEntry struct {
	Stage   StageName      `json:"step"`
	Status  StageStatus    `json:"status"`
	Payload map[string]any `json:"extra,omitempty"`
	At      time.Time      `json:"at"`
}

// RunStatus is a point-in-time snapshot of a run.
type RunStatus struct {
	RunID         string        `json:"run_id"`
	OverallStatus OverallStatus `json:"overall_status"`
	CurrentStage  StageName     `json:"current_step,omitempty"`
	Params        *RunParams    `json:"parameters,omitempty"`
	Steps         []StageEntry  `json:"steps,omitempty"`
	Entries       []StageEntry  `json:"entries,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// StatusCounters aggregates run outcomes for administrative listing.
type StatusCounters struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

type StatusList struct {
	Runs     []RunStatus    `json:"runs"`
	Counters StatusCounters `json:"counters"`
}

// Artifacts

type Manifest struct {
	Images []string `json:"images"`
	Logos  []string `json:"logos"`
	Audio  []string `json:"audio"`
	Brief  string   `json:"brief,omitempty"`
}

// Counts summarizes a manifest for stage diagnostics.
func (m Manifest) Counts() map[string]int {
	brief := 0
	if m.Brief != "" {
		brief = 1
	}
	return map[string]int{
		"images": len(m.Images),
		"logos":  len(m.Logos),
		"audio":  len(m.Audio),
		"brief":  brief,
	}
}

type MotionType string

const (
	MotionKenBurns MotionType = "kenburns"
	MotionZoomIn   MotionType = "zoom_in"
	MotionZoomOut  MotionType = "zoom_out"
)

type Motion struct {
	Type MotionType `json:"type"`
	Zoom float64    `json:"zoom"`           // peak scale, e.g. 1.08
	Sway bool       `json:"sway,omitempty"` // small periodic rotation
}

type Scene struct {
	ID      int    `json:"id"`
	Line    string `json:"line"`
	Image   string `json:"image,omitempty"`
	Motion  Motion `json:"motion"`
	Caption bool   `json:"caption"`
}

type Storyboard struct {
	Scenes []Scene `json:"scenes"`
}

// Lines returns the narration text of every scene in order.
func (s Storyboard) Lines() []string {
	lines := make([]string, len(s.Scenes))
	for i, scene := range s.Scenes {
		lines[i] = scene.Line
	}
	return lines
}

type QAStatus string

const (
	QAStatusOK     QAStatus = "ok"
	QAStatusFailed QAStatus = "failed"
)

type QAReport struct {
	Status     QAStatus `json:"status"`
	FileExists bool     `json:"file_exists"`
	FileSize   int64    `json:"file_size"`
	Duration   float64  `json:"duration"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	Path       string   `json:"path"`
}

// Payload converts the report into a stage diagnostic payload.
func (r QAReport) Payload() map[string]any {
	return map[string]any{
		"status":      string(r.Status),
		"file_exists": r.FileExists,
		"file_size":   r.FileSize,
		"duration":    r.Duration,
		"width":       r.Width,
		"height":      r.Height,
		"path":        r.Path,
	}
}

type SceneTiming struct {
	SceneID  int     `json:"scene_id"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// RenderMetadata is persisted as metadata.json next to the render.
type RenderMetadata struct {
	RunID       string        `json:"run_id"`
	Duration    float64       `json:"duration"`
	Aspect      Aspect        `json:"aspect"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	RenderFile  string        `json:"render_file"`
	FileSize    int64         `json:"file_size"`
	SceneCount  int           `json:"scene_count"`
	Scenes      []SceneTiming `json:"scenes"`
	GeneratedAt time.Time     `json:"generated_at"`
}
