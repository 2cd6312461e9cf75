package render

import (
	"fmt"
	"strings"

	"github.com/bobarin/adforge/internal/fsutil"
	"github.com/bobarin/adforge/internal/models"
)

// SubtitleFile is the ASS sidecar written next to the render when captions
// are enabled. Players that load sidecars get word-level highlighting the
// burned-in caption cannot show.
const SubtitleFile = "ad_final.ass"

const (
	wordsPerChunk = 4

	subtitleFontName = "Noto Sans"

	// &HAABBGGRR
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorPurple    = "&H00CC3299"
	assColorSemiBlack = "&H80000000"
)

// subtitleWord is one word with its estimated on-screen interval.
type subtitleWord struct {
	Text  string
	Start float64
	End   float64
}

// sceneWords spreads each scene's words evenly across the scene's slot on
// the timeline. Narration is not transcribed, so this is an estimate.
func sceneWords(board models.Storyboard, timings []models.SceneTiming) []subtitleWord {
	lines := make(map[int]string, len(board.Scenes))
	for _, s := range board.Scenes {
		if s.Caption {
			lines[s.ID] = s.Line
		}
	}

	var words []subtitleWord
	for _, t := range timings {
		fields := strings.Fields(lines[t.SceneID])
		if len(fields) == 0 || t.Duration <= 0 {
			continue
		}
		step := t.Duration / float64(len(fields))
		for i, f := range fields {
			words = append(words, subtitleWord{
				Text:  f,
				Start: t.Start + float64(i)*step,
				End:   t.Start + float64(i+1)*step,
			})
		}
	}
	return words
}

// WriteSubtitles renders an ASS file for the scene timeline, sized to the
// output canvas. It returns false when no scene carries caption text.
func WriteSubtitles(path string, board models.Storyboard, timings []models.SceneTiming, width, height int) (bool, error) {
	words := sceneWords(board, timings)
	if len(words) == 0 {
		return false, nil
	}

	// Scale type to the short edge so 9:16 and 16:9 read the same.
	short := min(width, height)
	fontSize := max(short/18, 24)
	outline := max(short/360, 2)
	highlight := outline * 3
	marginV := height / 9

	var sb strings.Builder
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", width)
	fmt.Fprintf(&sb, "PlayResY: %d\n", height)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,2,0,1,%d,0,2,40,40,%d,1\n\n",
		subtitleFontName, fontSize,
		assColorWhite, assColorWhite, assColorBlack, assColorSemiBlack,
		outline, marginV,
	)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, chunk := range chunkWords(words, wordsPerChunk) {
		for i, w := range chunk {
			end := w.End
			if i < len(chunk)-1 {
				end = chunk[i+1].Start
			}
			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(w.Start), formatASSTime(end), highlightChunk(chunk, i, highlight))
		}
	}

	if err := fsutil.WriteBytes(path, []byte(sb.String())); err != nil {
		return false, fmt.Errorf("failed to write subtitles: %w", err)
	}
	return true, nil
}

// chunkWords groups words for display, breaking early at sentence ends so a
// chunk never straddles two beats' sentences.
func chunkWords(words []subtitleWord, size int) [][]subtitleWord {
	var chunks [][]subtitleWord
	var current []subtitleWord
	for _, w := range words {
		current = append(current, w)
		sentenceEnd := strings.ContainsAny(w.Text, ".!?")
		if len(current) >= size || (sentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// highlightChunk uppercases the chunk and outlines the active word, e.g.
// "FRESH {\3c&H00CC3299\bord12}COFFEE{\r} DAILY".
func highlightChunk(chunk []subtitleWord, active, border int) string {
	parts := make([]string, 0, len(chunk))
	for i, w := range chunk {
		text := escapeASS(strings.ToUpper(strings.TrimSpace(w.Text)))
		if text == "" {
			continue
		}
		if i == active {
			text = fmt.Sprintf("{\\3c%s\\bord%d}%s{\\r}", assColorPurple, border, text)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// escapeASS drops override braces that would otherwise be parsed as tags.
func escapeASS(s string) string {
	return strings.NewReplacer("{", "(", "}", ")", "\\", "/").Replace(s)
}

// formatASSTime renders H:MM:SS.CC.
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int(seconds*100 + 0.5)
	h := cs / 360000
	m := (cs % 360000) / 6000
	s := (cs % 6000) / 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}
