package video

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
)

// SubtitleStyle is the burn-in style applied by the renderer. FillColor and
// OutlineColor are ASS hex strings (&HAABBGGRR).
type SubtitleStyle struct {
	Font         string
	Size         int
	FillColor    string
	OutlineColor string
}

// Subtitle lines wrap at 20 half-width cells, so full-width CJK text wraps
// at 10 characters.
const maxLineCells = 20

const maxSubtitleLines = 2

// WriteSRT writes the segments intersecting [start, end) as an SRT file,
// rebased so that `start` becomes time zero of the clip.
func WriteSRT(path string, transcript Transcript, start, end float64) error {
	clipped := transcript.Clip(start, end)
	var sb strings.Builder
	for i, seg := range clipped {
		sb.WriteString(fmt.Sprintf("%d\n", i+1))
		sb.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTimestamp(seg.Start-start), formatSRTTimestamp(seg.End-start)))
		sb.WriteString(strings.Join(WrapSubtitle(seg.Text), "\n"))
		sb.WriteString("\n\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

// WrapSubtitle breaks text into at most two display lines of at most 20
// half-width cells each, preferring sentence punctuation as break points.
// Text beyond the second line is dropped rather than overflowing the
// letterbox band.
func WrapSubtitle(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{""}
	}

	var lines []string
	var current strings.Builder
	currentCells := 0
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if currentCells+w > maxLineCells {
			lines = append(lines, current.String())
			if len(lines) >= maxSubtitleLines {
				return lines
			}
			current.Reset()
			currentCells = 0
		}
		current.WriteRune(r)
		currentCells += w
		if isSentenceBreak(r) && currentCells > maxLineCells/2 {
			lines = append(lines, current.String())
			if len(lines) >= maxSubtitleLines {
				return lines
			}
			current.Reset()
			currentCells = 0
		}
	}
	if current.Len() > 0 && len(lines) < maxSubtitleLines {
		lines = append(lines, current.String())
	}
	return lines
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '。', '、', '！', '？', '.', ',', '!', '?':
		return true
	}
	return false
}

func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	m := (millis % 3600000) / 60000
	s := (millis % 60000) / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
