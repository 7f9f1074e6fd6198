package selector

import (
	"sort"
	"strings"

	"github.com/clipfab/shorts-api/video"
)

const (
	// Text length saturates the score at this many runes.
	lengthScoreCeiling = 40.0
	punctuationBonus   = 0.3
	// Segments past the first 10% of the source get a mild boost; cold opens
	// rarely make good clips.
	coldOpenFraction = 0.1
	coldOpenBoost    = 0.2
)

// RuleBased is the deterministic selection strategy: score every transcript
// segment, then greedily grow ranges around the best-scoring seeds until
// each reaches the duration window. Ties break on earlier start, then on
// shorter range.
func RuleBased(transcript video.Transcript, sourceDurationSec float64, p Params) []Range {
	if len(transcript) == 0 {
		return nil
	}
	if sourceDurationSec <= 0 {
		sourceDurationSec = transcript.Duration()
	}

	scores := make([]float64, len(transcript))
	for i, seg := range transcript {
		scores[i] = scoreSegment(seg, sourceDurationSec)
	}

	seeds := make([]int, len(transcript))
	for i := range seeds {
		seeds[i] = i
	}
	sort.SliceStable(seeds, func(a, b int) bool {
		i, j := seeds[a], seeds[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		if transcript[i].Start != transcript[j].Start {
			return transcript[i].Start < transcript[j].Start
		}
		return transcript[i].Duration() < transcript[j].Duration()
	})

	used := make([]bool, len(transcript))
	var selected []Range
	for _, seed := range seeds {
		if len(selected) >= p.TargetCount {
			break
		}
		if used[seed] {
			continue
		}
		r, last, ok := growRange(transcript, scores, used, seed, p)
		if !ok {
			continue
		}
		overlaps := false
		for _, existing := range selected {
			if r.Overlaps(existing) {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		for i := seed; i <= last; i++ {
			used[i] = true
		}
		selected = append(selected, r)
	}

	sortChronological(selected)
	return selected
}

// growRange extends forward from seed, appending subsequent segments until
// the accumulated duration reaches MinSec, then keeps extending while the
// range stays under MaxSec and the next segment scores better than the last
// one taken. Returns the range and the index of its last segment.
func growRange(transcript video.Transcript, scores []float64, used []bool, seed int, p Params) (Range, int, bool) {
	start := transcript[seed].Start
	last := seed
	for {
		duration := transcript[last].End - start
		if duration > p.MaxSec {
			return Range{}, 0, false
		}
		if duration >= p.MinSec {
			break
		}
		next := last + 1
		if next >= len(transcript) || used[next] {
			return Range{}, 0, false
		}
		last = next
	}

	// optional extension phase
	for {
		next := last + 1
		if next >= len(transcript) || used[next] {
			break
		}
		if transcript[next].End-start > p.MaxSec {
			break
		}
		if scores[next] <= scores[last] {
			break
		}
		last = next
	}

	r := Range{
		Start:  start,
		End:    transcript[last].End,
		Method: MethodRule,
		Reason: "scored transcript window",
	}
	if r.Duration() < p.MinSec || r.Duration() > p.MaxSec {
		return Range{}, 0, false
	}
	return r, last, true
}

func scoreSegment(seg video.TranscriptSegment, sourceDurationSec float64) float64 {
	score := float64(len([]rune(seg.Text))) / lengthScoreCeiling
	if score > 1 {
		score = 1
	}
	if endsSentence(seg.Text) {
		score += punctuationBonus
	}
	if sourceDurationSec > 0 && seg.Start > coldOpenFraction*sourceDurationSec {
		score += coldOpenBoost
	}
	return score
}

func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return strings.HasSuffix(text, "。") || strings.HasSuffix(text, "！") ||
		strings.HasSuffix(text, "？") || strings.HasSuffix(text, ".") ||
		strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?")
}
