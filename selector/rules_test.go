package selector

import (
	"fmt"
	"testing"

	"github.com/clipfab/shorts-api/video"
	"github.com/stretchr/testify/require"
)

func defaultParams() Params {
	return Params{TargetCount: 5, MinSec: 25, MaxSec: 45, Language: "ja"}
}

// talkTranscript builds a 600 second talk: 120 contiguous segments of 5
// seconds each, every third one ending in sentence punctuation.
func talkTranscript() video.Transcript {
	var tr video.Transcript
	for i := 0; i < 120; i++ {
		text := fmt.Sprintf("セグメント%dの発言内容がここに入ります", i)
		if i%3 == 2 {
			text += "。"
		}
		tr = append(tr, video.TranscriptSegment{
			Start: float64(i) * 5,
			End:   float64(i+1) * 5,
			Text:  text,
		})
	}
	return tr
}

func requireValidSelection(t *testing.T, ranges []Range, p Params) {
	t.Helper()
	for i, r := range ranges {
		require.GreaterOrEqual(t, r.Duration(), p.MinSec, "range %d too short", i)
		require.LessOrEqual(t, r.Duration(), p.MaxSec, "range %d too long", i)
		if i > 0 {
			require.GreaterOrEqual(t, r.Start, ranges[i-1].End, "ranges %d and %d overlap or are out of order", i-1, i)
		}
	}
}

func TestRuleBasedHappyPath(t *testing.T) {
	require := require.New(t)
	p := defaultParams()

	ranges := RuleBased(talkTranscript(), 600, p)
	require.Len(ranges, 5)
	requireValidSelection(t, ranges, p)
	for _, r := range ranges {
		require.Equal(MethodRule, r.Method)
	}
}

func TestRuleBasedIsDeterministic(t *testing.T) {
	p := defaultParams()
	first := RuleBased(talkTranscript(), 600, p)
	second := RuleBased(talkTranscript(), 600, p)
	require.Equal(t, first, second)
}

func TestRuleBasedEmptyTranscript(t *testing.T) {
	require.Empty(t, RuleBased(nil, 600, defaultParams()))
}

func TestRuleBasedShortTranscriptYieldsFewerRanges(t *testing.T) {
	// 60 seconds of transcript fits at most two 25-45s ranges.
	var tr video.Transcript
	for i := 0; i < 12; i++ {
		tr = append(tr, video.TranscriptSegment{
			Start: float64(i) * 5,
			End:   float64(i+1) * 5,
			Text:  "短い発言です。",
		})
	}
	p := defaultParams()
	ranges := RuleBased(tr, 60, p)
	require.NotEmpty(t, ranges)
	require.LessOrEqual(t, len(ranges), 2)
	requireValidSelection(t, ranges, p)
}

func TestScoreSegment(t *testing.T) {
	require := require.New(t)

	base := video.TranscriptSegment{Start: 300, End: 305, Text: "結論としてはこうなります"}
	withPunct := base
	withPunct.Text += "。"
	require.Greater(scoreSegment(withPunct, 600), scoreSegment(base, 600))

	coldOpen := withPunct
	coldOpen.Start, coldOpen.End = 10, 15
	require.Greater(scoreSegment(withPunct, 600), scoreSegment(coldOpen, 600))

	longer := video.TranscriptSegment{Start: 300, End: 305, Text: "あ"}
	require.Greater(scoreSegment(base, 600), scoreSegment(longer, 600))
}

func TestEndsSentence(t *testing.T) {
	require := require.New(t)
	require.True(endsSentence("終わりです。"))
	require.True(endsSentence("Really?"))
	require.True(endsSentence("Done! "))
	require.False(endsSentence("続きます"))
	require.False(endsSentence(""))
}
