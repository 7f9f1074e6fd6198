package video

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/require"
)

func TestWrapSubtitleHalfWidth(t *testing.T) {
	lines := WrapSubtitle("this is a fairly long english sentence")
	require.LessOrEqual(t, len(lines), 2)
	for _, line := range lines {
		require.LessOrEqual(t, runewidth.StringWidth(line), maxLineCells)
	}
}

func TestWrapSubtitleFullWidth(t *testing.T) {
	// Full-width characters count as two cells each, so lines hold at most
	// ten of them.
	lines := WrapSubtitle("これはとても長い日本語の文章でありまして改行が必要です")
	require.LessOrEqual(t, len(lines), 2)
	for _, line := range lines {
		require.LessOrEqual(t, runewidth.StringWidth(line), maxLineCells)
	}
}

func TestWrapSubtitleBreaksOnPunctuation(t *testing.T) {
	lines := WrapSubtitle("今日は晴れです。明日は雨です。")
	require.Equal(t, []string{"今日は晴れです。", "明日は雨です。"}, lines)
}

func TestWrapSubtitleShortText(t *testing.T) {
	require.Equal(t, []string{"短い"}, WrapSubtitle("短い"))
	require.Equal(t, []string{""}, WrapSubtitle("   "))
}

func TestWriteSRTRebasesToClipStart(t *testing.T) {
	require := require.New(t)

	transcript := Transcript{
		{Start: 100, End: 103.5, Text: "first line"},
		{Start: 103.5, End: 107, Text: "second line"},
		{Start: 200, End: 205, Text: "outside the clip"},
	}

	path := filepath.Join(t.TempDir(), "clip.srt")
	require.NoError(WriteSRT(path, transcript, 100, 130))

	raw, err := os.ReadFile(path)
	require.NoError(err)
	content := string(raw)

	require.Contains(content, "00:00:00,000 --> 00:00:03,500")
	require.Contains(content, "00:00:03,500 --> 00:00:07,000")
	require.Contains(content, "first line")
	require.NotContains(content, "outside the clip")

	// entries are numbered from 1
	require.True(strings.HasPrefix(content, "1\n"))
}

func TestFormatSRTTimestamp(t *testing.T) {
	require := require.New(t)
	require.Equal("00:00:00,000", formatSRTTimestamp(0))
	require.Equal("00:01:01,250", formatSRTTimestamp(61.25))
	require.Equal("01:00:00,001", formatSRTTimestamp(3600.001))
	require.Equal("00:00:00,000", formatSRTTimestamp(-5))
}
