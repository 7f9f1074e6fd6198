package video

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRenderRequest() RenderRequest {
	return RenderRequest{
		JobID:      "job-1",
		SourcePath: "/tmp/job-1/source.mp4",
		OutputPath: "/tmp/job-1/clip_01.mp4",
		Start:      30,
		End:        65,
		SRTPath:    "/tmp/job-1/clip_01.srt",
		Source:     SourceInfo{Width: 1920, Height: 1080},
		Style: SubtitleStyle{
			Font:         "Noto Sans CJK JP",
			Size:         14,
			FillColor:    "&H00FFFFFF",
			OutlineColor: "&H00000000",
		},
	}
}

func TestRenderArgsContract(t *testing.T) {
	require := require.New(t)
	args := strings.Join(renderArgs(testRenderRequest()), " ")

	require.Contains(args, "-ss 30.000")
	require.Contains(args, "-t 35.000")
	require.Contains(args, "-c:v libx264")
	require.Contains(args, "-profile:v high")
	require.Contains(args, "-pix_fmt yuv420p")
	require.Contains(args, "-r 30")
	require.Contains(args, "-c:a aac")
	require.Contains(args, "-b:a 128k")
	require.Contains(args, "-ar 48000")
	require.Contains(args, "-ac 2")
	require.Contains(args, "-movflags +faststart")
	require.Contains(args, "-y")
}

func TestRenderVideoFilterLetterbox(t *testing.T) {
	require := require.New(t)
	vf := renderVideoFilter(testRenderRequest())

	require.Contains(vf, "scale=1080:-2")
	require.Contains(vf, "pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black")
	require.Contains(vf, "setsar=1")
	require.Contains(vf, "subtitles=")
	require.Contains(vf, "FontName=Noto Sans CJK JP")
	require.Contains(vf, "Alignment=2")
}

func TestRenderVideoFilterWithoutSubtitles(t *testing.T) {
	req := testRenderRequest()
	req.SRTPath = ""
	require.NotContains(t, renderVideoFilter(req), "subtitles=")
}

func TestSubtitleMarginVInsideLowerBar(t *testing.T) {
	// 1920x1080 source scales to 1080x607, leaving 656px bars.
	margin := subtitleMarginV(1920, 1080)
	require.Greater(t, margin, 0)
	// half of the bar height in 288-line script space
	require.LessOrEqual(t, margin, 656/2*assScriptHeight/targetHeight+1)

	// portrait source has no letterbox, fixed fallback margin
	require.Greater(t, subtitleMarginV(1080, 1920), 0)
	require.Greater(t, subtitleMarginV(0, 0), 0)
}

func TestRenderTimeout(t *testing.T) {
	require.Equal(t, 90*time.Second, RenderTimeout(10))
	require.Equal(t, 135*time.Second, RenderTimeout(45))
}

func TestEscapeFilterPath(t *testing.T) {
	require.Equal(t, `C\:\\scratch\\a\'b.srt`, escapeFilterPath(`C:\scratch\a'b.srt`))
}
