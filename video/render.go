package video

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/subprocess"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	targetWidth  = 1080
	targetHeight = 1920

	// libass renders SRT subtitles against a 288-line script by default, so
	// pixel margins computed for the 1920-high frame must be scaled down.
	assScriptHeight = 288
)

// A rendered clip may never take longer than max(90s, 3x its duration).
func RenderTimeout(durationSec float64) time.Duration {
	timeout := time.Duration(3*durationSec) * time.Second
	if timeout < 90*time.Second {
		timeout = 90 * time.Second
	}
	return timeout
}

// RenderRequest describes one clip to cut from the source. SRTPath empty
// means no subtitles are burned in.
type RenderRequest struct {
	JobID      string
	SourcePath string
	OutputPath string
	Start      float64
	End        float64
	SRTPath    string
	Source     SourceInfo
	Style      SubtitleStyle
}

func (r RenderRequest) Duration() float64 {
	return r.End - r.Start
}

type Renderer interface {
	Render(ctx context.Context, req RenderRequest) error
}

// FFMPEGRenderer produces the 9:16 letterboxed H.264 clip contract with
// ffmpeg: 1080x1920 yuv420p 30fps video, 128k stereo AAC at 48kHz,
// faststart MP4.
type FFMPEGRenderer struct{}

func (FFMPEGRenderer) Render(ctx context.Context, req RenderRequest) error {
	if req.End <= req.Start {
		return fmt.Errorf("invalid render range [%f, %f]", req.Start, req.End)
	}
	ctx, cancel := context.WithTimeout(ctx, RenderTimeout(req.Duration()))
	defer cancel()

	args := renderArgs(req)
	log.Log(req.JobID, "rendering clip",
		"stage", "rendering",
		"output", req.OutputPath,
		"start", req.Start,
		"end", req.End,
		"subtitles", req.SRTPath != "",
	)

	cmd := subprocess.New(ctx, "ffmpeg", args...)
	if err := subprocess.Run(cmd, req.JobID, "ffmpeg"); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("render timed out after %s: %w", RenderTimeout(req.Duration()), err)
		}
		return err
	}

	stat, err := os.Stat(req.OutputPath)
	if err != nil {
		return fmt.Errorf("render produced no output file: %w", err)
	}
	if stat.Size() < 1024 {
		return fmt.Errorf("render output suspiciously small: %d bytes", stat.Size())
	}
	return nil
}

// renderArgs builds the full ffmpeg argument list for one clip.
func renderArgs(req RenderRequest) []string {
	stream := ffmpeg.Input(req.SourcePath, ffmpeg.KwArgs{
		"ss": formatSeconds(req.Start),
		"t":  formatSeconds(req.Duration()),
	}).Output(req.OutputPath, ffmpeg.KwArgs{
		"vf":       renderVideoFilter(req),
		"af":       "loudnorm=I=-16:TP=-1.5:LRA=11",
		"c:v":      "libx264",
		"profile:v": "high",
		"crf":      "18",
		"preset":   "medium",
		"pix_fmt":  "yuv420p",
		"r":        "30",
		"c:a":      "aac",
		"b:a":      "128k",
		"ar":       "48000",
		"ac":       "2",
		"movflags": "+faststart",
	}).OverWriteOutput()
	return stream.GetArgs()
}

// renderVideoFilter scales the source to fit width 1080 preserving aspect,
// centers it vertically with black letterbox bars, and burns in subtitles
// positioned in the lower bar.
func renderVideoFilter(req RenderRequest) string {
	filters := []string{
		fmt.Sprintf("scale=%d:-2", targetWidth),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", targetWidth, targetHeight),
		"setsar=1",
	}
	if req.SRTPath != "" {
		filters = append(filters, subtitleFilter(req))
	}
	return strings.Join(filters, ",")
}

func subtitleFilter(req RenderRequest) string {
	style := []string{
		fmt.Sprintf("FontName=%s", req.Style.Font),
		fmt.Sprintf("FontSize=%d", req.Style.Size),
		fmt.Sprintf("PrimaryColour=%s", req.Style.FillColor),
		fmt.Sprintf("OutlineColour=%s", req.Style.OutlineColor),
		"Outline=2",
		"Alignment=2",
		fmt.Sprintf("MarginV=%d", subtitleMarginV(req.Source.Width, req.Source.Height)),
	}
	return fmt.Sprintf("subtitles=%s:force_style='%s'",
		escapeFilterPath(req.SRTPath), strings.Join(style, ","))
}

// subtitleMarginV centers the subtitle baseline in the lower letterbox bar.
// The margin is computed in output pixels and scaled to the libass script
// height.
func subtitleMarginV(srcWidth, srcHeight int64) int {
	barHeight := int64(0)
	if srcWidth > 0 {
		scaledHeight := srcHeight * targetWidth / srcWidth
		if scaledHeight < targetHeight {
			barHeight = (targetHeight - scaledHeight) / 2
		}
	}
	if barHeight == 0 {
		// No letterbox (portrait-ish source), keep a small fixed margin.
		barHeight = targetHeight / 10
	}
	marginPixels := barHeight / 2
	return int(marginPixels * assScriptHeight / targetHeight)
}

// escapeFilterPath escapes the characters the ffmpeg filter parser treats
// specially in filenames.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	path = strings.ReplaceAll(path, `'`, `\'`)
	return path
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}
