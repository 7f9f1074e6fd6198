package clients

import (
	"context"

	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/subprocess"
)

// Prefer a progressive H.264 MP4 so the renderer never has to transcode an
// exotic codec; fall back to whatever single file the site offers.
const ytDlpFormat = "bestvideo[ext=mp4][vcodec^=avc1]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// YtDlp wraps the yt-dlp binary for page URLs that are not direct media
// files.
type YtDlp struct {
	Bin         string
	CookiesPath string
}

func (d *YtDlp) Download(ctx context.Context, jobID, sourceURL, destPath string) error {
	args := d.args(sourceURL, destPath)
	log.Log(jobID, "downloading source with yt-dlp", "stage", "fetching", "url", sourceURL)
	cmd := subprocess.New(ctx, d.Bin, args...)
	return subprocess.Run(cmd, jobID, "yt-dlp")
}

func (d *YtDlp) args(sourceURL, destPath string) []string {
	args := []string{
		"-f", ytDlpFormat,
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-o", destPath,
	}
	if d.CookiesPath != "" {
		args = append(args, "--cookies", d.CookiesPath)
	}
	return append(args, sourceURL)
}
