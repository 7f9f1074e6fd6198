package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	xerrors "github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/metrics"
	"github.com/clipfab/shorts-api/progress"
	"github.com/clipfab/shorts-api/video"
	"github.com/hashicorp/go-retryablehttp"
)

// SourceRef identifies where a job's source video comes from.
type SourceRef struct {
	Type        string
	DriveFileID string
	URL         string
}

const (
	SourceTypeDrive = "drive"
	SourceTypeURL   = "url"
)

var directVideoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".m4v": true,
}

type Fetcher interface {
	Fetch(ctx context.Context, jobID string, ref SourceRef, scratchDir string) (video.SourceInfo, error)
}

// SourceFetcher obtains a playable local copy of the source video and
// rejects inputs the rest of the pipeline cannot use.
type SourceFetcher struct {
	Storage        Storage // nil when no drive bucket is configured
	Downloader     *YtDlp
	HTTP           *http.Client
	Prober         video.Prober
	MaxSourceBytes int64
	Timeout        time.Duration
}

// NewHTTPDownloadClient builds the retrying HTTP client used for direct
// file URLs, wired into the source-fetch metrics.
func NewHTTPDownloadClient() *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 2 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.Logger = nil
	client.CheckRetry = metrics.HttpRetryHook
	return client.StandardClient()
}

func (f *SourceFetcher) Fetch(ctx context.Context, jobID string, ref SourceRef, scratchDir string) (video.SourceInfo, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	destPath := filepath.Join(scratchDir, "source.mp4")

	var err error
	switch ref.Type {
	case SourceTypeDrive:
		if f.Storage == nil {
			err = fmt.Errorf("drive source requested but no storage is configured")
		} else {
			err = f.Storage.Download(ctx, jobID, ref.DriveFileID, destPath)
		}
	case SourceTypeURL:
		if isDirectVideoURL(ref.URL) {
			err = f.downloadDirect(ctx, jobID, ref.URL, destPath)
		} else {
			err = f.Downloader.Download(ctx, jobID, ref.URL, destPath)
		}
	default:
		err = fmt.Errorf("unknown source type %q", ref.Type)
	}
	if err != nil {
		return video.SourceInfo{}, xerrors.NewJobError(xerrors.SourceUnusable, progress.StageFetching, err)
	}

	info, err := f.Prober.ProbeSource(jobID, destPath)
	if err != nil {
		return video.SourceInfo{}, xerrors.NewJobError(xerrors.SourceUnusable, progress.StageFetching,
			fmt.Errorf("downloaded source is not decodable: %w", err))
	}
	if err := f.checkUsable(info); err != nil {
		return video.SourceInfo{}, xerrors.NewJobError(xerrors.SourceUnusable, progress.StageFetching, err)
	}
	return info, nil
}

func (f *SourceFetcher) checkUsable(info video.SourceInfo) error {
	if f.MaxSourceBytes > 0 && info.SizeBytes > f.MaxSourceBytes {
		return fmt.Errorf("source is %d bytes, above the %d byte limit", info.SizeBytes, f.MaxSourceBytes)
	}
	if !info.HasAudio {
		return fmt.Errorf("source has no usable audio track")
	}
	return nil
}

// isDirectVideoURL reports whether the URL points at a media file we can
// stream down over plain HTTP. Anything else goes through yt-dlp.
func isDirectVideoURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "youtube.com" || host == "youtu.be" || host == "m.youtube.com" {
		return false
	}
	return directVideoExtensions[strings.ToLower(path.Ext(u.Path))]
}

// downloadDirect streams a direct file URL to disk. Transport retries are
// handled inside the retrying HTTP client, which follows the same backoff
// policy as storage operations.
func (f *SourceFetcher) downloadDirect(ctx context.Context, jobID, sourceURL, destPath string) error {
	log.Log(jobID, "downloading source over HTTP", "stage", "fetching", "url", sourceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}
	res, err := metrics.MonitorRequest(metrics.Metrics.SourceFetchClient, f.HTTP, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		err := fmt.Errorf("download returned status %d", res.StatusCode)
		if res.StatusCode < 500 {
			return xerrors.Unretriable(err)
		}
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, res.Body); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	return nil
}
