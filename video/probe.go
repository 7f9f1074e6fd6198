package video

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/clipfab/shorts-api/log"
	"gopkg.in/vansante/go-ffprobe.v2"
)

// SourceInfo describes a downloaded source video as far as the pipeline
// cares: enough to reject unusable inputs and to compute letterbox geometry.
type SourceInfo struct {
	Path        string
	Format      string
	DurationSec float64
	SizeBytes   int64
	Width       int64
	Height      int64
	HasAudio    bool
	AudioSec    float64
}

type Prober interface {
	ProbeSource(jobID, path string) (SourceInfo, error)
}

type Probe struct{}

func (p Probe) ProbeSource(jobID, path string) (SourceInfo, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer probeCancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0 // retry count is the only bound here
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return SourceInfo{}, fmt.Errorf("error probing %s: %w", path, err)
	}

	info, err := parseProbeOutput(data)
	if err != nil {
		return SourceInfo{}, err
	}
	info.Path = path
	log.Log(jobID, "probed source",
		"format", info.Format,
		"duration_sec", info.DurationSec,
		"size_bytes", info.SizeBytes,
		"resolution", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"has_audio", info.HasAudio,
	)
	return info, nil
}

func parseProbeOutput(data *ffprobe.ProbeData) (SourceInfo, error) {
	if data.Format == nil {
		return SourceInfo{}, fmt.Errorf("error parsing source video: format information missing")
	}
	videoStream := data.FirstVideoStream()
	if videoStream == nil {
		return SourceInfo{}, fmt.Errorf("error checking source video: no video stream found")
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil {
		duration = data.Format.DurationSeconds
	}

	size, err := strconv.ParseInt(data.Format.Size, 10, 64)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("error parsing filesize from probed data: %w", err)
	}

	info := SourceInfo{
		Format:      data.Format.FormatName,
		DurationSec: duration,
		SizeBytes:   size,
		Width:       int64(videoStream.Width),
		Height:      int64(videoStream.Height),
	}

	if audioStream := data.FirstAudioStream(); audioStream != nil {
		audioSec, err := strconv.ParseFloat(audioStream.Duration, 64)
		if err != nil {
			audioSec = duration
		}
		info.HasAudio = audioSec > 0
		info.AudioSec = audioSec
	}
	return info, nil
}
