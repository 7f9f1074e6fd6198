package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	xerrors "github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/progress"
	"github.com/clipfab/shorts-api/subprocess"
	"github.com/clipfab/shorts-api/video"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type Transcriber interface {
	Transcribe(ctx context.Context, jobID, videoPath, language, model string) (video.Transcript, string, error)
}

// WhisperTranscriber runs the whisper.cpp CLI over the audio track of a
// source video. The audio is first extracted to the 16kHz mono WAV the
// engine expects.
type WhisperTranscriber struct {
	Bin      string
	ModelDir string
	Timeout  time.Duration
}

// whisperOutput matches the JSON the whisper CLI writes with -oj.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // milliseconds
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, jobID, videoPath, language, model string) (video.Transcript, string, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	wavPath := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".wav"
	if err := w.extractAudio(ctx, jobID, videoPath, wavPath); err != nil {
		return nil, "", w.failure(ctx, fmt.Errorf("audio extraction failed: %w", err))
	}
	defer os.Remove(wavPath)

	outPrefix := strings.TrimSuffix(wavPath, ".wav") + ".whisper"
	args := []string{
		"-m", filepath.Join(w.ModelDir, fmt.Sprintf("ggml-%s.bin", model)),
		"-l", language,
		"-oj",
		"-of", outPrefix,
		"-np",
		"-f", wavPath,
	}
	log.Log(jobID, "transcribing audio", "stage", "transcribing", "model", model, "language", language)
	cmd := subprocess.New(ctx, w.Bin, args...)
	if err := subprocess.Run(cmd, jobID, "whisper"); err != nil {
		return nil, "", w.failure(ctx, err)
	}

	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, "", w.failure(ctx, fmt.Errorf("whisper produced no output: %w", err))
	}
	transcript, detected, err := parseWhisperOutput(raw)
	if err != nil {
		return nil, "", w.failure(ctx, err)
	}
	log.Log(jobID, "transcription finished", "stage", "transcribing",
		"segment_count", len(transcript), "language_detected", detected)
	return transcript, detected, nil
}

func (w *WhisperTranscriber) extractAudio(ctx context.Context, jobID, videoPath, wavPath string) error {
	args := ffmpeg.Input(videoPath).Output(wavPath, ffmpeg.KwArgs{
		"vn":  "",
		"ac":  "1",
		"ar":  "16000",
		"c:a": "pcm_s16le",
	}).OverWriteOutput().GetArgs()
	cmd := subprocess.New(ctx, "ffmpeg", args...)
	return subprocess.Run(cmd, jobID, "ffmpeg")
}

func (w *WhisperTranscriber) failure(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("transcription exceeded %s: %w", w.Timeout, err)
	}
	return xerrors.NewJobError(xerrors.TranscribeFailed, progress.StageTranscribing, err)
}

// parseWhisperOutput converts whisper JSON into a normalized transcript.
// Empty audio yields an empty transcript without error.
func parseWhisperOutput(raw []byte) (video.Transcript, string, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, "", fmt.Errorf("cannot parse whisper output: %w", err)
	}
	transcript := make(video.Transcript, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		transcript = append(transcript, video.TranscriptSegment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return transcript.Normalize(), out.Result.Language, nil
}
