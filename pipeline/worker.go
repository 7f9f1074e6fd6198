package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipfab/shorts-api/clients"
	"github.com/clipfab/shorts-api/config"
	xerrors "github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/metrics"
	"github.com/clipfab/shorts-api/progress"
	"github.com/clipfab/shorts-api/selector"
	"github.com/clipfab/shorts-api/video"
)

// SegmentSelector picks the clip ranges for one job. Satisfied by
// selector.Engine.
type SegmentSelector interface {
	Select(ctx context.Context, jobID string, transcript video.Transcript, sourceDurationSec float64, p selector.Params) []selector.Range
}

// Worker drives one job through the full pipeline: fetch, transcribe,
// select, render, upload. It owns the job's terminal transition.
type Worker struct {
	Fetcher     clients.Fetcher
	Transcriber clients.Transcriber
	Selector    SegmentSelector
	Renderer    video.Renderer
	Storage     clients.Storage
	Scratch     *Scratch

	JobTimeout    time.Duration
	UploadTimeout time.Duration
	SubtitleStyle video.SubtitleStyle
}

// renderedClip is a clip that made it through the render stage and awaits
// upload.
type renderedClip struct {
	path     string
	fileName string
	rng      selector.Range
}

func (w *Worker) Run(ctx context.Context, job *JobInfo) {
	if w.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.JobTimeout)
		defer cancel()
	}

	scratchDir, err := w.Scratch.JobDir(job.JobID)
	if err != nil {
		job.SetFailed(xerrors.NewJobError(xerrors.InternalError, progress.StageQueued, err))
		return
	}
	defer w.Scratch.Cleanup(job.JobID)

	// Fetch
	job.PublishProgress(progress.StageFetching, progress.OnEntry(progress.StageFetching), "downloading source")
	stageStart := time.Now()
	source, err := w.Fetcher.Fetch(ctx, job.JobID, sourceRef(job.Request), scratchDir)
	if err != nil {
		w.fail(ctx, job, progress.StageFetching, err)
		return
	}
	observeStage(progress.StageFetching, stageStart)
	log.AddContext(job.JobID, "source_duration", source.DurationSec)

	// Transcribe. A failed transcription is not fatal: the job continues
	// with an empty transcript and the selector's fixed fallback.
	job.PublishProgress(progress.StageTranscribing, progress.OnEntry(progress.StageTranscribing), "transcribing audio")
	stageStart = time.Now()
	transcript, language, err := w.Transcriber.Transcribe(ctx, job.JobID, source.Path, job.Options.Language, job.Options.WhisperModel)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			w.fail(ctx, job, progress.StageTranscribing, err)
			return
		}
		log.LogWarn(job.JobID, "transcription failed, continuing without transcript",
			"stage", progress.StageTranscribing, "err", err.Error())
		transcript = nil
	}
	observeStage(progress.StageTranscribing, stageStart)
	saveTranscript(job.JobID, scratchDir, transcript, language)

	// Select
	job.PublishProgress(progress.StageSelecting, progress.OnEntry(progress.StageSelecting), "choosing segments")
	stageStart = time.Now()
	ranges := w.Selector.Select(ctx, job.JobID, transcript, source.DurationSec, selector.Params{
		TargetCount:    job.Options.TargetCount,
		MinSec:         job.Options.MinSec,
		MaxSec:         job.Options.MaxSec,
		Language:       job.Options.Language,
		TitleHint:      job.Request.TitleHint,
		ForceRuleBased: job.Options.ForceRuleBased,
	})
	observeStage(progress.StageSelecting, stageStart)
	if len(ranges) < config.MinGuaranteedClips {
		w.fail(ctx, job, progress.StageSelecting,
			xerrors.NewJobError(xerrors.NoSegmentsProducible, progress.StageSelecting,
				fmt.Errorf("only %d candidate segments for a minimum of %d", len(ranges), config.MinGuaranteedClips)))
		return
	}

	// Render. Failed clips are skipped; the job survives as long as the
	// minimum clip count still renders.
	job.PublishProgress(progress.StageRendering, progress.OnEntry(progress.StageRendering), "rendering clips")
	stageStart = time.Now()
	rendered := w.renderAll(ctx, job, source, transcript, ranges, scratchDir)
	observeStage(progress.StageRendering, stageStart)
	if ctx.Err() == context.DeadlineExceeded {
		w.fail(ctx, job, progress.StageRendering, ctx.Err())
		return
	}
	if len(rendered) < config.MinGuaranteedClips {
		w.fail(ctx, job, progress.StageRendering,
			xerrors.NewJobError(xerrors.EncoderFailed, progress.StageRendering,
				fmt.Errorf("only %d of %d clips rendered, need at least %d", len(rendered), len(ranges), config.MinGuaranteedClips)))
		return
	}

	// Upload
	job.PublishProgress(progress.StageUploading, progress.OnEntry(progress.StageUploading), "publishing clips")
	stageStart = time.Now()
	outputs := w.uploadAll(ctx, job, rendered)
	observeStage(progress.StageUploading, stageStart)
	if ctx.Err() == context.DeadlineExceeded {
		w.fail(ctx, job, progress.StageUploading, ctx.Err())
		return
	}
	if len(outputs) < config.MinGuaranteedClips {
		w.fail(ctx, job, progress.StageUploading,
			xerrors.NewJobError(xerrors.UploadFailed, progress.StageUploading,
				fmt.Errorf("only %d of %d clips published, need at least %d", len(outputs), len(rendered), config.MinGuaranteedClips)))
		return
	}

	job.SetDone(outputs, fmt.Sprintf("produced %d clips", len(outputs)))
}

func (w *Worker) renderAll(ctx context.Context, job *JobInfo, source video.SourceInfo, transcript video.Transcript, ranges []selector.Range, scratchDir string) []renderedClip {
	style := w.subtitleStyle(job.Options)
	var rendered []renderedClip
	for i, rng := range ranges {
		if ctx.Err() != nil {
			break
		}
		fileName := clipFileName(job.Request.TitleHint, i+1)
		outPath := filepath.Join(scratchDir, fileName)

		srtPath := ""
		if rng.Method != selector.MethodFallback && len(transcript.Clip(rng.Start, rng.End)) > 0 {
			srtPath = filepath.Join(scratchDir, fmt.Sprintf("clip_%02d.srt", i+1))
			if err := video.WriteSRT(srtPath, transcript, rng.Start, rng.End); err != nil {
				log.LogWarn(job.JobID, "failed to write subtitles, rendering clip without them",
					"stage", progress.StageRendering, "err", err.Error())
				srtPath = ""
			}
		}

		err := w.Renderer.Render(ctx, video.RenderRequest{
			JobID:      job.JobID,
			SourcePath: source.Path,
			OutputPath: outPath,
			Start:      rng.Start,
			End:        rng.End,
			SRTPath:    srtPath,
			Source:     source,
			Style:      style,
		})
		if err != nil {
			metrics.Metrics.ClipsRendered.WithLabelValues("failure").Inc()
			log.LogError(job.JobID, "clip render failed, skipping clip", err,
				"stage", progress.StageRendering, "clip", fileName)
		} else {
			metrics.Metrics.ClipsRendered.WithLabelValues("success").Inc()
			rendered = append(rendered, renderedClip{path: outPath, fileName: fileName, rng: rng})
		}
		job.PublishProgress(progress.StageRendering, progress.Rendering(i+1, len(ranges)), "")
	}
	return rendered
}

func (w *Worker) uploadAll(ctx context.Context, job *JobInfo, rendered []renderedClip) []ClipOutput {
	var outputs []ClipOutput
	for i, clip := range rendered {
		if ctx.Err() != nil {
			break
		}
		locator, fileID, err := w.publish(ctx, job.JobID, clip)
		if err != nil {
			metrics.Metrics.ClipsUploaded.WithLabelValues("failure").Inc()
			log.LogError(job.JobID, "clip upload failed, skipping clip", err,
				"stage", progress.StageUploading, "clip", clip.fileName)
		} else {
			metrics.Metrics.ClipsUploaded.WithLabelValues("success").Inc()
			outputs = append(outputs, ClipOutput{
				FileName:      clip.fileName,
				RemoteLocator: locator,
				FileID:        fileID,
				DurationSec:   clip.rng.Duration(),
				Segment:       TimeRange{Start: clip.rng.Start, End: clip.rng.End},
				Method:        string(clip.rng.Method),
			})
		}
		job.PublishProgress(progress.StageUploading, progress.Uploading(i+1, len(rendered)), "")
	}
	return outputs
}

func (w *Worker) publish(ctx context.Context, jobID string, clip renderedClip) (string, string, error) {
	if w.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.UploadTimeout)
		defer cancel()
	}
	return w.Storage.Publish(ctx, jobID, clip.path, clip.fileName)
}

// fail records a terminal failure, turning a blown job deadline into its
// own error kind regardless of what the stage reported.
func (w *Worker) fail(ctx context.Context, job *JobInfo, stage string, err error) {
	if ctx.Err() == context.DeadlineExceeded {
		job.SetFailed(xerrors.NewJobError(xerrors.JobTimeout, stage,
			fmt.Errorf("job exceeded its %s deadline: %w", w.JobTimeout, err)))
		return
	}
	jobErr := xerrors.AsJobError(err)
	if jobErr.Stage == "" {
		jobErr.Stage = stage
	}
	job.SetFailed(jobErr)
}

func (w *Worker) subtitleStyle(opts Options) video.SubtitleStyle {
	style := w.SubtitleStyle
	if style.Font == "" {
		style = video.SubtitleStyle{
			Font:         config.DefaultSubtitleFont,
			Size:         config.DefaultSubtitleSize,
			FillColor:    config.DefaultSubtitleColor,
			OutlineColor: config.DefaultSubtitleOutline,
		}
	}
	if opts.SubtitleStyle != nil {
		if opts.SubtitleStyle.Size > 0 {
			style.Size = opts.SubtitleStyle.Size
		}
		if opts.SubtitleStyle.Color != "" {
			style.FillColor = opts.SubtitleStyle.Color
		}
	}
	return style
}

func sourceRef(req JobRequest) clients.SourceRef {
	return clients.SourceRef{
		Type:        req.SourceType,
		DriveFileID: req.DriveFileID,
		URL:         req.SourceURL,
	}
}

// clipFileName builds clip_NN.mp4, or {hint}_NN.mp4 when a usable title
// hint exists. NN is the 1-based selection index.
func clipFileName(titleHint string, index int) string {
	base := sanitizeFileName(titleHint)
	if base == "" {
		base = "clip"
	}
	return fmt.Sprintf("%s_%02d.mp4", base, index)
}

const maxFileNameBase = 40

// sanitizeFileName keeps letters, digits, dash and underscore, mapping
// spaces to underscores. Everything else, including path separators, drops.
func sanitizeFileName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			sb.WriteRune('_')
		case r == '-' || r == '_':
			sb.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		}
	}
	out := strings.Trim(sb.String(), "_")
	if len(out) > maxFileNameBase {
		out = out[:maxFileNameBase]
	}
	return out
}

// saveTranscript keeps the raw transcript next to the job's scratch files
// for debugging. Best effort.
func saveTranscript(jobID, scratchDir string, transcript video.Transcript, language string) {
	payload := struct {
		Language string           `json:"language"`
		Segments video.Transcript `json:"segments"`
	}{Language: language, Segments: transcript}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(scratchDir, "transcript.json"), raw, 0644); err != nil {
		log.LogDebug(jobID, "could not save transcript", "err", err.Error())
	}
}

func observeStage(stage string, start time.Time) {
	metrics.Metrics.StageDurationSec.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
